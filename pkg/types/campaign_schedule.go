package types

import (
	"fmt"
	"time"
)

// HourWindow restricts a campaign to a daily time range. Hours are local to
// the restaurant's timezone, 0-23. End is exclusive; {17, 20} matches
// 17:00:00 through 19:59:59. Windows that wrap midnight (Start > End) are
// supported.
type HourWindow struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Validate checks the window bounds at write time.
func (w HourWindow) Validate() error {
	if w.Start < 0 || w.Start > 23 {
		return fmt.Errorf("hour window start %d out of range", w.Start)
	}
	if w.End < 0 || w.End > 24 {
		return fmt.Errorf("hour window end %d out of range", w.End)
	}
	if w.Start == w.End {
		return fmt.Errorf("hour window cannot be empty")
	}
	return nil
}

// Contains reports whether t's hour falls inside the window.
func (w HourWindow) Contains(t time.Time) bool {
	h := t.Hour()
	if w.Start < w.End {
		return h >= w.Start && h < w.End
	}
	return h >= w.Start || h < w.End
}

// Weekdays restricts a campaign to days of the week, encoded 1=Monday
// through 7=Sunday.
type Weekdays []int

// Validate checks every entry at write time.
func (d Weekdays) Validate() error {
	for _, day := range d {
		if day < 1 || day > 7 {
			return fmt.Errorf("weekday %d out of range 1-7", day)
		}
	}
	return nil
}

// Contains reports whether t's weekday is in the set. Go's Sunday (0) maps
// to 7.
func (d Weekdays) Contains(t time.Time) bool {
	if len(d) == 0 {
		return true
	}
	day := int(t.Weekday())
	if day == 0 {
		day = 7
	}
	for _, want := range d {
		if want == day {
			return true
		}
	}
	return false
}
