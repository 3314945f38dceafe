package enums

import "fmt"

// PointEntryType maps to the point_entry_type enum in Postgres.
type PointEntryType string

const (
	PointEntryTypeEarned   PointEntryType = "earned"
	PointEntryTypeSpent    PointEntryType = "spent"
	PointEntryTypeExpired  PointEntryType = "expired"
	PointEntryTypeAdjusted PointEntryType = "adjusted"
)

var validPointEntryTypes = []PointEntryType{
	PointEntryTypeEarned,
	PointEntryTypeSpent,
	PointEntryTypeExpired,
	PointEntryTypeAdjusted,
}

// IsValid reports whether the value matches the canonical point entry enum.
func (t PointEntryType) IsValid() bool {
	for _, candidate := range validPointEntryTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParsePointEntryType converts raw input into PointEntryType.
func ParsePointEntryType(value string) (PointEntryType, error) {
	for _, candidate := range validPointEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid point entry type %q", value)
}
