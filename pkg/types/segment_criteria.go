package types

import "fmt"

// SegmentCriteria defines the behavioral filters an automatic segment
// recomputes membership from. All bounds are optional; an absent bound is
// unbounded. Money values are cents.
type SegmentCriteria struct {
	MinAvgOrderCents  *int64 `json:"min_avg_order_cents,omitempty"`
	MaxAvgOrderCents  *int64 `json:"max_avg_order_cents,omitempty"`
	MinPurchaseCount  *int   `json:"min_purchase_count,omitempty"`
	MaxPurchaseCount  *int   `json:"max_purchase_count,omitempty"`
	MinDaysSinceVisit *int   `json:"min_days_since_visit,omitempty"`
	MaxDaysSinceVisit *int   `json:"max_days_since_visit,omitempty"`
	LookbackDays      int    `json:"lookback_days"`
}

// Validate checks criteria bounds at write time.
func (c SegmentCriteria) Validate() error {
	if c.LookbackDays < 0 {
		return fmt.Errorf("lookback days cannot be negative")
	}
	if c.MinAvgOrderCents != nil && c.MaxAvgOrderCents != nil && *c.MinAvgOrderCents > *c.MaxAvgOrderCents {
		return fmt.Errorf("average order bounds inverted")
	}
	if c.MinPurchaseCount != nil && c.MaxPurchaseCount != nil && *c.MinPurchaseCount > *c.MaxPurchaseCount {
		return fmt.Errorf("purchase count bounds inverted")
	}
	return nil
}
