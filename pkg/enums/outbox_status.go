package enums

// OutboxStatus tracks delivery progress of an outbox row.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

var validOutboxStatuses = []OutboxStatus{
	OutboxStatusPending,
	OutboxStatusPublished,
	OutboxStatusFailed,
}

// IsValid reports whether the value matches the canonical status enum.
func (s OutboxStatus) IsValid() bool {
	for _, candidate := range validOutboxStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}
