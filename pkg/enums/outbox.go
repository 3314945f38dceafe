package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	OutboxAggregateTransaction OutboxAggregateType = "transaction"
	OutboxAggregateCustomer    OutboxAggregateType = "customer"
	OutboxAggregateReward      OutboxAggregateType = "reward"
	OutboxAggregateSegment     OutboxAggregateType = "segment"
)

var validOutboxAggregateTypes = []OutboxAggregateType{
	OutboxAggregateTransaction,
	OutboxAggregateCustomer,
	OutboxAggregateReward,
	OutboxAggregateSegment,
}

// IsValid reports whether the value matches the canonical aggregate enum.
func (t OutboxAggregateType) IsValid() bool {
	for _, candidate := range validOutboxAggregateTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// OutboxEventType names the domain event carried by an outbox row. Consumers
// switch on this to decide which notification to produce.
type OutboxEventType string

const (
	EventTransactionSettled   OutboxEventType = "transaction.settled"
	EventTransactionCancelled OutboxEventType = "transaction.cancelled"
	EventPointsEarned         OutboxEventType = "points.earned"
	EventPointsSpent          OutboxEventType = "points.spent"
	EventPointsExpired        OutboxEventType = "points.expired"
	EventTierChanged          OutboxEventType = "tier.changed"
	EventRewardGranted        OutboxEventType = "reward.granted"
	EventRewardRevoked        OutboxEventType = "reward.revoked"
	EventRewardRedeemed       OutboxEventType = "reward.redeemed"
	EventSegmentRecomputed    OutboxEventType = "segment.recomputed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventTransactionSettled,
	EventTransactionCancelled,
	EventPointsEarned,
	EventPointsSpent,
	EventPointsExpired,
	EventTierChanged,
	EventRewardGranted,
	EventRewardRevoked,
	EventRewardRedeemed,
	EventSegmentRecomputed,
}

// IsValid reports whether the value matches the canonical event enum.
func (t OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
