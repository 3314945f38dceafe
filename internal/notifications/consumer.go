package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/forkpoint/loyalty-backend/internal/customers"
	"github.com/forkpoint/loyalty-backend/pkg/db/models"
	"github.com/forkpoint/loyalty-backend/pkg/enums"
	"github.com/forkpoint/loyalty-backend/pkg/logger"
	"github.com/forkpoint/loyalty-backend/pkg/outbox"
	"github.com/forkpoint/loyalty-backend/pkg/outbox/idempotency"
)

const loyaltyNotificationConsumer = "loyalty-notifications"

// Consumer watches domain events and materializes customer-facing
// notification rows. Delivery channels are somebody else's problem; this is
// the durable sink the dashboard reads.
type Consumer struct {
	repo         Repository
	customers    customers.Repository
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds the loyalty notification consumer.
func NewConsumer(repo Repository, customerRepo customers.Repository, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if customerRepo == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("domain subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		customers:    customerRepo,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	rawType := msg.Attributes["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": rawType,
	})

	eventType, err := enums.ParseOutboxEventType(rawType)
	if err != nil {
		c.logg.Info(logCtx, "skipping unknown event type")
		return processResult{ack: true}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, loyaltyNotificationConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.handle(ctx, eventType, msg, envelope); err != nil {
		c.logg.Error(logCtx, "notification handling failed", err)
		_ = c.idempotency.Delete(ctx, loyaltyNotificationConsumer, eventID)
		return processResult{nack: true}
	}
	return processResult{ack: true}
}

type eventPayload struct {
	CustomerID  uuid.UUID `json:"customerId"`
	OrderNumber string    `json:"orderNumber,omitempty"`
	Points      int       `json:"points,omitempty"`
	PointsCost  int       `json:"pointsCost,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	TierName    string    `json:"tierName,omitempty"`
}

func (c *Consumer) handle(ctx context.Context, eventType enums.OutboxEventType, msg *pubsub.Message, envelope outbox.PayloadEnvelope) error {
	var payload eventPayload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return fmt.Errorf("parse payload: %w", err)
	}
	if payload.CustomerID == uuid.Nil {
		// Customer-aggregate events carry the customer as the aggregate id.
		if msg.Attributes["aggregate_type"] == string(enums.OutboxAggregateCustomer) {
			id, err := uuid.Parse(msg.Attributes["aggregate_id"])
			if err != nil {
				return fmt.Errorf("parse aggregate id: %w", err)
			}
			payload.CustomerID = id
		}
	}
	if payload.CustomerID == uuid.Nil {
		// Nothing customer-facing to write.
		return nil
	}

	title, body := render(eventType, payload)
	if title == "" {
		return nil
	}

	customer, err := c.customers.Get(ctx, payload.CustomerID)
	if err != nil {
		return fmt.Errorf("load customer: %w", err)
	}

	customerID := customer.ID
	return c.repo.Create(ctx, &models.Notification{
		RestaurantID: customer.RestaurantID,
		CustomerID:   &customerID,
		Kind:         eventType,
		Title:        title,
		Body:         body,
		Payload:      envelope.Data,
	})
}

func render(eventType enums.OutboxEventType, payload eventPayload) (string, string) {
	switch eventType {
	case enums.EventPointsEarned:
		return "Points earned", fmt.Sprintf("You earned %d points on order %s.", payload.Points, payload.OrderNumber)
	case enums.EventPointsSpent:
		return "Points spent", fmt.Sprintf("You spent %d points on order %s.", payload.Points, payload.OrderNumber)
	case enums.EventPointsExpired:
		return "Points expired", fmt.Sprintf("%d of your points expired.", payload.Points)
	case enums.EventTierChanged:
		if payload.TierName != "" {
			return "Membership tier updated", fmt.Sprintf("Your membership tier is now %s.", payload.TierName)
		}
		return "Membership tier updated", "Your membership tier changed."
	case enums.EventRewardGranted:
		return "New reward", "You unlocked a new reward."
	case enums.EventRewardRedeemed:
		if payload.PointsCost > 0 {
			return "Reward redeemed", fmt.Sprintf("Reward redeemed for %d points.", payload.PointsCost)
		}
		return "Reward redeemed", "Your reward has been redeemed."
	case enums.EventRewardRevoked:
		return "Reward removed", "A reward was removed from your account."
	case enums.EventTransactionCancelled:
		body := fmt.Sprintf("Order %s was cancelled.", payload.OrderNumber)
		if payload.Reason != "" {
			body = fmt.Sprintf("Order %s was cancelled: %s", payload.OrderNumber, payload.Reason)
		}
		return "Order cancelled", body
	default:
		// Settlement and segmentation events stay internal.
		return "", ""
	}
}
