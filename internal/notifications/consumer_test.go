package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkpoint/loyalty-backend/internal/customers"
	"github.com/forkpoint/loyalty-backend/pkg/db/models"
	"github.com/forkpoint/loyalty-backend/pkg/enums"
	"github.com/forkpoint/loyalty-backend/pkg/logger"
	"github.com/forkpoint/loyalty-backend/pkg/outbox"
	"github.com/forkpoint/loyalty-backend/pkg/outbox/idempotency"
	"github.com/forkpoint/loyalty-backend/pkg/pagination"
)

type stubNotificationRepo struct {
	created   []*models.Notification
	createErr error

	listRows   []models.Notification
	listNext   *pagination.Cursor
	markResult notificationMarkResult
	markAll    int64
}

func (s *stubNotificationRepo) WithTx(tx *gorm.DB) Repository { return s }

func (s *stubNotificationRepo) Create(ctx context.Context, notification *models.Notification) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.created = append(s.created, notification)
	return nil
}

func (s *stubNotificationRepo) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *pagination.Cursor, error) {
	return s.listRows, s.listNext, nil
}

func (s *stubNotificationRepo) MarkRead(ctx context.Context, customerID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error) {
	return s.markResult, nil
}

func (s *stubNotificationRepo) MarkAllRead(ctx context.Context, customerID uuid.UUID, now time.Time) (int64, error) {
	return s.markAll, nil
}

type stubCustomerRepo struct {
	customers map[uuid.UUID]*models.Customer
}

func (s *stubCustomerRepo) WithTx(tx *gorm.DB) customers.Repository { return s }

func (s *stubCustomerRepo) Get(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	customer, ok := s.customers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *customer
	return &copied, nil
}

func (s *stubCustomerRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	return s.Get(ctx, id)
}

func (s *stubCustomerRepo) Save(ctx context.Context, customer *models.Customer) error {
	copied := *customer
	s.customers[customer.ID] = &copied
	return nil
}

func (s *stubCustomerRepo) GetRestaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubCustomerRepo) ListIDsByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

type stubStore struct {
	keys   map[string]bool
	setErr error
}

func newStubStore() *stubStore {
	return &stubStore{keys: map[string]bool{}}
}

func (s *stubStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if s.setErr != nil {
		return false, s.setErr
	}
	if s.keys[key] {
		return false, nil
	}
	s.keys[key] = true
	return true, nil
}

func (s *stubStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(s.keys, key)
	}
	return nil
}

func (s *stubStore) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func testConsumer(t *testing.T, repo Repository, customerRepo customers.Repository, store idempotency.Store) *Consumer {
	t.Helper()
	manager, err := idempotency.NewManager(store, time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return &Consumer{
		repo:        repo,
		customers:   customerRepo,
		idempotency: manager,
		logg:        testLogger(t),
	}
}

func eventMessage(t *testing.T, eventType enums.OutboxEventType, eventID uuid.UUID, data map[string]any) *pubsub.Message {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &pubsub.Message{
		ID:   eventID.String(),
		Data: envelope,
		Attributes: map[string]string{
			"event_type": string(eventType),
		},
	}
}

func TestProcessCreatesNotification(t *testing.T) {
	customer := &models.Customer{ID: uuid.New(), RestaurantID: uuid.New()}
	repo := &stubNotificationRepo{}
	consumer := testConsumer(t, repo,
		&stubCustomerRepo{customers: map[uuid.UUID]*models.Customer{customer.ID: customer}},
		newStubStore())

	msg := eventMessage(t, enums.EventPointsEarned, uuid.New(), map[string]any{
		"customerId":  customer.ID,
		"orderNumber": "ORD-1",
		"points":      25,
	})

	result := consumer.process(context.Background(), msg)
	if !result.ack || result.nack {
		t.Fatalf("expected ack, got %+v", result)
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one notification, got %d", len(repo.created))
	}
	row := repo.created[0]
	if row.Title != "Points earned" {
		t.Fatalf("unexpected title %q", row.Title)
	}
	if row.Body != "You earned 25 points on order ORD-1." {
		t.Fatalf("unexpected body %q", row.Body)
	}
	if row.CustomerID == nil || *row.CustomerID != customer.ID {
		t.Fatal("expected notification bound to the customer")
	}
	if row.RestaurantID != customer.RestaurantID {
		t.Fatal("expected restaurant scope from the customer row")
	}
	if row.Kind != enums.EventPointsEarned {
		t.Fatalf("unexpected kind %q", row.Kind)
	}
}

func TestProcessAcksUnknownEventType(t *testing.T) {
	repo := &stubNotificationRepo{}
	consumer := testConsumer(t, repo, &stubCustomerRepo{customers: map[uuid.UUID]*models.Customer{}}, newStubStore())

	msg := eventMessage(t, enums.EventPointsEarned, uuid.New(), nil)
	msg.Attributes["event_type"] = "not.a.real.event"

	result := consumer.process(context.Background(), msg)
	if !result.ack {
		t.Fatal("unknown event types must be acked, not retried")
	}
	if len(repo.created) != 0 {
		t.Fatal("expected no notification")
	}
}

func TestProcessDeduplicatesRedeliveries(t *testing.T) {
	customer := &models.Customer{ID: uuid.New(), RestaurantID: uuid.New()}
	repo := &stubNotificationRepo{}
	consumer := testConsumer(t, repo,
		&stubCustomerRepo{customers: map[uuid.UUID]*models.Customer{customer.ID: customer}},
		newStubStore())

	msg := eventMessage(t, enums.EventPointsEarned, uuid.New(), map[string]any{
		"customerId": customer.ID,
		"points":     10,
	})

	first := consumer.process(context.Background(), msg)
	second := consumer.process(context.Background(), msg)
	if !first.ack || !second.ack {
		t.Fatal("expected both deliveries acked")
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one notification across redeliveries, got %d", len(repo.created))
	}
}

func TestProcessNacksAndClearsMarkerOnFailure(t *testing.T) {
	customer := &models.Customer{ID: uuid.New(), RestaurantID: uuid.New()}
	repo := &stubNotificationRepo{createErr: errors.New("write failed")}
	consumer := testConsumer(t, repo,
		&stubCustomerRepo{customers: map[uuid.UUID]*models.Customer{customer.ID: customer}},
		newStubStore())

	msg := eventMessage(t, enums.EventPointsEarned, uuid.New(), map[string]any{
		"customerId": customer.ID,
		"points":     10,
	})

	result := consumer.process(context.Background(), msg)
	if !result.nack {
		t.Fatal("expected nack on handler failure")
	}

	// The marker was cleared, so the redelivery is processed rather than
	// swallowed as a duplicate.
	repo.createErr = nil
	result = consumer.process(context.Background(), msg)
	if !result.ack {
		t.Fatal("expected redelivery ack")
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected notification on retry, got %d", len(repo.created))
	}
}

func TestProcessNacksOnIdempotencyOutage(t *testing.T) {
	store := newStubStore()
	store.setErr = errors.New("redis down")
	repo := &stubNotificationRepo{}
	consumer := testConsumer(t, repo, &stubCustomerRepo{customers: map[uuid.UUID]*models.Customer{}}, store)

	msg := eventMessage(t, enums.EventPointsEarned, uuid.New(), nil)
	result := consumer.process(context.Background(), msg)
	if !result.nack {
		t.Fatal("expected nack when the idempotency store is unavailable")
	}
}

func TestProcessSkipsInternalEvents(t *testing.T) {
	customer := &models.Customer{ID: uuid.New(), RestaurantID: uuid.New()}
	repo := &stubNotificationRepo{}
	consumer := testConsumer(t, repo,
		&stubCustomerRepo{customers: map[uuid.UUID]*models.Customer{customer.ID: customer}},
		newStubStore())

	msg := eventMessage(t, enums.EventTransactionSettled, uuid.New(), map[string]any{
		"customerId": customer.ID,
	})
	result := consumer.process(context.Background(), msg)
	if !result.ack {
		t.Fatal("expected internal event acked")
	}
	if len(repo.created) != 0 {
		t.Fatal("settlement events are not customer-facing")
	}
}

func TestProcessFallsBackToAggregateID(t *testing.T) {
	customer := &models.Customer{ID: uuid.New(), RestaurantID: uuid.New()}
	repo := &stubNotificationRepo{}
	consumer := testConsumer(t, repo,
		&stubCustomerRepo{customers: map[uuid.UUID]*models.Customer{customer.ID: customer}},
		newStubStore())

	msg := eventMessage(t, enums.EventTierChanged, uuid.New(), map[string]any{
		"tierName": "Gold",
	})
	msg.Attributes["aggregate_type"] = string(enums.OutboxAggregateCustomer)
	msg.Attributes["aggregate_id"] = customer.ID.String()

	result := consumer.process(context.Background(), msg)
	if !result.ack {
		t.Fatal("expected ack")
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected notification via aggregate fallback, got %d", len(repo.created))
	}
	if repo.created[0].Body != "Your membership tier is now Gold." {
		t.Fatalf("unexpected body %q", repo.created[0].Body)
	}
}

func TestRenderTemplates(t *testing.T) {
	tests := []struct {
		eventType enums.OutboxEventType
		payload   eventPayload
		title     string
		body      string
	}{
		{enums.EventPointsSpent, eventPayload{Points: 10, OrderNumber: "ORD-2"}, "Points spent", "You spent 10 points on order ORD-2."},
		{enums.EventPointsExpired, eventPayload{Points: 55}, "Points expired", "55 of your points expired."},
		{enums.EventRewardGranted, eventPayload{}, "New reward", "You unlocked a new reward."},
		{enums.EventRewardRedeemed, eventPayload{PointsCost: 100}, "Reward redeemed", "Reward redeemed for 100 points."},
		{enums.EventRewardRevoked, eventPayload{}, "Reward removed", "A reward was removed from your account."},
		{enums.EventTransactionCancelled, eventPayload{OrderNumber: "ORD-3", Reason: "dispute"}, "Order cancelled", "Order ORD-3 was cancelled: dispute"},
		{enums.EventSegmentRecomputed, eventPayload{}, "", ""},
	}
	for _, tc := range tests {
		title, body := render(tc.eventType, tc.payload)
		if title != tc.title || body != tc.body {
			t.Fatalf("render(%s) = %q/%q, want %q/%q", tc.eventType, title, body, tc.title, tc.body)
		}
	}
}
