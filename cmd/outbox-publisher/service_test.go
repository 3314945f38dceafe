package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkpoint/loyalty-backend/pkg/config"
	"github.com/forkpoint/loyalty-backend/pkg/db/models"
	"github.com/forkpoint/loyalty-backend/pkg/enums"
	"github.com/forkpoint/loyalty-backend/pkg/logger"
	"github.com/forkpoint/loyalty-backend/pkg/outbox"
)

type fakeDB struct {
	pingErr error
}

func (f *fakeDB) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeDB) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type fakePubSub struct {
	pingErr error
}

func (f *fakePubSub) Ping(ctx context.Context) error        { return f.pingErr }
func (f *fakePubSub) EventsPublisher() *gcppubsub.Publisher { return nil }

type fakeRepo struct {
	pending   []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
	lastErr   error
	fetchErr  error
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if limit < len(f.pending) {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	f.failed = append(f.failed, id)
	f.lastErr = err
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.terminal = append(f.terminal, id)
	f.lastErr = err
	return nil
}

type fakeResult struct {
	id  string
	err error
}

func (r fakeResult) Get(ctx context.Context) (string, error) { return r.id, r.err }

type fakePublisher struct {
	messages []*gcppubsub.Message
	err      error
}

func (p *fakePublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	p.messages = append(p.messages, msg)
	return fakeResult{id: "server-id", err: p.err}
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func newTestService(t *testing.T, repo *fakeRepo, pub *fakePublisher) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Config:     &config.Config{},
		Logger:     testLogger(t),
		DB:         &fakeDB{},
		PubSub:     &fakePubSub{},
		Repository: repo,
		PublisherFactory: func() publisher {
			return pub
		},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func outboxEvent(t *testing.T, attempts int) models.OutboxEvent {
	t.Helper()
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"points":25}`),
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPointsEarned,
		AggregateType: enums.OutboxAggregateCustomer,
		AggregateID:   uuid.New(),
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
		AttemptCount:  attempts,
	}
}

func TestNewServiceAppliesDefaults(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{})

	if svc.batchSize != defaultBatchSize {
		t.Fatalf("batch size %d, want %d", svc.batchSize, defaultBatchSize)
	}
	if svc.maxAttempts != defaultMaxAttempts {
		t.Fatalf("max attempts %d, want %d", svc.maxAttempts, defaultMaxAttempts)
	}
	if svc.pollInterval != defaultPollMs*time.Millisecond {
		t.Fatalf("poll interval %v", svc.pollInterval)
	}
	if svc.publishTimeout != defaultPublishTimeout {
		t.Fatalf("publish timeout %v", svc.publishTimeout)
	}
}

func TestNewServiceValidatesDeps(t *testing.T) {
	_, err := NewService(ServiceParams{
		Config: &config.Config{},
		Logger: testLogger(t),
		DB:     &fakeDB{},
		PubSub: &fakePubSub{},
	})
	if err == nil {
		t.Fatal("expected error without repository")
	}
}

func TestProcessBatchPublishesAndMarks(t *testing.T) {
	event := outboxEvent(t, 0)
	repo := &fakeRepo{pending: []models.OutboxEvent{event}}
	pub := &fakePublisher{}
	svc := newTestService(t, repo, pub)

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if !processed {
		t.Fatal("expected processed batch")
	}
	if len(repo.published) != 1 || repo.published[0] != event.ID {
		t.Fatalf("expected event marked published, got %v", repo.published)
	}
	if len(repo.failed) != 0 || len(repo.terminal) != 0 {
		t.Fatal("expected no failure bookkeeping")
	}

	if len(pub.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(pub.messages))
	}
	msg := pub.messages[0]
	if msg.Attributes["event_type"] != string(enums.EventPointsEarned) {
		t.Fatalf("event_type attribute %q", msg.Attributes["event_type"])
	}
	if msg.Attributes["aggregate_id"] != event.AggregateID.String() {
		t.Fatal("aggregate_id attribute mismatch")
	}
	if msg.Attributes["event_id"] == "" {
		t.Fatal("expected event_id from the envelope")
	}
	if string(msg.Data) != string(event.Payload) {
		t.Fatal("message data must carry the raw payload")
	}
}

func TestProcessBatchEmptyIsIdle(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakePublisher{})

	processed, err := svc.processBatch(context.Background())
	if err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if processed {
		t.Fatal("expected idle batch")
	}
}

func TestProcessBatchRecordsTransientFailure(t *testing.T) {
	event := outboxEvent(t, 0)
	repo := &fakeRepo{pending: []models.OutboxEvent{event}}
	pub := &fakePublisher{err: errors.New("deadline exceeded")}
	svc := newTestService(t, repo, pub)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(repo.failed) != 1 || repo.failed[0] != event.ID {
		t.Fatalf("expected failure recorded, got %v", repo.failed)
	}
	if len(repo.published) != 0 || len(repo.terminal) != 0 {
		t.Fatal("expected only a retry mark")
	}
}

func TestProcessBatchParksExhaustedRetries(t *testing.T) {
	event := outboxEvent(t, defaultMaxAttempts-1)
	repo := &fakeRepo{pending: []models.OutboxEvent{event}}
	pub := &fakePublisher{err: errors.New("deadline exceeded")}
	svc := newTestService(t, repo, pub)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(repo.terminal) != 1 || repo.terminal[0] != event.ID {
		t.Fatalf("expected event parked, got %v", repo.terminal)
	}
	if len(repo.failed) != 0 {
		t.Fatal("exhausted event must not be marked for another retry")
	}
	if repo.lastErr == nil || !strings.Contains(repo.lastErr.Error(), "max publish attempts") {
		t.Fatalf("expected terminal reason, got %v", repo.lastErr)
	}
}

func TestProcessBatchParksMalformedRows(t *testing.T) {
	valid := outboxEvent(t, 0)

	badType := outboxEvent(t, 0)
	badType.EventType = enums.OutboxEventType("mystery.event")

	noAggregate := outboxEvent(t, 0)
	noAggregate.AggregateID = uuid.Nil

	badPayload := outboxEvent(t, 0)
	badPayload.Payload = json.RawMessage(`{notjson`)

	repo := &fakeRepo{pending: []models.OutboxEvent{badType, noAggregate, badPayload, valid}}
	pub := &fakePublisher{}
	svc := newTestService(t, repo, pub)

	if _, err := svc.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch: %v", err)
	}
	if len(repo.terminal) != 3 {
		t.Fatalf("expected 3 parked rows, got %d", len(repo.terminal))
	}
	if len(repo.published) != 1 || repo.published[0] != valid.ID {
		t.Fatal("expected the valid row to publish despite poisoned neighbors")
	}
	if len(pub.messages) != 1 {
		t.Fatalf("malformed rows must never reach the publisher, got %d messages", len(pub.messages))
	}
}

func TestProcessBatchPropagatesFetchError(t *testing.T) {
	repo := &fakeRepo{fetchErr: errors.New("db down")}
	svc := newTestService(t, repo, &fakePublisher{})

	if _, err := svc.processBatch(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
}

func TestRunFailsFastWhenDependenciesDown(t *testing.T) {
	svc, err := NewService(ServiceParams{
		Config:     &config.Config{},
		Logger:     testLogger(t),
		DB:         &fakeDB{pingErr: errors.New("refused")},
		PubSub:     &fakePubSub{},
		Repository: &fakeRepo{},
		PublisherFactory: func() publisher {
			return &fakePublisher{}
		},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected readiness failure")
	}
}

func TestNextBackoffDoublesAndCaps(t *testing.T) {
	base := 500 * time.Millisecond
	got := nextBackoff(base, base, maxBackoff)
	if got != time.Second {
		t.Fatalf("expected doubling, got %v", got)
	}
	got = nextBackoff(8*time.Second, base, maxBackoff)
	if got != maxBackoff {
		t.Fatalf("expected cap at %v, got %v", maxBackoff, got)
	}
	if got := nextBackoff(0, base, maxBackoff); got != time.Second {
		t.Fatalf("expected zero treated as base, got %v", got)
	}
}

func TestWithJitterBounds(t *testing.T) {
	base := time.Second
	for i := 0; i < 50; i++ {
		d := withJitter(base)
		if d < base || d >= base+jitterWindow {
			t.Fatalf("jittered duration %v out of range", d)
		}
	}
	if withJitter(0) != 0 {
		t.Fatal("expected zero passthrough")
	}
}
