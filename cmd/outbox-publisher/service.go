package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkpoint/loyalty-backend/pkg/config"
	"github.com/forkpoint/loyalty-backend/pkg/db/models"
	"github.com/forkpoint/loyalty-backend/pkg/logger"
	"github.com/forkpoint/loyalty-backend/pkg/outbox"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	EventsPublisher() *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

// publisher and publishResult narrow the Pub/Sub surface so tests can inject
// fakes through ServiceParams.PublisherFactory.
type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type publisherFactory func() publisher

// nonRetryableError marks rows the dispatcher must park instead of retrying.
type nonRetryableError struct {
	err error
}

func (e nonRetryableError) Error() string {
	if e.err == nil {
		return "non-retryable error"
	}
	return e.err.Error()
}

func (e nonRetryableError) Unwrap() error { return e.err }

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	PublisherFactory publisherFactory
}

// Service drains the outbox table to the loyalty events topic with
// per-row retry accounting and exponential poll backoff on batch errors.
type Service struct {
	cfg              *config.Config
	logg             *logger.Logger
	db               dbClient
	repo             outboxRepository
	pubsub           pubSubClient
	publisherFactory publisherFactory
	batchSize        int
	maxAttempts      int
	pollInterval     time.Duration
	publishTimeout   time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}

	svc := &Service{
		cfg:              params.Config,
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		pubsub:           params.PubSub,
		publisherFactory: params.PublisherFactory,
		batchSize:        params.Config.Outbox.BatchSize,
		maxAttempts:      params.Config.Outbox.MaxAttempts,
		publishTimeout:   params.Config.PubSub.PublishTimeout,
		pollInterval:     time.Duration(params.Config.Outbox.PollIntervalMS) * time.Millisecond,
	}
	if svc.publisherFactory == nil {
		svc.publisherFactory = func() publisher {
			pub := params.PubSub.EventsPublisher()
			if pub == nil {
				return nil
			}
			return gcpPublisher{pub: pub}
		}
	}
	if svc.batchSize <= 0 {
		svc.batchSize = defaultBatchSize
	}
	if svc.maxAttempts <= 0 {
		svc.maxAttempts = defaultMaxAttempts
	}
	if svc.publishTimeout <= 0 {
		svc.publishTimeout = defaultPublishTimeout
	}
	if svc.pollInterval <= 0 {
		svc.pollInterval = defaultPollMs * time.Millisecond
	}
	return svc, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	return pingDependency(ctx, s.logg, "pubsub", s.pubsub.Ping)
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run polls the outbox until the context is canceled. Batch errors stretch
// the poll interval exponentially up to maxBackoff; a clean batch resets it.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	interval := s.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox publisher context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval
		if processed {
			continue
		}
		if err := s.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

// processBatch publishes one fetched batch inside a single transaction so the
// SKIP LOCKED row claims hold until every row is marked.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		processed = true
		for _, event := range events {
			if err := s.publishEvent(ctx, event); err != nil {
				if markErr := s.handlePublishFailure(ctx, tx, event, err); markErr != nil {
					return markErr
				}
				continue
			}
			if markErr := s.repo.MarkPublishedTx(tx, event.ID); markErr != nil {
				return fmt.Errorf("mark published %s: %w", event.ID, markErr)
			}
			s.logg.Info(s.logg.WithFields(ctx, s.eventFields(event)), "outbox event published")
		}
		return nil
	})
	return processed, err
}

// handlePublishFailure routes a failed row: non-retryable and exhausted rows
// are parked terminally, everything else gets its attempt count bumped.
func (s *Service) handlePublishFailure(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, cause error) error {
	fields := s.eventFields(event)

	var nonRetry nonRetryableError
	if errors.As(cause, &nonRetry) {
		s.warnEvent(ctx, fields, cause, "outbox event will not be retried")
		if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
		return nil
	}

	nextAttempt := event.AttemptCount + 1
	fields["attempt_count"] = nextAttempt
	if nextAttempt >= s.maxAttempts {
		terminalErr := fmt.Errorf("max publish attempts reached: %w", cause)
		s.warnEvent(ctx, fields, terminalErr, "outbox event exhausted retries")
		if err := s.repo.MarkTerminalTx(tx, event.ID, terminalErr, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
		return nil
	}

	s.warnEvent(ctx, fields, cause, "outbox publish failed")
	if err := s.repo.MarkFailedTx(tx, event.ID, cause); err != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) warnEvent(ctx context.Context, fields map[string]any, cause error, msg string) {
	logCtx := s.logg.WithFields(ctx, fields)
	logCtx = s.logg.WithField(logCtx, "error", cause.Error())
	s.logg.Warn(logCtx, msg)
}

func (s *Service) publishEvent(ctx context.Context, event models.OutboxEvent) error {
	if !event.EventType.IsValid() {
		return nonRetryableError{err: fmt.Errorf("unsupported event type %s", event.EventType)}
	}
	if event.AggregateID == uuid.Nil {
		return nonRetryableError{err: errors.New("missing aggregate_id")}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nonRetryableError{err: fmt.Errorf("decode envelope: %w", err)}
	}

	pub := s.publisherFactory()
	if pub == nil {
		return nonRetryableError{err: errors.New("events publisher not configured")}
	}

	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return nonRetryableError{err: errors.New("publisher returned nil result")}
	}
	if _, err := result.Get(publishCtx); err != nil {
		return err
	}
	return nil
}

func (s *Service) eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}

type gcpPublisher struct {
	pub *gcppubsub.Publisher
}

func (g gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return g.pub.Publish(ctx, msg)
}
