package ledger

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/forkpoint/loyalty-backend/internal/customers"
	"github.com/forkpoint/loyalty-backend/pkg/db/models"
	"github.com/forkpoint/loyalty-backend/pkg/enums"
	"github.com/forkpoint/loyalty-backend/pkg/errors"
	"github.com/forkpoint/loyalty-backend/pkg/logger"
	"github.com/forkpoint/loyalty-backend/pkg/pagination"
)

const expiryBatchSize = 500

// Service is the point ledger. Every write happens inside the caller's
// database transaction so the balance snapshot and the customer aggregate
// can never drift apart.
type Service interface {
	// Record appends a ledger entry and moves the customer balance by
	// input.Amount. A negative delta that would drive the balance below zero
	// is rejected with INSUFFICIENT_POINTS before any write.
	Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.PointHistory, error)
	// RecordRevocation writes an entry stating the full requested clawback
	// while clamping the actual balance decrement so the customer never goes
	// negative. Returns the entry and the points actually debited.
	RecordRevocation(ctx context.Context, tx *gorm.DB, input RevocationInput) (*models.PointHistory, int, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.PointHistory, string, error)
	// ExpireDue sweeps earned entries past their expiry and emits the exact
	// negative counter-entries, one transaction per customer.
	ExpireDue(ctx context.Context, now time.Time) (*ExpireResult, error)
}

// RecordInput captures one signed ledger delta.
type RecordInput struct {
	CustomerID    uuid.UUID
	Amount        int
	Type          enums.PointEntryType
	Source        enums.PointSource
	SourceID      *uuid.UUID
	Description   *string
	ExpiresInDays *int
}

// RevocationInput captures a clamped clawback; Points is the full intended
// revocation, always positive.
type RevocationInput struct {
	CustomerID  uuid.UUID
	Points      int
	Source      enums.PointSource
	SourceID    *uuid.UUID
	Description *string
}

// ExpireResult summarizes one expiry sweep.
type ExpireResult struct {
	CustomersProcessed int
	EntriesExpired     int
	PointsExpired      int
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo      Repository
	customers customers.Repository
	runner    txRunner
	logg      *logger.Logger
}

// NewService wires the ledger service. The runner is only needed by the
// expiry sweep; request-path callers supply their own transaction.
func NewService(repo Repository, customerRepo customers.Repository, runner txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if customerRepo == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	return &service{repo: repo, customers: customerRepo, runner: runner, logg: logg}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.PointHistory, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if input.CustomerID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "customer id is required")
	}
	if input.Amount == 0 {
		return nil, errors.New(errors.CodeValidation, "amount must be non-zero")
	}
	if !input.Type.IsValid() {
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("invalid point entry type %q", input.Type))
	}
	if !input.Source.IsValid() {
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("invalid point source %q", input.Source))
	}

	customerRepo := s.customers.WithTx(tx)
	customer, err := customerRepo.GetForUpdate(ctx, input.CustomerID)
	if err != nil {
		return nil, translateNotFound(err, "customer not found")
	}

	newBalance := customer.Points + input.Amount
	if newBalance < 0 {
		return nil, errors.New(errors.CodeInsufficientPoints,
			fmt.Sprintf("balance %d cannot absorb delta %d", customer.Points, input.Amount))
	}

	customer.Points = newBalance
	if err := customerRepo.Save(ctx, customer); err != nil {
		return nil, err
	}

	entry := &models.PointHistory{
		CustomerID:  input.CustomerID,
		Amount:      input.Amount,
		Type:        input.Type,
		Source:      input.Source,
		SourceID:    input.SourceID,
		Balance:     newBalance,
		Description: input.Description,
	}
	if input.Type == enums.PointEntryTypeEarned && input.ExpiresInDays != nil && *input.ExpiresInDays > 0 {
		expires := time.Now().AddDate(0, 0, *input.ExpiresInDays)
		entry.ExpiresAt = &expires
	}

	if err := s.repo.WithTx(tx).Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) RecordRevocation(ctx context.Context, tx *gorm.DB, input RevocationInput) (*models.PointHistory, int, error) {
	if tx == nil {
		return nil, 0, fmt.Errorf("transaction required")
	}
	if input.CustomerID == uuid.Nil {
		return nil, 0, errors.New(errors.CodeValidation, "customer id is required")
	}
	if input.Points <= 0 {
		return nil, 0, errors.New(errors.CodeValidation, "revocation points must be positive")
	}
	if !input.Source.IsValid() {
		return nil, 0, errors.New(errors.CodeValidation, fmt.Sprintf("invalid point source %q", input.Source))
	}

	customerRepo := s.customers.WithTx(tx)
	customer, err := customerRepo.GetForUpdate(ctx, input.CustomerID)
	if err != nil {
		return nil, 0, translateNotFound(err, "customer not found")
	}

	debit := input.Points
	if debit > customer.Points {
		debit = customer.Points
	}
	newBalance := customer.Points - debit

	customer.Points = newBalance
	if err := customerRepo.Save(ctx, customer); err != nil {
		return nil, 0, err
	}

	// The entry states the full intended revocation even when the balance
	// floor clamped the actual decrement; the balance column stays accurate.
	entry := &models.PointHistory{
		CustomerID:  input.CustomerID,
		Amount:      -input.Points,
		Type:        enums.PointEntryTypeAdjusted,
		Source:      input.Source,
		SourceID:    input.SourceID,
		Balance:     newBalance,
		Description: input.Description,
	}
	if err := s.repo.WithTx(tx).Create(ctx, entry); err != nil {
		return nil, 0, err
	}
	return entry, debit, nil
}

func (s *service) ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.PointHistory, string, error) {
	if customerID == uuid.Nil {
		return nil, "", errors.New(errors.CodeValidation, "customer id is required")
	}
	entries, err := s.repo.ListByCustomer(ctx, customerID, params)
	if err != nil {
		return nil, "", err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	next := ""
	if len(entries) > limit {
		entries = entries[:limit]
		last := entries[len(entries)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	return entries, next, nil
}

func (s *service) ExpireDue(ctx context.Context, now time.Time) (*ExpireResult, error) {
	if s.runner == nil {
		return nil, fmt.Errorf("transaction runner required for expiry sweep")
	}

	due, err := s.repo.FindExpirable(ctx, now, expiryBatchSize)
	if err != nil {
		return nil, err
	}

	byCustomer := map[uuid.UUID][]models.PointHistory{}
	for _, entry := range due {
		byCustomer[entry.CustomerID] = append(byCustomer[entry.CustomerID], entry)
	}

	result := &ExpireResult{}
	var errs error
	for customerID, entries := range byCustomer {
		err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
			return s.expireForCustomer(ctx, tx, customerID, entries, now, result)
		})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("customer %s: %w", customerID, err))
			continue
		}
		result.CustomersProcessed++
	}
	return result, errs
}

func (s *service) expireForCustomer(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, entries []models.PointHistory, now time.Time, result *ExpireResult) error {
	customerRepo := s.customers.WithTx(tx)
	ledgerRepo := s.repo.WithTx(tx)

	customer, err := customerRepo.GetForUpdate(ctx, customerID)
	if err != nil {
		return err
	}

	for _, earned := range entries {
		debit := earned.Amount
		if debit > customer.Points {
			debit = customer.Points
		}
		customer.Points -= debit

		sourceID := earned.ID
		counter := &models.PointHistory{
			CustomerID: customerID,
			Amount:     -earned.Amount,
			Type:       enums.PointEntryTypeExpired,
			Source:     enums.PointSourcePointsExpiry,
			SourceID:   &sourceID,
			Balance:    customer.Points,
		}
		if err := ledgerRepo.Create(ctx, counter); err != nil {
			return err
		}
		if err := ledgerRepo.MarkExpired(ctx, earned.ID, now); err != nil {
			return err
		}
		result.EntriesExpired++
		result.PointsExpired += earned.Amount
	}

	return customerRepo.Save(ctx, customer)
}

func translateNotFound(err error, message string) error {
	if stderrors.Is(err, gorm.ErrRecordNotFound) {
		return errors.New(errors.CodeNotFound, message)
	}
	return err
}
