package settlement

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkpoint/loyalty-backend/pkg/db/models"
)

// Repository manages transactions and their applied-campaign join rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) error
	Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error)
	ExistsOrderNumber(ctx context.Context, orderNumber string) (bool, error)
	// SaveCancellation flips status and writes the cancellation fields.
	SaveCancellation(ctx context.Context, txn *models.Transaction) error
	DeleteTransactionCampaign(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a transaction repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Campaigns").
		Where("id = ?", id).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) ExistsOrderNumber(ctx context.Context, orderNumber string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("order_number = ?", orderNumber).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) SaveCancellation(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ?", txn.ID).
		Updates(map[string]any{
			"status":       txn.Status,
			"notes":        txn.Notes,
			"cancelled_at": txn.CancelledAt,
		}).Error
}

func (r *repository) DeleteTransactionCampaign(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.TransactionCampaign{}).Error
}
