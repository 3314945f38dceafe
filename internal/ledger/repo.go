package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkpoint/loyalty-backend/pkg/db/models"
	"github.com/forkpoint/loyalty-backend/pkg/enums"
	"github.com/forkpoint/loyalty-backend/pkg/pagination"
)

// Repository manages persistence for point ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.PointHistory) error
	Latest(ctx context.Context, customerID uuid.UUID) (*models.PointHistory, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.PointHistory, error)
	SumAmounts(ctx context.Context, customerID uuid.UUID) (int, error)
	// FindExpirable returns earned entries whose expiry has passed and that
	// have not yet been offset by the sweep.
	FindExpirable(ctx context.Context, now time.Time, limit int) ([]models.PointHistory, error)
	MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.PointHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) Latest(ctx context.Context, customerID uuid.UUID) (*models.PointHistory, error) {
	var entry models.PointHistory
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Order("id DESC").
		First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) ListByCustomer(ctx context.Context, customerID uuid.UUID, params pagination.Params) ([]models.PointHistory, error) {
	query := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var entries []models.PointHistory
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) SumAmounts(ctx context.Context, customerID uuid.UUID) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.PointHistory{}).
		Where("customer_id = ?", customerID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return int(total), err
}

func (r *repository) FindExpirable(ctx context.Context, now time.Time, limit int) ([]models.PointHistory, error) {
	var entries []models.PointHistory
	err := r.db.WithContext(ctx).
		Where("type = ?", enums.PointEntryTypeEarned).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Where("expired_at IS NULL").
		Order("customer_id").
		Order("created_at ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *repository) MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.PointHistory{}).
		Where("id = ?", id).
		Update("expired_at", at).Error
}
