package segments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkpoint/loyalty-backend/pkg/db/models"
	"github.com/forkpoint/loyalty-backend/pkg/enums"
)

// PurchaseStats are the behavioral aggregates criteria are matched against,
// derived from completed transactions inside the lookback window.
type PurchaseStats struct {
	PurchaseCount int
	TotalCents    int64
	AvgOrderCents int64
}

// Repository manages segment definitions and the derived membership rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListAutomaticByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]models.Segment, error)
	// PurchaseStats aggregates completed transactions since the given time;
	// a zero time means unbounded history.
	PurchaseStats(ctx context.Context, customerID uuid.UUID, since time.Time) (*PurchaseStats, error)
	DeleteMembershipByCustomer(ctx context.Context, segmentID, customerID uuid.UUID) error
	CreateMembership(ctx context.Context, membership *models.CustomerSegment) error
	ListMembership(ctx context.Context, segmentID uuid.UUID) ([]models.CustomerSegment, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a segment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListAutomaticByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]models.Segment, error) {
	var segments []models.Segment
	err := r.db.WithContext(ctx).
		Where("restaurant_id = ?", restaurantID).
		Where("is_automatic = ?", true).
		Order("created_at ASC").
		Find(&segments).Error
	return segments, err
}

func (r *repository) PurchaseStats(ctx context.Context, customerID uuid.UUID, since time.Time) (*PurchaseStats, error) {
	var row struct {
		PurchaseCount int
		TotalCents    int64
	}
	query := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Select("COUNT(*) AS purchase_count, COALESCE(SUM(final_cents), 0) AS total_cents").
		Where("customer_id = ?", customerID).
		Where("status = ?", enums.TransactionStatusCompleted)
	if !since.IsZero() {
		query = query.Where("created_at >= ?", since)
	}
	if err := query.Scan(&row).Error; err != nil {
		return nil, err
	}

	stats := &PurchaseStats{PurchaseCount: row.PurchaseCount, TotalCents: row.TotalCents}
	if stats.PurchaseCount > 0 {
		stats.AvgOrderCents = stats.TotalCents / int64(stats.PurchaseCount)
	}
	return stats, nil
}

func (r *repository) DeleteMembershipByCustomer(ctx context.Context, segmentID, customerID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("segment_id = ?", segmentID).
		Where("customer_id = ?", customerID).
		Delete(&models.CustomerSegment{}).Error
}

func (r *repository) CreateMembership(ctx context.Context, membership *models.CustomerSegment) error {
	return r.db.WithContext(ctx).Create(membership).Error
}

func (r *repository) ListMembership(ctx context.Context, segmentID uuid.UUID) ([]models.CustomerSegment, error) {
	var rows []models.CustomerSegment
	err := r.db.WithContext(ctx).
		Where("segment_id = ?", segmentID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
