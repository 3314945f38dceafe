package tiers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkpoint/loyalty-backend/pkg/db/models"
)

// Repository manages tier definitions and transition history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, id uuid.UUID) (*models.Tier, error)
	// ListActive returns the restaurant's active tiers ordered ascending by
	// level; the upgrade scan depends on this ordering.
	ListActive(ctx context.Context, restaurantID uuid.UUID) ([]models.Tier, error)
	CreateHistory(ctx context.Context, history *models.TierHistory) error
	ListHistory(ctx context.Context, customerID uuid.UUID) ([]models.TierHistory, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a tier repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.Tier, error) {
	var tier models.Tier
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&tier).Error
	if err != nil {
		return nil, err
	}
	return &tier, nil
}

func (r *repository) ListActive(ctx context.Context, restaurantID uuid.UUID) ([]models.Tier, error) {
	var rows []models.Tier
	err := r.db.WithContext(ctx).
		Where("restaurant_id = ?", restaurantID).
		Where("is_active = ?", true).
		Order("level ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) CreateHistory(ctx context.Context, history *models.TierHistory) error {
	return r.db.WithContext(ctx).Create(history).Error
}

func (r *repository) ListHistory(ctx context.Context, customerID uuid.UUID) ([]models.TierHistory, error) {
	var rows []models.TierHistory
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}
