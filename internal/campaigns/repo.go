package campaigns

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkpoint/loyalty-backend/pkg/db/models"
	"github.com/forkpoint/loyalty-backend/pkg/enums"
)

// Repository manages campaign definitions and their usage counters.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	ListActive(ctx context.Context, restaurantID uuid.UUID, at time.Time) ([]models.Campaign, error)
	// CountUsage counts cap-relevant usage rows; stamp-revocation audit rows
	// are excluded.
	CountUsage(ctx context.Context, campaignID uuid.UUID) (int, error)
	CountUsageByCustomer(ctx context.Context, campaignID, customerID uuid.UUID) (int, error)
	CreateUsage(ctx context.Context, usage *models.CampaignUsage) error
	// DeleteUsageByTransaction removes the usage rows one settlement created,
	// restoring cap headroom. Returns how many rows were removed.
	DeleteUsageByTransaction(ctx context.Context, campaignID, customerID, transactionID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a campaign repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&campaign).Error
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (r *repository) ListActive(ctx context.Context, restaurantID uuid.UUID, at time.Time) ([]models.Campaign, error) {
	var rows []models.Campaign
	err := r.db.WithContext(ctx).
		Where("restaurant_id = ?", restaurantID).
		Where("is_active = ?", true).
		Where("starts_at <= ? AND ends_at >= ?", at, at).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) CountUsage(ctx context.Context, campaignID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CampaignUsage{}).
		Where("campaign_id = ?", campaignID).
		Where("kind = ?", enums.CampaignUsageKindUsage).
		Count(&count).Error
	return int(count), err
}

func (r *repository) CountUsageByCustomer(ctx context.Context, campaignID, customerID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CampaignUsage{}).
		Where("campaign_id = ?", campaignID).
		Where("customer_id = ?", customerID).
		Where("kind = ?", enums.CampaignUsageKindUsage).
		Count(&count).Error
	return int(count), err
}

func (r *repository) CreateUsage(ctx context.Context, usage *models.CampaignUsage) error {
	return r.db.WithContext(ctx).Create(usage).Error
}

func (r *repository) DeleteUsageByTransaction(ctx context.Context, campaignID, customerID, transactionID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Where("customer_id = ?", customerID).
		Where("transaction_id = ?", transactionID).
		Where("kind = ?", enums.CampaignUsageKindUsage).
		Delete(&models.CampaignUsage{})
	return res.RowsAffected, res.Error
}
