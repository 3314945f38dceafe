package rewards

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkpoint/loyalty-backend/pkg/db/models"
	"github.com/forkpoint/loyalty-backend/pkg/enums"
)

// Repository manages reward definitions, trigger rules and grant instances.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetReward(ctx context.Context, id uuid.UUID) (*models.Reward, error)
	ListActiveRules(ctx context.Context, restaurantID uuid.UUID) ([]models.RewardRule, error)
	CountGrantsByReward(ctx context.Context, rewardID uuid.UUID) (int, error)
	CountGrantsByCustomer(ctx context.Context, rewardID, customerID uuid.UUID) (int, error)
	CountGrantsByRule(ctx context.Context, customerID, ruleID uuid.UUID) (int, error)
	CreateGrant(ctx context.Context, grant *models.CustomerReward) error
	GetGrant(ctx context.Context, id uuid.UUID) (*models.CustomerReward, error)
	MarkRedeemed(ctx context.Context, id uuid.UUID) error
	// FindGrantsByTransaction returns every grant whose provenance ties it to
	// the transaction, redeemed or not; cancellation decides what to do with
	// each.
	FindGrantsByTransaction(ctx context.Context, customerID, transactionID uuid.UUID) ([]models.CustomerReward, error)
	FindUnredeemedByRule(ctx context.Context, customerID, ruleID uuid.UUID) ([]models.CustomerReward, error)
	DeleteGrant(ctx context.Context, id uuid.UUID) error
	AdjustStock(ctx context.Context, rewardID uuid.UUID, delta int) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a reward repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetReward(ctx context.Context, id uuid.UUID) (*models.Reward, error) {
	var reward models.Reward
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&reward).Error
	if err != nil {
		return nil, err
	}
	return &reward, nil
}

func (r *repository) ListActiveRules(ctx context.Context, restaurantID uuid.UUID) ([]models.RewardRule, error) {
	var rules []models.RewardRule
	err := r.db.WithContext(ctx).
		Where("restaurant_id = ?", restaurantID).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Find(&rules).Error
	return rules, err
}

func (r *repository) CountGrantsByReward(ctx context.Context, rewardID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CustomerReward{}).
		Where("reward_id = ?", rewardID).
		Count(&count).Error
	return int(count), err
}

func (r *repository) CountGrantsByCustomer(ctx context.Context, rewardID, customerID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CustomerReward{}).
		Where("reward_id = ?", rewardID).
		Where("customer_id = ?", customerID).
		Count(&count).Error
	return int(count), err
}

func (r *repository) CountGrantsByRule(ctx context.Context, customerID, ruleID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CustomerReward{}).
		Where("customer_id = ?", customerID).
		Where("rule_id = ?", ruleID).
		Count(&count).Error
	return int(count), err
}

func (r *repository) CreateGrant(ctx context.Context, grant *models.CustomerReward) error {
	return r.db.WithContext(ctx).Create(grant).Error
}

func (r *repository) GetGrant(ctx context.Context, id uuid.UUID) (*models.CustomerReward, error) {
	var grant models.CustomerReward
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&grant).Error
	if err != nil {
		return nil, err
	}
	return &grant, nil
}

func (r *repository) MarkRedeemed(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.CustomerReward{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_redeemed": true,
			"redeemed_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}).Error
}

func (r *repository) FindGrantsByTransaction(ctx context.Context, customerID, transactionID uuid.UUID) ([]models.CustomerReward, error) {
	var grants []models.CustomerReward
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Where("source_type IN ?", []enums.RewardSourceType{enums.RewardSourceMilestone, enums.RewardSourceTier}).
		Where("source_id = ?", transactionID).
		Find(&grants).Error
	return grants, err
}

func (r *repository) FindUnredeemedByRule(ctx context.Context, customerID, ruleID uuid.UUID) ([]models.CustomerReward, error) {
	var grants []models.CustomerReward
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Where("rule_id = ?", ruleID).
		Where("is_redeemed = ?", false).
		Find(&grants).Error
	return grants, err
}

func (r *repository) DeleteGrant(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.CustomerReward{}).Error
}

func (r *repository) AdjustStock(ctx context.Context, rewardID uuid.UUID, delta int) error {
	return r.db.WithContext(ctx).
		Model(&models.Reward{}).
		Where("id = ?", rewardID).
		Where("stock_count IS NOT NULL").
		Update("stock_count", gorm.Expr("stock_count + ?", delta)).Error
}
