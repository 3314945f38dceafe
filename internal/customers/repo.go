package customers

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/forkpoint/loyalty-backend/pkg/db/models"
)

// Repository manages persistence for customers and their restaurants. The
// customer row is the most contended resource in the system; every mutation
// path loads it with GetForUpdate inside a transaction.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Get(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	// GetForUpdate loads the customer with its tier under a row lock. Must be
	// called on a transaction-bound repository.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	Save(ctx context.Context, customer *models.Customer) error
	GetRestaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error)
	ListIDsByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a customer repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.WithContext(ctx).
		Preload("Tier").
		Where("id = ?", id).
		First(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *repository) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&customer).Error
	if err != nil {
		return nil, err
	}
	if customer.TierID != nil {
		var tier models.Tier
		if err := r.db.WithContext(ctx).Where("id = ?", *customer.TierID).First(&tier).Error; err == nil {
			customer.Tier = &tier
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return &customer, nil
}

func (r *repository) Save(ctx context.Context, customer *models.Customer) error {
	return r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ?", customer.ID).
		Updates(map[string]any{
			"points":            customer.Points,
			"total_spent_cents": customer.TotalSpentCents,
			"visit_count":       customer.VisitCount,
			"level":             customer.Level,
			"tier_id":           customer.TierID,
			"last_visit_at":     customer.LastVisitAt,
		}).Error
}

func (r *repository) GetRestaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error) {
	var restaurant models.Restaurant
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&restaurant).Error
	if err != nil {
		return nil, err
	}
	return &restaurant, nil
}

func (r *repository) ListIDsByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("restaurant_id = ?", restaurantID).
		Pluck("id", &ids).Error
	return ids, err
}
