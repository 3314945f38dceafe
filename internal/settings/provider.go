package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forkpoint/loyalty-backend/internal/customers"
	"github.com/forkpoint/loyalty-backend/pkg/logger"
	"github.com/forkpoint/loyalty-backend/pkg/redis"
)

// Provider resolves per-tenant loyalty settings. Values come from the
// restaurant row and are cached in Redis for a short TTL; a cache outage
// degrades to direct database reads.
type Provider interface {
	BasePointRate(ctx context.Context, restaurantID uuid.UUID) (decimal.Decimal, error)
	PointsExpiryDays(ctx context.Context, restaurantID uuid.UUID) (*int, error)
	// Invalidate drops the cached snapshot after a settings change.
	Invalidate(ctx context.Context, restaurantID uuid.UUID) error
}

type cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	SettingsKey(restaurantID string) string
}

type snapshot struct {
	BasePointRate    decimal.Decimal `json:"basePointRate"`
	PointsExpiryDays *int            `json:"pointsExpiryDays,omitempty"`
	Timezone         string          `json:"timezone"`
}

type provider struct {
	repo        customers.Repository
	cache       cache
	ttl         time.Duration
	defaultRate decimal.Decimal
	logg        *logger.Logger
}

// NewProvider wires the settings provider. The cache may be nil; every call
// then reads straight from the database.
func NewProvider(repo customers.Repository, cacheClient *redis.Client, ttl time.Duration, defaultRate decimal.Decimal, logg *logger.Logger) (Provider, error) {
	if repo == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	p := &provider{repo: repo, ttl: ttl, defaultRate: defaultRate, logg: logg}
	if cacheClient != nil {
		p.cache = cacheClient
	}
	return p, nil
}

func (p *provider) BasePointRate(ctx context.Context, restaurantID uuid.UUID) (decimal.Decimal, error) {
	snap, err := p.load(ctx, restaurantID)
	if err != nil {
		return decimal.Zero, err
	}
	if snap.BasePointRate.IsZero() {
		return p.defaultRate, nil
	}
	return snap.BasePointRate, nil
}

func (p *provider) PointsExpiryDays(ctx context.Context, restaurantID uuid.UUID) (*int, error) {
	snap, err := p.load(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	return snap.PointsExpiryDays, nil
}

func (p *provider) Invalidate(ctx context.Context, restaurantID uuid.UUID) error {
	if p.cache == nil {
		return nil
	}
	return p.cache.Del(ctx, p.cache.SettingsKey(restaurantID.String()))
}

func (p *provider) load(ctx context.Context, restaurantID uuid.UUID) (*snapshot, error) {
	if restaurantID == uuid.Nil {
		return nil, fmt.Errorf("restaurant id is required")
	}

	if p.cache != nil {
		raw, err := p.cache.Get(ctx, p.cache.SettingsKey(restaurantID.String()))
		if err == nil {
			var snap snapshot
			if err := json.Unmarshal([]byte(raw), &snap); err == nil {
				return &snap, nil
			}
			// A corrupt cache entry falls through to the database read.
		} else if !redis.IsNil(err) && p.logg != nil {
			p.logg.Warn(ctx, "settings cache read failed, falling back to database")
		}
	}

	restaurant, err := p.repo.GetRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	snap := &snapshot{
		BasePointRate:    restaurant.BasePointRate,
		PointsExpiryDays: restaurant.PointsExpiryDays,
		Timezone:         restaurant.Timezone,
	}

	if p.cache != nil {
		if encoded, err := json.Marshal(snap); err == nil {
			if err := p.cache.Set(ctx, p.cache.SettingsKey(restaurantID.String()), string(encoded), p.ttl); err != nil && p.logg != nil {
				p.logg.Warn(ctx, "settings cache write failed")
			}
		}
	}
	return snap, nil
}
