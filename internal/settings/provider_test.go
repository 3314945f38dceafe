package settings

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkpoint/loyalty-backend/internal/customers"
	"github.com/forkpoint/loyalty-backend/pkg/db/models"
	"github.com/forkpoint/loyalty-backend/pkg/logger"
)

type stubCustomerRepo struct {
	restaurants map[uuid.UUID]*models.Restaurant
	reads       int
}

func (s *stubCustomerRepo) WithTx(tx *gorm.DB) customers.Repository { return s }

func (s *stubCustomerRepo) Get(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubCustomerRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubCustomerRepo) Save(ctx context.Context, customer *models.Customer) error { return nil }

func (s *stubCustomerRepo) GetRestaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error) {
	s.reads++
	restaurant, ok := s.restaurants[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return restaurant, nil
}

func (s *stubCustomerRepo) ListIDsByRestaurant(ctx context.Context, restaurantID uuid.UUID) ([]uuid.UUID, error) {
	return nil, nil
}

type fakeCache struct {
	values map[string]string
	getErr error
	sets   int
	dels   int
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string]string{}}
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	value, ok := f.values[key]
	if !ok {
		return "", goredis.Nil
	}
	return value, nil
}

func (f *fakeCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	f.sets++
	f.values[key] = value.(string)
	return nil
}

func (f *fakeCache) Del(ctx context.Context, keys ...string) error {
	f.dels++
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func (f *fakeCache) SettingsKey(restaurantID string) string {
	return "settings:" + restaurantID
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func seedRestaurant(repo *stubCustomerRepo, rate string, expiryDays *int) uuid.UUID {
	id := uuid.New()
	repo.restaurants[id] = &models.Restaurant{
		ID:               id,
		BasePointRate:    decimal.RequireFromString(rate),
		PointsExpiryDays: expiryDays,
		Timezone:         "UTC",
	}
	return id
}

func newTestProvider(t *testing.T, repo *stubCustomerRepo, cacheClient *fakeCache) *provider {
	t.Helper()
	p := &provider{
		repo:        repo,
		ttl:         time.Minute,
		defaultRate: decimal.RequireFromString("0.1"),
		logg:        testLogger(t),
	}
	if cacheClient != nil {
		p.cache = cacheClient
	}
	return p
}

func TestBasePointRateCachesSnapshot(t *testing.T) {
	repo := &stubCustomerRepo{restaurants: map[uuid.UUID]*models.Restaurant{}}
	days := 180
	restaurantID := seedRestaurant(repo, "0.25", &days)
	cache := newFakeCache()
	p := newTestProvider(t, repo, cache)

	rate, err := p.BasePointRate(context.Background(), restaurantID)
	if err != nil {
		t.Fatalf("BasePointRate: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("unexpected rate %s", rate)
	}
	if cache.sets != 1 {
		t.Fatalf("expected snapshot cached, sets=%d", cache.sets)
	}

	expiry, err := p.PointsExpiryDays(context.Background(), restaurantID)
	if err != nil {
		t.Fatalf("PointsExpiryDays: %v", err)
	}
	if expiry == nil || *expiry != 180 {
		t.Fatalf("unexpected expiry %v", expiry)
	}
	if repo.reads != 1 {
		t.Fatalf("expected second call served from cache, reads=%d", repo.reads)
	}
}

func TestBasePointRateFallsBackToDefault(t *testing.T) {
	repo := &stubCustomerRepo{restaurants: map[uuid.UUID]*models.Restaurant{}}
	restaurantID := seedRestaurant(repo, "0", nil)
	p := newTestProvider(t, repo, nil)

	rate, err := p.BasePointRate(context.Background(), restaurantID)
	if err != nil {
		t.Fatalf("BasePointRate: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("0.1")) {
		t.Fatalf("expected default rate, got %s", rate)
	}
}

func TestCacheOutageDegradesToDatabase(t *testing.T) {
	repo := &stubCustomerRepo{restaurants: map[uuid.UUID]*models.Restaurant{}}
	restaurantID := seedRestaurant(repo, "0.5", nil)
	cache := newFakeCache()
	cache.getErr = errors.New("connection refused")
	p := newTestProvider(t, repo, cache)

	rate, err := p.BasePointRate(context.Background(), restaurantID)
	if err != nil {
		t.Fatalf("BasePointRate: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("0.5")) {
		t.Fatalf("unexpected rate %s", rate)
	}
	if repo.reads != 1 {
		t.Fatalf("expected database fallback, reads=%d", repo.reads)
	}
}

func TestCorruptCacheEntryFallsThrough(t *testing.T) {
	repo := &stubCustomerRepo{restaurants: map[uuid.UUID]*models.Restaurant{}}
	restaurantID := seedRestaurant(repo, "0.3", nil)
	cache := newFakeCache()
	cache.values[cache.SettingsKey(restaurantID.String())] = "{not-json"
	p := newTestProvider(t, repo, cache)

	rate, err := p.BasePointRate(context.Background(), restaurantID)
	if err != nil {
		t.Fatalf("BasePointRate: %v", err)
	}
	if !rate.Equal(decimal.RequireFromString("0.3")) {
		t.Fatalf("unexpected rate %s", rate)
	}
	if repo.reads != 1 {
		t.Fatal("expected database read behind the corrupt entry")
	}
}

func TestInvalidateDropsCachedSnapshot(t *testing.T) {
	repo := &stubCustomerRepo{restaurants: map[uuid.UUID]*models.Restaurant{}}
	restaurantID := seedRestaurant(repo, "0.2", nil)
	cache := newFakeCache()
	p := newTestProvider(t, repo, cache)

	if _, err := p.BasePointRate(context.Background(), restaurantID); err != nil {
		t.Fatalf("BasePointRate: %v", err)
	}
	if err := p.Invalidate(context.Background(), restaurantID); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if cache.dels != 1 {
		t.Fatalf("expected cache delete, dels=%d", cache.dels)
	}

	if _, err := p.BasePointRate(context.Background(), restaurantID); err != nil {
		t.Fatalf("BasePointRate: %v", err)
	}
	if repo.reads != 2 {
		t.Fatalf("expected fresh read after invalidate, reads=%d", repo.reads)
	}
}

func TestLoadRejectsNilRestaurant(t *testing.T) {
	repo := &stubCustomerRepo{restaurants: map[uuid.UUID]*models.Restaurant{}}
	p := newTestProvider(t, repo, nil)

	if _, err := p.BasePointRate(context.Background(), uuid.Nil); err == nil {
		t.Fatal("expected error for nil restaurant id")
	}
}
