package pricing

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garword/topupid-backend/pkg/db/models"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/logger"
	"github.com/garword/topupid-backend/pkg/redis"
)

type fakeRepo struct {
	tiers     []models.TierConfig
	count     int64
	listCalls int
}

func (f *fakeRepo) ListActiveTiers(context.Context) ([]models.TierConfig, error) {
	f.listCalls++
	return f.tiers, nil
}

func (f *fakeRepo) CountDeliveredOrders(context.Context, uuid.UUID) (int64, error) {
	return f.count, nil
}

type fakeCache struct {
	values map[string]string
	getErr error
	sets   int
}

func (f *fakeCache) Get(_ context.Context, key string) (string, error) {
	if f.getErr != nil {
		return "", f.getErr
	}
	value, ok := f.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (f *fakeCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	if f.values == nil {
		f.values = make(map[string]string)
	}
	switch v := value.(type) {
	case []byte:
		f.values[key] = string(v)
	case string:
		f.values[key] = v
	}
	f.sets++
	return nil
}

func (f *fakeCache) CacheKey(parts ...string) string {
	return "tpd:cache:" + strings.Join(parts, ":")
}

func testTiers() []models.TierConfig {
	return []models.TierConfig{
		{ID: uuid.New(), Name: "bronze", MinTransactions: 0, MarginPercent: decimal.NewFromInt(10), Active: true},
		{ID: uuid.New(), Name: "silver", MinTransactions: 10, MarginPercent: decimal.NewFromInt(7), Active: true},
		{ID: uuid.New(), Name: "gold", MinTransactions: 50, MarginPercent: decimal.NewFromInt(5), Active: true},
	}
}

func newPricingService(t *testing.T, repo Repository, cache redis.Cache) Service {
	t.Helper()

	svc, err := NewService(ServiceParams{
		Logger: logger.New(logger.Options{ServiceName: "pricing-test"}),
		Repo:   repo,
		Cache:  cache,
	})
	require.NoError(t, err)
	return svc
}

func TestTierForSelection(t *testing.T) {
	cases := []struct {
		name  string
		count int64
		want  string
	}{
		{"new user lands in the base tier", 0, "bronze"},
		{"just under a threshold stays below", 9, "bronze"},
		{"threshold is inclusive", 10, "silver"},
		{"highest reached threshold wins", 120, "gold"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := &fakeRepo{tiers: testTiers(), count: tc.count}
			svc := newPricingService(t, repo, &fakeCache{})

			tier, err := svc.TierFor(context.Background(), uuid.New())
			require.NoError(t, err)
			assert.Equal(t, tc.want, tier.Name)
		})
	}
}

func TestTierForNoActiveTiers(t *testing.T) {
	svc := newPricingService(t, &fakeRepo{}, &fakeCache{})

	_, err := svc.TierFor(context.Background(), uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInternal))
}

func TestTierListIsCached(t *testing.T) {
	repo := &fakeRepo{tiers: testTiers()}
	cache := &fakeCache{}
	svc := newPricingService(t, repo, cache)

	_, err := svc.TierFor(context.Background(), uuid.New())
	require.NoError(t, err)
	_, err = svc.TierFor(context.Background(), uuid.New())
	require.NoError(t, err)

	assert.Equal(t, 1, repo.listCalls)
	assert.Equal(t, 1, cache.sets)
}

func TestTierCacheOutageFallsBackToDatabase(t *testing.T) {
	repo := &fakeRepo{tiers: testTiers(), count: 60}
	cache := &fakeCache{getErr: errors.New("connection refused")}
	svc := newPricingService(t, repo, cache)

	tier, err := svc.TierFor(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, "gold", tier.Name)
	assert.Equal(t, 1, repo.listCalls)
}

func TestSellPrice(t *testing.T) {
	repo := &fakeRepo{tiers: testTiers(), count: 0}
	svc := newPricingService(t, repo, &fakeCache{})

	// 10% margin on 15500 is 17050.
	price, err := svc.SellPrice(context.Background(), uuid.New(), decimal.NewFromInt(15500))
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(17050)), "got %s", price)

	_, err = svc.SellPrice(context.Background(), uuid.New(), decimal.NewFromInt(-1))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestSellPriceRounding(t *testing.T) {
	repo := &fakeRepo{
		tiers: []models.TierConfig{{ID: uuid.New(), Name: "odd", MinTransactions: 0, MarginPercent: decimal.NewFromFloat(7.5), Active: true}},
	}
	svc := newPricingService(t, repo, &fakeCache{})

	price, err := svc.SellPrice(context.Background(), uuid.New(), decimal.NewFromFloat(333.33))
	require.NoError(t, err)
	assert.Equal(t, "358.33", price.StringFixed(2))
}
