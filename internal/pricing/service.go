package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garword/topupid-backend/pkg/db/models"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/logger"
	"github.com/garword/topupid-backend/pkg/redis"
)

const tierCacheKeyPart = "tiers"

// Service resolves the pricing tier a user currently sits in and applies its
// margin. The active tier list changes rarely, so it is cached in Redis with
// a short TTL; a cache outage falls back to the database.
type Service interface {
	TierFor(ctx context.Context, userID uuid.UUID) (*models.TierConfig, error)
	SellPrice(ctx context.Context, userID uuid.UUID, basePrice decimal.Decimal) (decimal.Decimal, error)
}

// ServiceParams configure the pricing service.
type ServiceParams struct {
	Logger *logger.Logger
	Repo   Repository
	Cache  redis.Cache

	// CacheTTL bounds tier-list staleness.
	CacheTTL time.Duration
}

type service struct {
	logg     *logger.Logger
	repo     Repository
	cache    redis.Cache
	cacheTTL time.Duration
}

// NewService builds the pricing service.
func NewService(params ServiceParams) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("pricing repository required")
	}
	if params.Cache == nil {
		return nil, fmt.Errorf("cache required")
	}
	if params.CacheTTL <= 0 {
		params.CacheTTL = 5 * time.Minute
	}
	return &service{
		logg:     params.Logger,
		repo:     params.Repo,
		cache:    params.Cache,
		cacheTTL: params.CacheTTL,
	}, nil
}

// TierFor picks the highest-threshold active tier the user's delivered-order
// count reaches. With no tier reached it returns the lowest-threshold one.
func (s *service) TierFor(ctx context.Context, userID uuid.UUID) (*models.TierConfig, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}

	tiers, err := s.activeTiers(ctx)
	if err != nil {
		return nil, err
	}
	if len(tiers) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "no active pricing tiers configured")
	}

	count, err := s.repo.CountDeliveredOrders(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Tiers arrive sorted by min_transactions ascending.
	selected := tiers[0]
	for _, tier := range tiers[1:] {
		if count >= int64(tier.MinTransactions) {
			selected = tier
		}
	}
	return &selected, nil
}

// SellPrice applies the user's tier margin to a vendor base price, rounded to
// two decimal places.
func (s *service) SellPrice(ctx context.Context, userID uuid.UUID, basePrice decimal.Decimal) (decimal.Decimal, error) {
	if basePrice.IsNegative() {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "base price must not be negative")
	}
	tier, err := s.TierFor(ctx, userID)
	if err != nil {
		return decimal.Zero, err
	}
	margin := tier.MarginPercent.Div(decimal.NewFromInt(100))
	return basePrice.Mul(decimal.NewFromInt(1).Add(margin)).Round(2), nil
}

func (s *service) activeTiers(ctx context.Context) ([]models.TierConfig, error) {
	key := s.cache.CacheKey(tierCacheKeyPart)

	cached, err := s.cache.Get(ctx, key)
	if err == nil && cached != "" {
		var tiers []models.TierConfig
		if err := json.Unmarshal([]byte(cached), &tiers); err == nil && len(tiers) > 0 {
			return tiers, nil
		}
	} else if err != nil && !errors.Is(err, redis.Nil) {
		s.logg.Warn(s.logg.WithField(ctx, "cache_key", key), "tier cache read failed, using database")
	}

	tiers, err := s.repo.ListActiveTiers(ctx)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(tiers); err == nil {
		if err := s.cache.Set(ctx, key, payload, s.cacheTTL); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "cache_key", key), "tier cache write failed")
		}
	}
	return tiers, nil
}
