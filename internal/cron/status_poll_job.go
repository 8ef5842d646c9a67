package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/garword/topupid-backend/internal/orders"
	"github.com/garword/topupid-backend/internal/providers"
	"github.com/garword/topupid-backend/internal/reconcile"
	"github.com/garword/topupid-backend/pkg/db/models"
	"github.com/garword/topupid-backend/pkg/logger"
)

// StatusPollJobParams configure the fallback status poller.
type StatusPollJobParams struct {
	Logger     *logger.Logger
	OrdersRepo orders.Repository
	Registry   *providers.Registry
	Reconciler reconcile.Service

	// BatchSize caps how many open items one pass polls.
	BatchSize int
}

// NewStatusPollJob builds the poller that asks vendors about dispatched
// items still awaiting a terminal status. Poll results flow through the
// reconciler exactly like webhook deliveries, so a vendor whose callbacks
// never arrive still settles.
func NewStatusPollJob(params StatusPollJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.OrdersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Registry == nil {
		return nil, fmt.Errorf("provider registry required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	if params.BatchSize <= 0 {
		params.BatchSize = 100
	}
	return &statusPollJob{
		logg:       params.Logger,
		repo:       params.OrdersRepo,
		registry:   params.Registry,
		reconciler: params.Reconciler,
		batchSize:  params.BatchSize,
	}, nil
}

type statusPollJob struct {
	logg       *logger.Logger
	repo       orders.Repository
	registry   *providers.Registry
	reconciler reconcile.Service
	batchSize  int
}

func (j *statusPollJob) Name() string { return "status-poll" }

func (j *statusPollJob) Run(ctx context.Context) error {
	start := time.Now()
	items, err := j.repo.FindPollableItems(ctx, j.batchSize)
	if err != nil {
		return fmt.Errorf("query pollable items: %w", err)
	}

	var errs []error
	applied := 0
	for _, item := range items {
		if err := j.pollItem(ctx, item); err != nil {
			errs = append(errs, fmt.Errorf("poll item %s: %w", item.ID, err))
			continue
		}
		applied++
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"polled":      len(items),
		"applied":     applied,
		"duration_ms": time.Since(start).Milliseconds(),
	}), "status poll pass complete")
	return multierr.Combine(errs...)
}

func (j *statusPollJob) pollItem(ctx context.Context, item models.OrderItem) error {
	if item.RefID == nil || item.ProviderCode == nil {
		return nil
	}
	adapter, err := j.registry.Resolve(*item.ProviderCode)
	if err != nil {
		return err
	}

	ctx = j.logg.WithField(j.logg.WithProvider(ctx, item.ProviderCode.String()), "ref_id", *item.RefID)
	result, err := adapter.CheckStatus(ctx, *item.RefID)
	if err != nil {
		return err
	}

	return j.reconciler.Apply(ctx, reconcile.Event{
		RefID:         *item.RefID,
		Status:        result.Status,
		Serial:        result.Serial,
		Message:       result.Message,
		ProviderTrxID: result.ProviderTrxID,
		StartCount:    result.StartCount,
		Remains:       result.Remains,
	})
}
