package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/garword/topupid-backend/internal/orders"
	"github.com/garword/topupid-backend/internal/refund"
	"github.com/garword/topupid-backend/pkg/enums"
	"github.com/garword/topupid-backend/pkg/logger"
)

// OrderTimeoutJobParams configure the stale order sweeper.
type OrderTimeoutJobParams struct {
	Logger     *logger.Logger
	OrdersRepo orders.Repository
	OrdersSvc  orders.Service
	Refunds    refund.Service

	// Grace is how long an order may sit unresolved before the sweep acts.
	Grace time.Duration
	// BatchSize caps how many orders of each status one pass touches.
	BatchSize int
}

// NewOrderTimeoutJob builds the sweep that resolves orders stuck in pending
// or processing. Pending orders were never paid, so they cancel without a
// refund. Processing orders were paid, so they cancel with a full refund.
func NewOrderTimeoutJob(params OrderTimeoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.OrdersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.OrdersSvc == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Refunds == nil {
		return nil, fmt.Errorf("refund service required")
	}
	if params.Grace <= 0 {
		params.Grace = 10 * time.Minute
	}
	if params.BatchSize <= 0 {
		params.BatchSize = 100
	}
	return &orderTimeoutJob{
		logg:      params.Logger,
		repo:      params.OrdersRepo,
		orders:    params.OrdersSvc,
		refunds:   params.Refunds,
		grace:     params.Grace,
		batchSize: params.BatchSize,
		now:       time.Now,
	}, nil
}

type orderTimeoutJob struct {
	logg      *logger.Logger
	repo      orders.Repository
	orders    orders.Service
	refunds   refund.Service
	grace     time.Duration
	batchSize int
	now       func() time.Time
}

func (j *orderTimeoutJob) Name() string { return "order-timeout" }

// Run performs one bounded sweep pass. Each order resolves independently;
// the pass continues past individual failures and reports them combined.
func (j *orderTimeoutJob) Run(ctx context.Context) error {
	return multierr.Combine(
		j.cancelUnpaid(ctx),
		j.refundStuck(ctx),
	)
}

func (j *orderTimeoutJob) cancelUnpaid(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)
	stale, err := j.repo.FindStaleOrders(ctx, enums.OrderStatusPending, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("query stale pending orders: %w", err)
	}
	var errs []error
	canceled := 0
	for _, order := range stale {
		done, err := j.orders.CancelPending(ctx, order.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("cancel order %s: %w", order.InvoiceCode, err))
			continue
		}
		if done {
			canceled++
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"stale":    len(stale),
		"canceled": canceled,
	}), "unpaid order sweep complete")
	return multierr.Combine(errs...)
}

func (j *orderTimeoutJob) refundStuck(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)
	stale, err := j.repo.FindStaleOrders(ctx, enums.OrderStatusProcessing, cutoff, j.batchSize)
	if err != nil {
		return fmt.Errorf("query stale processing orders: %w", err)
	}
	var errs []error
	refunded := 0
	for _, order := range stale {
		if err := j.refunds.Refund(ctx, order.ID, "fulfillment timed out"); err != nil {
			errs = append(errs, fmt.Errorf("refund order %s: %w", order.InvoiceCode, err))
			continue
		}
		refunded++
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"stale":    len(stale),
		"refunded": refunded,
	}), "stuck order sweep complete")
	return multierr.Combine(errs...)
}
