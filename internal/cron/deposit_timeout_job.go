package cron

import (
	"context"
	"fmt"

	"github.com/garword/topupid-backend/internal/deposits"
	"github.com/garword/topupid-backend/pkg/logger"
)

// NewDepositTimeoutJob builds the sweep that cancels pending deposits whose
// QRIS code expired unpaid.
func NewDepositTimeoutJob(logg *logger.Logger, svc deposits.Service, batchSize int) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if svc == nil {
		return nil, fmt.Errorf("deposits service required")
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &depositTimeoutJob{logg: logg, deposits: svc, batchSize: batchSize}, nil
}

type depositTimeoutJob struct {
	logg      *logger.Logger
	deposits  deposits.Service
	batchSize int
}

func (j *depositTimeoutJob) Name() string { return "deposit-timeout" }

func (j *depositTimeoutJob) Run(ctx context.Context) error {
	canceled, err := j.deposits.ExpireStale(ctx, j.batchSize)
	if err != nil {
		return fmt.Errorf("expire stale deposits: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "canceled", canceled), "deposit expiry sweep complete")
	return nil
}
