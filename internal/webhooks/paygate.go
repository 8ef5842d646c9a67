package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/garword/topupid-backend/internal/deposits"
	"github.com/garword/topupid-backend/internal/fulfillment"
	"github.com/garword/topupid-backend/internal/orders"
	"github.com/garword/topupid-backend/pkg/config"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/logger"
	"github.com/garword/topupid-backend/pkg/metrics"
	"github.com/garword/topupid-backend/pkg/redis"
)

const (
	paygateSource = "paygate"

	// eventDedupTTL keeps a processed gateway event id long enough to absorb
	// any realistic redelivery window.
	eventDedupTTL = 24 * time.Hour
)

// paygateEvent is the QRIS gateway callback body. Reference carries our
// invoice code, for orders and deposits alike.
type paygateEvent struct {
	EventID      string `json:"event_id"`
	MerchantCode string `json:"merchant_code"`
	Reference    string `json:"reference"`
	Status       string `json:"status"`
	Amount       string `json:"amount"`
}

// PaygateService settles QRIS payments. A paid event moves the referenced
// order to processing and hands it to the orchestrator, or settles the
// referenced deposit. Everything downstream of signature verification is
// acknowledged to the gateway, including references we do not know.
type PaygateService struct {
	logg         *logger.Logger
	cfg          config.PaygateConfig
	orders       orders.Service
	deposits     deposits.Service
	orchestrator fulfillment.Orchestrator
	dedup        redis.IdempotencyStore
	metrics      *metrics.WebhookMetrics
}

// PaygateParams configure the paygate webhook service.
type PaygateParams struct {
	Logger       *logger.Logger
	Config       config.PaygateConfig
	Orders       orders.Service
	Deposits     deposits.Service
	Orchestrator fulfillment.Orchestrator
	Dedup        redis.IdempotencyStore
	Metrics      *metrics.WebhookMetrics
}

// NewPaygateService builds the paygate webhook service.
func NewPaygateService(params PaygateParams) (*PaygateService, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if params.Deposits == nil {
		return nil, fmt.Errorf("deposits service required")
	}
	if params.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator required")
	}
	if params.Dedup == nil {
		return nil, fmt.Errorf("idempotency store required")
	}
	return &PaygateService{
		logg:         params.Logger,
		cfg:          params.Config,
		orders:       params.Orders,
		deposits:     params.Deposits,
		orchestrator: params.Orchestrator,
		dedup:        params.Dedup,
		metrics:      params.Metrics,
	}, nil
}

// Handle verifies and applies one gateway callback. The raw body must be the
// exact bytes the signature was computed over.
func (s *PaygateService) Handle(ctx context.Context, raw []byte, signature string) error {
	s.metrics.IncReceived(paygateSource)

	expected := hmacSHA256Hex(s.cfg.PrivateKey, raw)
	if !signatureMatches(signature, expected) {
		s.metrics.IncRejected(paygateSource, "bad_signature")
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid payment gateway signature")
	}

	var event paygateEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		s.metrics.IncRejected(paygateSource, "bad_payload")
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding payment event")
	}
	if event.Reference == "" {
		s.metrics.IncRejected(paygateSource, "bad_payload")
		return pkgerrors.New(pkgerrors.CodeValidation, "payment event missing reference")
	}

	ctx = s.logg.WithInvoice(ctx, event.Reference)

	if !isPaidStatus(event.Status) {
		s.logg.Info(s.logg.WithField(ctx, "gateway_status", event.Status), "ignoring non-paid payment event")
		return nil
	}

	if event.EventID != "" {
		fresh, err := s.dedup.SetNX(ctx, s.dedup.IdempotencyKey(paygateSource, event.EventID), event.Reference, eventDedupTTL)
		if err != nil {
			// A dedup outage must not drop payments. The settle paths below
			// are idempotent, so processing a duplicate is safe.
			s.logg.Warn(s.logg.WithField(ctx, "event_id", event.EventID), "payment event dedup unavailable")
		} else if !fresh {
			s.logg.Info(s.logg.WithField(ctx, "event_id", event.EventID), "payment event already processed")
			return nil
		}
	}

	return s.settle(ctx, event.Reference)
}

func (s *PaygateService) settle(ctx context.Context, reference string) error {
	order, transitioned, err := s.orders.MarkPaid(ctx, reference)
	if err == nil {
		if transitioned {
			s.logg.Info(ctx, "order paid")
			if err := s.orchestrator.DispatchOrder(ctx, order.ID); err != nil {
				// The order already moved to processing; dispatch retries
				// via the poller or an operator re-dispatch.
				s.logg.Error(ctx, "dispatch after payment failed", err)
			}
		} else {
			s.logg.Info(ctx, "payment replay for settled order")
		}
		return nil
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		return err
	}

	_, transitioned, err = s.deposits.MarkPaid(ctx, reference)
	if err == nil {
		if transitioned {
			s.logg.Info(ctx, "deposit paid")
		} else {
			s.logg.Info(ctx, "payment replay for settled deposit")
		}
		return nil
	}
	if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		// Unknown reference: acknowledge so the gateway stops retrying, but
		// keep a trace for reconciliation.
		s.logg.Warn(ctx, "payment event references unknown invoice")
		s.metrics.IncRejected(paygateSource, "unknown_reference")
		return nil
	}
	return err
}

func isPaidStatus(raw string) bool {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paid", "success", "settlement":
		return true
	default:
		return false
	}
}
