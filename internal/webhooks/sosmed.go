package webhooks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/garword/topupid-backend/internal/providers/sosmed"
	"github.com/garword/topupid-backend/internal/reconcile"
	"github.com/garword/topupid-backend/pkg/config"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/logger"
	"github.com/garword/topupid-backend/pkg/metrics"
)

const sosmedSource = "sosmed"

// sosmedEvent is the panel callback body. custom_id echoes the reference we
// sent at order time; start_count and remains only appear for partial and
// completed engagement orders.
type sosmedEvent struct {
	CustomID   string `json:"custom_id"`
	OrderID    string `json:"order_id"`
	Status     string `json:"status"`
	StartCount *int   `json:"start_count"`
	Remains    *int   `json:"remains"`
	Message    string `json:"message"`
}

// SosmedService turns panel callbacks into reconcile events. Deliveries are
// signed with an HMAC-SHA256 of the raw body keyed with the panel API key.
type SosmedService struct {
	logg       *logger.Logger
	cfg        config.SosmedConfig
	reconciler reconcile.Service
	metrics    *metrics.WebhookMetrics
}

// NewSosmedService builds the sosmed webhook service.
func NewSosmedService(logg *logger.Logger, cfg config.SosmedConfig, reconciler reconcile.Service, m *metrics.WebhookMetrics) (*SosmedService, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &SosmedService{logg: logg, cfg: cfg, reconciler: reconciler, metrics: m}, nil
}

// Handle verifies and applies one panel callback.
func (s *SosmedService) Handle(ctx context.Context, raw []byte, signature string) error {
	s.metrics.IncReceived(sosmedSource)

	expected := hmacSHA256Hex(s.cfg.APIKey, raw)
	if !signatureMatches(signature, expected) {
		s.metrics.IncRejected(sosmedSource, "bad_signature")
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid sosmed signature")
	}

	var event sosmedEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		s.metrics.IncRejected(sosmedSource, "bad_payload")
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding sosmed event")
	}
	if event.CustomID == "" {
		s.metrics.IncRejected(sosmedSource, "bad_payload")
		return pkgerrors.New(pkgerrors.CodeValidation, "sosmed event missing custom_id")
	}

	return applyEvent(ctx, s.logg, s.metrics, s.reconciler, sosmedSource, reconcile.Event{
		RefID:         event.CustomID,
		Status:        sosmed.MapStatus(event.Status),
		Message:       event.Message,
		ProviderTrxID: event.OrderID,
		StartCount:    event.StartCount,
		Remains:       event.Remains,
	})
}
