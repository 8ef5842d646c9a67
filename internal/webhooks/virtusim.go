package webhooks

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"

	"github.com/garword/topupid-backend/internal/providers/virtusim"
	"github.com/garword/topupid-backend/internal/reconcile"
	"github.com/garword/topupid-backend/pkg/config"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/logger"
	"github.com/garword/topupid-backend/pkg/metrics"
)

const virtusimSource = "virtusim"

// virtusimEvent is the vendor callback body. The vendor echoes the account
// api key instead of signing; sms carries the received code once delivered.
type virtusimEvent struct {
	APIKey  string `json:"api_key"`
	RefID   string `json:"ref_id"`
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Number  string `json:"number"`
	SMS     string `json:"sms"`
	Message string `json:"message"`
}

// VirtusimService turns vendor callbacks into reconcile events.
type VirtusimService struct {
	logg       *logger.Logger
	cfg        config.VirtusimConfig
	reconciler reconcile.Service
	metrics    *metrics.WebhookMetrics
}

// NewVirtusimService builds the virtusim webhook service.
func NewVirtusimService(logg *logger.Logger, cfg config.VirtusimConfig, reconciler reconcile.Service, m *metrics.WebhookMetrics) (*VirtusimService, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &VirtusimService{logg: logg, cfg: cfg, reconciler: reconciler, metrics: m}, nil
}

// Handle verifies and applies one vendor callback.
func (s *VirtusimService) Handle(ctx context.Context, raw []byte) error {
	s.metrics.IncReceived(virtusimSource)

	var event virtusimEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		s.metrics.IncRejected(virtusimSource, "bad_payload")
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding virtusim event")
	}
	if subtle.ConstantTimeCompare([]byte(event.APIKey), []byte(s.cfg.APIKey)) != 1 {
		s.metrics.IncRejected(virtusimSource, "bad_signature")
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid virtusim credential")
	}
	if event.RefID == "" {
		s.metrics.IncRejected(virtusimSource, "bad_payload")
		return pkgerrors.New(pkgerrors.CodeValidation, "virtusim event missing ref_id")
	}

	serial := event.SMS
	if serial == "" {
		serial = event.Number
	}
	return applyEvent(ctx, s.logg, s.metrics, s.reconciler, virtusimSource, reconcile.Event{
		RefID:         event.RefID,
		Status:        virtusim.MapStatus(event.Status),
		Serial:        serial,
		Message:       event.Message,
		ProviderTrxID: event.OrderID,
	})
}
