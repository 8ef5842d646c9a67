package webhooks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/garword/topupid-backend/internal/providers/digiflazz"
	"github.com/garword/topupid-backend/internal/reconcile"
	"github.com/garword/topupid-backend/pkg/config"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/logger"
	"github.com/garword/topupid-backend/pkg/metrics"
)

const digiflazzSource = "digiflazz"

// digiflazzEvent is the vendor callback body. The event rides under "data",
// mirroring the transaction response shape.
type digiflazzEvent struct {
	Data struct {
		RefID   string `json:"ref_id"`
		TrxID   string `json:"trx_id"`
		Status  string `json:"status"`
		Serial  string `json:"sn"`
		Message string `json:"message"`
	} `json:"data"`
}

// DigiflazzService turns vendor callbacks into reconcile events. The vendor
// signs deliveries with an HMAC-SHA1 of the raw body in X-Hub-Signature.
type DigiflazzService struct {
	logg       *logger.Logger
	cfg        config.DigiflazzConfig
	reconciler reconcile.Service
	metrics    *metrics.WebhookMetrics
}

// NewDigiflazzService builds the digiflazz webhook service.
func NewDigiflazzService(logg *logger.Logger, cfg config.DigiflazzConfig, reconciler reconcile.Service, m *metrics.WebhookMetrics) (*DigiflazzService, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &DigiflazzService{logg: logg, cfg: cfg, reconciler: reconciler, metrics: m}, nil
}

// Handle verifies and applies one vendor callback.
func (s *DigiflazzService) Handle(ctx context.Context, raw []byte, signature string) error {
	s.metrics.IncReceived(digiflazzSource)

	expected := hmacSHA1Hex(s.cfg.APIKey, raw)
	if !signatureMatches(signature, expected) {
		s.metrics.IncRejected(digiflazzSource, "bad_signature")
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid digiflazz signature")
	}

	var event digiflazzEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		s.metrics.IncRejected(digiflazzSource, "bad_payload")
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding digiflazz event")
	}
	if event.Data.RefID == "" {
		s.metrics.IncRejected(digiflazzSource, "bad_payload")
		return pkgerrors.New(pkgerrors.CodeValidation, "digiflazz event missing ref_id")
	}

	return applyEvent(ctx, s.logg, s.metrics, s.reconciler, digiflazzSource, reconcile.Event{
		RefID:         event.Data.RefID,
		Status:        digiflazz.MapStatus(event.Data.Status),
		Serial:        event.Data.Serial,
		Message:       event.Data.Message,
		ProviderTrxID: event.Data.TrxID,
	})
}
