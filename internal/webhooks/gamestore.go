package webhooks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/garword/topupid-backend/internal/providers/gamestore"
	"github.com/garword/topupid-backend/internal/reconcile"
	"github.com/garword/topupid-backend/pkg/config"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/logger"
	"github.com/garword/topupid-backend/pkg/metrics"
)

const gamestoreSource = "gamestore"

// gamestoreEvent is the vendor callback body. The signature field covers the
// reference, computed the same way as request signing.
type gamestoreEvent struct {
	RefID     string `json:"ref_id"`
	TrxID     string `json:"trx_id"`
	Status    string `json:"status"`
	Serial    string `json:"serial"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// GamestoreService turns vendor callbacks into reconcile events.
type GamestoreService struct {
	logg       *logger.Logger
	cfg        config.GamestoreConfig
	reconciler reconcile.Service
	metrics    *metrics.WebhookMetrics
}

// NewGamestoreService builds the gamestore webhook service.
func NewGamestoreService(logg *logger.Logger, cfg config.GamestoreConfig, reconciler reconcile.Service, m *metrics.WebhookMetrics) (*GamestoreService, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &GamestoreService{logg: logg, cfg: cfg, reconciler: reconciler, metrics: m}, nil
}

// Handle verifies and applies one vendor callback.
func (s *GamestoreService) Handle(ctx context.Context, raw []byte) error {
	s.metrics.IncReceived(gamestoreSource)

	var event gamestoreEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		s.metrics.IncRejected(gamestoreSource, "bad_payload")
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decoding gamestore event")
	}
	if event.RefID == "" {
		s.metrics.IncRejected(gamestoreSource, "bad_payload")
		return pkgerrors.New(pkgerrors.CodeValidation, "gamestore event missing ref_id")
	}

	expected := gamestore.Sign(s.cfg.MerchantID, s.cfg.Secret, event.RefID)
	if !signatureMatches(event.Signature, expected) {
		s.metrics.IncRejected(gamestoreSource, "bad_signature")
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid gamestore signature")
	}

	return applyEvent(ctx, s.logg, s.metrics, s.reconciler, gamestoreSource, reconcile.Event{
		RefID:         event.RefID,
		Status:        gamestore.MapStatus(event.Status),
		Serial:        event.Serial,
		Message:       event.Message,
		ProviderTrxID: event.TrxID,
	})
}
