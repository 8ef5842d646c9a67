package webhooks

import (
	"context"

	"github.com/garword/topupid-backend/internal/reconcile"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/logger"
	"github.com/garword/topupid-backend/pkg/metrics"
)

// applyEvent hands a canonical event to the reconciler. A reference we have
// no item for is acknowledged: vendors redeliver on non-2xx and a retry will
// never make an unknown ref known.
func applyEvent(ctx context.Context, logg *logger.Logger, m *metrics.WebhookMetrics, reconciler reconcile.Service, source string, event reconcile.Event) error {
	ctx = logg.WithField(logg.WithProvider(ctx, source), "ref_id", event.RefID)
	err := reconciler.Apply(ctx, event)
	if err == nil {
		return nil
	}
	if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		logg.Warn(ctx, "webhook references unknown ref id")
		m.IncRejected(source, "unknown_ref")
		return nil
	}
	return err
}
