package controllers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garword/topupid-backend/api/responses"
	"github.com/garword/topupid-backend/api/validators"
	"github.com/garword/topupid-backend/internal/cron"
	"github.com/garword/topupid-backend/internal/refund"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/logger"
)

// RunJob executes one pass of the given job, for external schedulers and
// operators. The cron worker runs the same jobs on its own cadence.
func RunJob(job cron.Job, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if job == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "job unavailable"))
			return
		}
		if err := job.Run(ctx); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "job run failed"))
			return
		}
		responses.WriteSuccess(w, map[string]string{"job": job.Name(), "status": "completed"})
	}
}

type dispatcher interface {
	DispatchOrder(ctx context.Context, orderID uuid.UUID) error
	RefillItem(ctx context.Context, itemID uuid.UUID) error
}

// DispatchOrder re-runs fulfillment dispatch for one order. Dispatch is
// idempotent per item, so operators can retry freely.
func DispatchOrder(svc dispatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orchestrator unavailable"))
			return
		}
		orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id"))
			return
		}
		if err := svc.DispatchOrder(ctx, orderID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"order_id": orderID.String(), "status": "dispatched"})
	}
}

// RefillItem requests a vendor refill for a partially delivered item.
// Only engagement vendors accept refills; others answer with a conflict.
func RefillItem(svc dispatcher, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orchestrator unavailable"))
			return
		}
		itemID, err := uuid.Parse(chi.URLParam(r, "itemID"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid item id"))
			return
		}
		if err := svc.RefillItem(ctx, itemID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"item_id": itemID.String(), "status": "refill_requested"})
	}
}

// refundRequest is the operator refund body. A nil amount means a full
// refund; a value refunds that amount without canceling the order and
// requires a reference so a retried request credits at most once.
type refundRequest struct {
	Amount    *decimal.Decimal `json:"amount"`
	Reference string           `json:"reference" validate:"omitempty,max=100"`
	Reason    string           `json:"reason" validate:"required,max=255"`
}

// RefundOrder applies an operator-initiated refund.
func RefundOrder(svc refund.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "refund service unavailable"))
			return
		}
		orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid order id"))
			return
		}
		var req refundRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if req.Amount != nil {
			if req.Reference == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "reference is required for partial refunds"))
				return
			}
			err = svc.RefundPartial(ctx, orderID, *req.Amount, req.Reference, req.Reason)
		} else {
			err = svc.Refund(ctx, orderID, req.Reason)
		}
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"order_id": orderID.String(), "status": "refunded"})
	}
}
