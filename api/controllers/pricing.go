package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/garword/topupid-backend/api/responses"
	"github.com/garword/topupid-backend/internal/pricing"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/logger"
)

// UserTier reports the pricing tier a user currently qualifies for.
func UserTier(svc pricing.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pricing service unavailable"))
			return
		}
		userID, err := uuid.Parse(chi.URLParam(r, "userID"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid user id"))
			return
		}
		tier, err := svc.TierFor(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"name":             tier.Name,
			"min_transactions": tier.MinTransactions,
			"margin_percent":   tier.MarginPercent,
		})
	}
}
