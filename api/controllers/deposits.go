package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/garword/topupid-backend/api/responses"
	"github.com/garword/topupid-backend/api/validators"
	"github.com/garword/topupid-backend/internal/deposits"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/logger"
)

type createDepositRequest struct {
	UserID string          `json:"user_id" validate:"required,uuid"`
	Amount decimal.Decimal `json:"amount" validate:"required"`
	Fee    decimal.Decimal `json:"fee"`
}

type depositResponse struct {
	ID          string          `json:"id"`
	InvoiceCode string          `json:"invoice_code"`
	Amount      decimal.Decimal `json:"amount"`
	Fee         decimal.Decimal `json:"fee"`
	Total       decimal.Decimal `json:"total"`
	Status      string          `json:"status"`
	ExpiresAt   *string         `json:"expires_at,omitempty"`
}

// CreateDeposit opens a QRIS top-up request for a user.
func CreateDeposit(svc deposits.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deposits service unavailable"))
			return
		}
		var req createDepositRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid user id"))
			return
		}
		deposit, err := svc.Create(ctx, deposits.CreateInput{
			UserID: userID,
			Amount: req.Amount,
			Fee:    req.Fee,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		resp := depositResponse{
			ID:          deposit.ID.String(),
			InvoiceCode: deposit.InvoiceCode,
			Amount:      deposit.Amount,
			Fee:         deposit.Fee,
			Total:       deposit.Total,
			Status:      deposit.Status.String(),
		}
		if deposit.ExpiresAt != nil {
			formatted := deposit.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00")
			resp.ExpiresAt = &formatted
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, resp)
	}
}
