package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/garword/topupid-backend/api/responses"
	"github.com/garword/topupid-backend/internal/wallet"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/logger"
	"github.com/garword/topupid-backend/pkg/pagination"
)

// WalletBalance reports a user's current balance.
func WalletBalance(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}
		userID, err := uuid.Parse(chi.URLParam(r, "userID"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid user id"))
			return
		}
		balance, err := svc.Balance(ctx, userID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"user_id": userID.String(), "balance": balance})
	}
}

// WalletLedger returns one page of a user's ledger.
func WalletLedger(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}
		userID, err := uuid.Parse(chi.URLParam(r, "userID"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid user id"))
			return
		}
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid limit"))
				return
			}
		}
		rows, next, err := svc.Ledger(ctx, userID, pagination.Params{
			Limit:  limit,
			Cursor: r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		entries := make([]ledgerEntryResponse, 0, len(rows))
		for _, row := range rows {
			entries = append(entries, ledgerEntryResponse{
				ID:            row.ID.String(),
				Type:          row.Type.String(),
				Status:        row.Status.String(),
				Amount:        row.Amount.String(),
				BalanceBefore: row.BalanceBefore.String(),
				BalanceAfter:  row.BalanceAfter.String(),
				Reference:     row.Reference,
				Description:   row.Description,
				CreatedAt:     row.CreatedAt.UTC(),
			})
		}
		responses.WriteSuccess(w, map[string]any{
			"transactions": entries,
			"next_cursor":  next,
		})
	}
}

type ledgerEntryResponse struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Status        string    `json:"status"`
	Amount        string    `json:"amount"`
	BalanceBefore string    `json:"balance_before"`
	BalanceAfter  string    `json:"balance_after"`
	Reference     string    `json:"reference"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"created_at"`
}
