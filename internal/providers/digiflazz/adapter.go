package digiflazz

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/garword/topupid-backend/internal/providers"
	"github.com/garword/topupid-backend/pkg/config"
	"github.com/garword/topupid-backend/pkg/enums"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/logger"
)

// Adapter integrates the Digiflazz prepaid top-up API. Requests are signed
// with md5(username + apiKey + refID); a transaction POST with an already
// used ref_id is answered with the current state of that transaction, which
// makes dispatch retries safe.
type Adapter struct {
	baseURL  string
	username string
	apiKey   string
	http     *http.Client
	logg     *logger.Logger
}

// New builds the Digiflazz adapter from configuration.
func New(cfg config.DigiflazzConfig, logg *logger.Logger) (*Adapter, error) {
	if cfg.Username == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("digiflazz credentials required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("digiflazz base url required")
	}
	return &Adapter{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		apiKey:   cfg.APIKey,
		http:     &http.Client{Timeout: cfg.Timeout},
		logg:     logg,
	}, nil
}

// Code implements providers.Adapter.
func (a *Adapter) Code() enums.ProviderCode {
	return enums.ProviderCodeDigiflazz
}

type transactionRequest struct {
	Username     string `json:"username"`
	BuyerSKUCode string `json:"buyer_sku_code"`
	CustomerNo   string `json:"customer_no"`
	RefID        string `json:"ref_id"`
	Sign         string `json:"sign"`
}

type transactionResponse struct {
	Data struct {
		RefID   string `json:"ref_id"`
		TrxID   string `json:"trx_id"`
		Status  string `json:"status"`
		Message string `json:"message"`
		SN      string `json:"sn"`
		RC      string `json:"rc"`
	} `json:"data"`
}

// PlaceOrder implements providers.Adapter.
func (a *Adapter) PlaceOrder(ctx context.Context, input providers.PlaceOrderInput) (*providers.PlaceOrderResult, error) {
	resp, err := a.postTransaction(ctx, input.SKU, input.Target, input.RefID)
	if err != nil {
		// Unknown outcome: the vendor may have accepted the order even
		// though we never saw the response. Reconciliation settles it.
		if a.logg != nil {
			a.logg.Warn(a.logg.WithProvider(ctx, a.Code().String()), "transaction call failed, outcome unknown")
		}
		return &providers.PlaceOrderResult{
			Accepted: false,
			Status:   enums.ProviderStatusProcessing,
			Message:  fmt.Sprintf("digiflazz unreachable: %v", err),
		}, nil
	}

	return &providers.PlaceOrderResult{
		Accepted:      true,
		ProviderTrxID: resp.Data.TrxID,
		Status:        MapStatus(resp.Data.Status),
		Serial:        resp.Data.SN,
		Message:       resp.Data.Message,
	}, nil
}

// CheckStatus implements providers.Adapter. Digiflazz has no separate
// status endpoint: re-POSTing the stored ref_id returns the current state.
func (a *Adapter) CheckStatus(ctx context.Context, refID string) (*providers.StatusResult, error) {
	resp, err := a.postTransaction(ctx, "", "", refID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "digiflazz status check")
	}
	return &providers.StatusResult{
		Status:        MapStatus(resp.Data.Status),
		ProviderTrxID: resp.Data.TrxID,
		Serial:        resp.Data.SN,
		Message:       resp.Data.Message,
	}, nil
}

func (a *Adapter) postTransaction(ctx context.Context, sku, target, refID string) (*transactionResponse, error) {
	payload := transactionRequest{
		Username:     a.username,
		BuyerSKUCode: sku,
		CustomerNo:   target,
		RefID:        refID,
		Sign:         Sign(a.username, a.apiKey, refID),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/transaction", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("digiflazz returned %d", httpResp.StatusCode)
	}

	var resp transactionResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode digiflazz response: %w", err)
	}
	return &resp, nil
}

// Sign computes the Digiflazz request signature for the given reference.
func Sign(username, apiKey, refID string) string {
	sum := md5.Sum([]byte(username + apiKey + refID))
	return hex.EncodeToString(sum[:])
}

// MapStatus normalizes the vendor vocabulary. Anything unrecognized is
// treated as still processing; a status we cannot read must never settle
// an item.
func MapStatus(raw string) enums.ProviderStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "sukses":
		return enums.ProviderStatusSuccess
	case "gagal":
		return enums.ProviderStatusFailed
	case "pending":
		return enums.ProviderStatusPending
	default:
		return enums.ProviderStatusProcessing
	}
}
