package gamestore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/garword/topupid-backend/internal/providers"
	"github.com/garword/topupid-backend/pkg/config"
	"github.com/garword/topupid-backend/pkg/enums"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/logger"
)

// Adapter integrates the second prepaid vendor. Requests are signed with
// sha256(merchantID + ":" + secret + ":" + refID).
type Adapter struct {
	baseURL    string
	merchantID string
	secret     string
	http       *http.Client
	logg       *logger.Logger
}

// New builds the gamestore adapter from configuration.
func New(cfg config.GamestoreConfig, logg *logger.Logger) (*Adapter, error) {
	if cfg.MerchantID == "" || cfg.Secret == "" {
		return nil, fmt.Errorf("gamestore credentials required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gamestore base url required")
	}
	return &Adapter{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		merchantID: cfg.MerchantID,
		secret:     cfg.Secret,
		http:       &http.Client{Timeout: cfg.Timeout},
		logg:       logg,
	}, nil
}

// Code implements providers.Adapter.
func (a *Adapter) Code() enums.ProviderCode {
	return enums.ProviderCodeGamestore
}

type orderRequest struct {
	MerchantID string `json:"merchant_id"`
	ProductID  string `json:"product_id"`
	Target     string `json:"target"`
	RefID      string `json:"ref_id"`
	Signature  string `json:"signature"`
}

type orderResponse struct {
	Status string `json:"status"`
	Data   struct {
		TrxID   string `json:"trx_id"`
		Status  string `json:"status"`
		SN      string `json:"sn"`
		Message string `json:"message"`
	} `json:"data"`
	Message string `json:"message"`
}

// PlaceOrder implements providers.Adapter.
func (a *Adapter) PlaceOrder(ctx context.Context, input providers.PlaceOrderInput) (*providers.PlaceOrderResult, error) {
	payload := orderRequest{
		MerchantID: a.merchantID,
		ProductID:  input.SKU,
		Target:     input.Target,
		RefID:      input.RefID,
		Signature:  Sign(a.merchantID, a.secret, input.RefID),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/v2/order", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := a.http.Do(req)
	if err != nil {
		if a.logg != nil {
			a.logg.Warn(a.logg.WithProvider(ctx, a.Code().String()), "order call failed, outcome unknown")
		}
		return &providers.PlaceOrderResult{
			Accepted: false,
			Status:   enums.ProviderStatusProcessing,
			Message:  fmt.Sprintf("gamestore unreachable: %v", err),
		}, nil
	}
	defer httpResp.Body.Close()

	var resp orderResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return &providers.PlaceOrderResult{
			Accepted: false,
			Status:   enums.ProviderStatusProcessing,
			Message:  fmt.Sprintf("unreadable gamestore response: %v", err),
		}, nil
	}

	return &providers.PlaceOrderResult{
		Accepted:      true,
		ProviderTrxID: resp.Data.TrxID,
		Status:        MapStatus(firstNonEmpty(resp.Data.Status, resp.Status)),
		Serial:        resp.Data.SN,
		Message:       firstNonEmpty(resp.Data.Message, resp.Message),
	}, nil
}

// CheckStatus implements providers.Adapter.
func (a *Adapter) CheckStatus(ctx context.Context, refID string) (*providers.StatusResult, error) {
	query := url.Values{}
	query.Set("merchant_id", a.merchantID)
	query.Set("ref_id", refID)
	query.Set("signature", Sign(a.merchantID, a.secret, refID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v2/status?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	httpResp, err := a.http.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gamestore status check")
	}
	defer httpResp.Body.Close()

	var resp orderResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode gamestore status")
	}

	return &providers.StatusResult{
		Status:        MapStatus(firstNonEmpty(resp.Data.Status, resp.Status)),
		ProviderTrxID: resp.Data.TrxID,
		Serial:        resp.Data.SN,
		Message:       firstNonEmpty(resp.Data.Message, resp.Message),
	}, nil
}

// Sign computes the gamestore request signature for the given reference.
func Sign(merchantID, secret, refID string) string {
	sum := sha256.Sum256([]byte(merchantID + ":" + secret + ":" + refID))
	return hex.EncodeToString(sum[:])
}

// MapStatus folds the vendor's status vocabulary into the canonical
// provider status. Unknown values stay processing.
func MapStatus(raw string) enums.ProviderStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "sukses":
		return enums.ProviderStatusSuccess
	case "error", "failed", "gagal":
		return enums.ProviderStatusFailed
	case "pending":
		return enums.ProviderStatusPending
	case "processing", "validasi provider":
		return enums.ProviderStatusProcessing
	default:
		return enums.ProviderStatusProcessing
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
