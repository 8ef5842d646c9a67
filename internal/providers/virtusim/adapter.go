package virtusim

import (
	"context"
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

// Adapter integrates the virtual phone number vendor. The API is GET-based
// with the api_key passed as a query parameter; an order hands out a number
// and completes once the SMS arrives.
type Adapter struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logg    *logger.Logger
}

// New builds the virtusim adapter from configuration.
func New(cfg config.VirtusimConfig, logg *logger.Logger) (*Adapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("virtusim api key required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("virtusim base url required")
	}
	return &Adapter{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		logg:    logg,
	}, nil
}

// Code implements providers.Adapter.
func (a *Adapter) Code() enums.ProviderCode {
	return enums.ProviderCodeVirtusim
}

type apiResponse struct {
	Status bool `json:"status"`
	Data   struct {
		OrderID string `json:"order_id"`
		Number  string `json:"number"`
		SMS     string `json:"sms"`
		Status  string `json:"status"`
		Message string `json:"msg"`
	} `json:"data"`
	Message string `json:"msg"`
}

// PlaceOrder implements providers.Adapter.
func (a *Adapter) PlaceOrder(ctx context.Context, input providers.PlaceOrderInput) (*providers.PlaceOrderResult, error) {
	query := url.Values{}
	query.Set("action", "order")
	query.Set("service", input.SKU)
	query.Set("custom_id", input.RefID)

	resp, err := a.get(ctx, query)
	if err != nil {
		if a.logg != nil {
			a.logg.Warn(a.logg.WithProvider(ctx, a.Code().String()), "order call failed, outcome unknown")
		}
		return &providers.PlaceOrderResult{
			Accepted: false,
			Status:   enums.ProviderStatusProcessing,
			Message:  fmt.Sprintf("virtusim unreachable: %v", err),
		}, nil
	}

	if !resp.Status {
		return &providers.PlaceOrderResult{
			Accepted: false,
			Status:   enums.ProviderStatusFailed,
			Message:  firstNonEmpty(resp.Data.Message, resp.Message),
		}, nil
	}
	return &providers.PlaceOrderResult{
		Accepted:      true,
		ProviderTrxID: resp.Data.OrderID,
		Status:        MapStatus(resp.Data.Status),
		Serial:        resp.Data.Number,
		Message:       firstNonEmpty(resp.Data.Message, resp.Message),
	}, nil
}

// CheckStatus implements providers.Adapter.
func (a *Adapter) CheckStatus(ctx context.Context, refID string) (*providers.StatusResult, error) {
	query := url.Values{}
	query.Set("action", "status")
	query.Set("custom_id", refID)

	resp, err := a.get(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "virtusim status check")
	}

	serial := resp.Data.SMS
	if serial == "" {
		serial = resp.Data.Number
	}
	return &providers.StatusResult{
		Status:        MapStatus(resp.Data.Status),
		ProviderTrxID: resp.Data.OrderID,
		Serial:        serial,
		Message:       firstNonEmpty(resp.Data.Message, resp.Message),
	}, nil
}

func (a *Adapter) get(ctx context.Context, query url.Values) (*apiResponse, error) {
	query.Set("api_key", a.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/v2/json.php?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	httpResp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode virtusim response: %w", err)
	}
	return &resp, nil
}

// MapStatus folds the vendor's status vocabulary into the canonical
// provider status. Unknown values stay processing.
func MapStatus(raw string) enums.ProviderStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed", "success":
		return enums.ProviderStatusSuccess
	case "canceled", "cancelled", "expired":
		return enums.ProviderStatusFailed
	case "ready", "waiting", "pending":
		return enums.ProviderStatusPending
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
