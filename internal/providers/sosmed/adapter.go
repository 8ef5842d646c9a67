package sosmed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/garword/topupid-backend/internal/providers"
	"github.com/garword/topupid-backend/pkg/config"
	"github.com/garword/topupid-backend/pkg/enums"
	pkgerrors "github.com/garword/topupid-backend/pkg/errors"
	"github.com/garword/topupid-backend/pkg/logger"
)

// Adapter integrates the social-engagement panel. The vendor speaks
// form-encoded requests with api_id/api_key credentials and reports partial
// delivery through start_count/remains counters.
type Adapter struct {
	baseURL string
	apiID   string
	apiKey  string
	http    *http.Client
	logg    *logger.Logger
}

// New builds the sosmed adapter from configuration.
func New(cfg config.SosmedConfig, logg *logger.Logger) (*Adapter, error) {
	if cfg.APIID == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("sosmed credentials required")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("sosmed base url required")
	}
	return &Adapter{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiID:   cfg.APIID,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
		logg:    logg,
	}, nil
}

// Code implements providers.Adapter.
func (a *Adapter) Code() enums.ProviderCode {
	return enums.ProviderCodeSosmed
}

type apiResponse struct {
	Status bool `json:"status"`
	Data   struct {
		ID         json.Number `json:"id"`
		Status     string      `json:"status"`
		StartCount *int        `json:"start_count"`
		Remains    *int        `json:"remains"`
		Message    string      `json:"msg"`
	} `json:"data"`
	Message string `json:"msg"`
}

// PlaceOrder implements providers.Adapter.
func (a *Adapter) PlaceOrder(ctx context.Context, input providers.PlaceOrderInput) (*providers.PlaceOrderResult, error) {
	form := a.baseForm("order")
	form.Set("service", input.SKU)
	form.Set("target", input.Target)
	form.Set("quantity", strconv.Itoa(input.Quantity))
	form.Set("custom_id", input.RefID)

	resp, err := a.post(ctx, form)
	if err != nil {
		if a.logg != nil {
			a.logg.Warn(a.logg.WithProvider(ctx, a.Code().String()), "order call failed, outcome unknown")
		}
		return &providers.PlaceOrderResult{
			Accepted: false,
			Status:   enums.ProviderStatusProcessing,
			Message:  fmt.Sprintf("sosmed unreachable: %v", err),
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
		ProviderTrxID: resp.Data.ID.String(),
		Status:        MapStatus(resp.Data.Status),
		Message:       firstNonEmpty(resp.Data.Message, resp.Message),
	}, nil
}

// CheckStatus implements providers.Adapter.
func (a *Adapter) CheckStatus(ctx context.Context, refID string) (*providers.StatusResult, error) {
	form := a.baseForm("status")
	form.Set("custom_id", refID)

	resp, err := a.post(ctx, form)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sosmed status check")
	}

	return &providers.StatusResult{
		Status:        MapStatus(resp.Data.Status),
		ProviderTrxID: resp.Data.ID.String(),
		Message:       firstNonEmpty(resp.Data.Message, resp.Message),
		StartCount:    resp.Data.StartCount,
		Remains:       resp.Data.Remains,
	}, nil
}

// Refill implements providers.Refiller.
func (a *Adapter) Refill(ctx context.Context, refID string) error {
	form := a.baseForm("refill")
	form.Set("custom_id", refID)

	resp, err := a.post(ctx, form)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sosmed refill")
	}
	if !resp.Status {
		return pkgerrors.New(pkgerrors.CodeDependency, firstNonEmpty(resp.Data.Message, resp.Message))
	}
	return nil
}

func (a *Adapter) baseForm(action string) url.Values {
	form := url.Values{}
	form.Set("api_id", a.apiID)
	form.Set("api_key", a.apiKey)
	form.Set("action", action)
	return form
}

func (a *Adapter) post(ctx context.Context, form url.Values) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	httpResp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode sosmed response: %w", err)
	}
	return &resp, nil
}

// MapStatus folds the vendor's status vocabulary into the canonical
// provider status. Unknown values stay processing.
func MapStatus(raw string) enums.ProviderStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "completed":
		return enums.ProviderStatusSuccess
	case "partial":
		return enums.ProviderStatusPartial
	case "error", "canceled", "cancelled":
		return enums.ProviderStatusFailed
	case "pending":
		return enums.ProviderStatusPending
	case "processing", "in progress", "inprogress":
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
