package providers

import (
	"context"
	"fmt"
	"sort"

	"github.com/garword/topupid-backend/pkg/enums"
)

// PlaceOrderInput is the canonical dispatch call every vendor adapter
// accepts. RefID is chosen by the caller and must be stable across retries
// of the same item so the vendor treats a re-dispatch as the same
// transaction, not a duplicate charge.
type PlaceOrderInput struct {
	SKU      string
	Target   string
	Quantity int
	RefID    string
}

// PlaceOrderResult is the canonical outcome of a dispatch attempt.
type PlaceOrderResult struct {
	Accepted      bool
	ProviderTrxID string
	Status        enums.ProviderStatus
	Serial        string
	Message       string
}

// StatusResult is the canonical outcome of a status check. StartCount and
// Remains are populated only by engagement vendors.
type StatusResult struct {
	Status        enums.ProviderStatus
	ProviderTrxID string
	Serial        string
	Message       string
	StartCount    *int
	Remains       *int
}

// Adapter translates canonical calls into one vendor's wire format and the
// vendor's status vocabulary back into the canonical enum. Credentials and
// signature schemes never leave the adapter.
//
// A transport failure on PlaceOrder is an unknown outcome, not a rejection:
// adapters report it as a processing result with a note and leave the
// webhook or status poll to settle it.
type Adapter interface {
	Code() enums.ProviderCode
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*PlaceOrderResult, error)
	CheckStatus(ctx context.Context, refID string) (*StatusResult, error)
}

// Refiller is implemented by engagement vendors that support topping up a
// partially delivered order.
type Refiller interface {
	Refill(ctx context.Context, refID string) error
}

// Registry resolves the adapter bound to a provider code.
type Registry struct {
	adapters map[enums.ProviderCode]Adapter
}

// NewRegistry builds a registry preloaded with the provided adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	registry := &Registry{adapters: make(map[enums.ProviderCode]Adapter)}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		registry.adapters[adapter.Code()] = adapter
	}
	return registry
}

// Register adds an adapter, replacing any previous binding for its code.
func (r *Registry) Register(adapter Adapter) {
	if adapter == nil {
		return
	}
	r.adapters[adapter.Code()] = adapter
}

// Resolve returns the adapter bound to code.
func (r *Registry) Resolve(code enums.ProviderCode) (Adapter, error) {
	adapter, ok := r.adapters[code]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", code)
	}
	return adapter, nil
}

// Codes returns the registered provider codes in stable order.
func (r *Registry) Codes() []enums.ProviderCode {
	codes := make([]enums.ProviderCode, 0, len(r.adapters))
	for code := range r.adapters {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
