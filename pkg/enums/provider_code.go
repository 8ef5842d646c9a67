package enums

import "fmt"

// ProviderCode identifies which fulfillment vendor an order item is bound to.
type ProviderCode string

const (
	ProviderCodeDigiflazz ProviderCode = "digiflazz"
	ProviderCodeGamestore ProviderCode = "gamestore"
	ProviderCodeSosmed    ProviderCode = "sosmed"
	ProviderCodeVirtusim  ProviderCode = "virtusim"
)

var validProviderCodes = []ProviderCode{
	ProviderCodeDigiflazz,
	ProviderCodeGamestore,
	ProviderCodeSosmed,
	ProviderCodeVirtusim,
}

// String implements fmt.Stringer.
func (p ProviderCode) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProviderCode.
func (p ProviderCode) IsValid() bool {
	for _, candidate := range validProviderCodes {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProviderCode converts raw input into a ProviderCode.
func ParseProviderCode(value string) (ProviderCode, error) {
	for _, candidate := range validProviderCodes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provider code %q", value)
}
