package enums

import "fmt"

// ProviderStatus is the canonical status every vendor vocabulary is
// normalized into before any other component sees it.
type ProviderStatus string

const (
	ProviderStatusPending    ProviderStatus = "pending"
	ProviderStatusProcessing ProviderStatus = "processing"
	ProviderStatusSuccess    ProviderStatus = "success"
	ProviderStatusPartial    ProviderStatus = "partial"
	ProviderStatusFailed     ProviderStatus = "failed"
)

var validProviderStatuses = []ProviderStatus{
	ProviderStatusPending,
	ProviderStatusProcessing,
	ProviderStatusSuccess,
	ProviderStatusPartial,
	ProviderStatusFailed,
}

// String implements fmt.Stringer.
func (p ProviderStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known ProviderStatus.
func (p ProviderStatus) IsValid() bool {
	for _, candidate := range validProviderStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the item needs no further reconciliation.
// Partial stays open: the vendor may still refill or finish the remainder.
func (p ProviderStatus) IsTerminal() bool {
	return p == ProviderStatusSuccess || p == ProviderStatusFailed
}

// ParseProviderStatus converts raw input into a ProviderStatus.
func ParseProviderStatus(value string) (ProviderStatus, error) {
	for _, candidate := range validProviderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid provider status %q", value)
}
