package enums

import "fmt"

// DepositStatus tracks the lifecycle of a wallet top-up request.
type DepositStatus string

const (
	DepositStatusPending  DepositStatus = "pending"
	DepositStatusPaid     DepositStatus = "paid"
	DepositStatusCanceled DepositStatus = "canceled"
	DepositStatusFailed   DepositStatus = "failed"
	DepositStatusRefunded DepositStatus = "refunded"
)

var validDepositStatuses = []DepositStatus{
	DepositStatusPending,
	DepositStatusPaid,
	DepositStatusCanceled,
	DepositStatusFailed,
	DepositStatusRefunded,
}

// String implements fmt.Stringer.
func (d DepositStatus) String() string {
	return string(d)
}

// IsValid reports whether the value is a known DepositStatus.
func (d DepositStatus) IsValid() bool {
	for _, candidate := range validDepositStatuses {
		if candidate == d {
			return true
		}
	}
	return false
}

// ParseDepositStatus converts raw input into a DepositStatus.
func ParseDepositStatus(value string) (DepositStatus, error) {
	for _, candidate := range validDepositStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid deposit status %q", value)
}
