package enums

import "fmt"

// WalletTransactionType classifies a ledger row.
type WalletTransactionType string

const (
	WalletTransactionTypeDeposit WalletTransactionType = "deposit"
	WalletTransactionTypeRefund  WalletTransactionType = "refund"
	WalletTransactionTypeCredit  WalletTransactionType = "credit"
	WalletTransactionTypeDebit   WalletTransactionType = "debit"
)

var validWalletTransactionTypes = []WalletTransactionType{
	WalletTransactionTypeDeposit,
	WalletTransactionTypeRefund,
	WalletTransactionTypeCredit,
	WalletTransactionTypeDebit,
}

// String implements fmt.Stringer.
func (w WalletTransactionType) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WalletTransactionType.
func (w WalletTransactionType) IsValid() bool {
	for _, candidate := range validWalletTransactionTypes {
		if candidate == w {
			return true
		}
	}
	return false
}

// IsCredit reports whether the type increases the user balance.
func (w WalletTransactionType) IsCredit() bool {
	return w == WalletTransactionTypeDeposit || w == WalletTransactionTypeRefund || w == WalletTransactionTypeCredit
}

// ParseWalletTransactionType converts raw input into a WalletTransactionType.
func ParseWalletTransactionType(value string) (WalletTransactionType, error) {
	for _, candidate := range validWalletTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet transaction type %q", value)
}

// WalletTransactionStatus records whether a ledger row settled.
type WalletTransactionStatus string

const (
	WalletTransactionStatusSuccess WalletTransactionStatus = "success"
	WalletTransactionStatusFailed  WalletTransactionStatus = "failed"
)

// String implements fmt.Stringer.
func (w WalletTransactionStatus) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WalletTransactionStatus.
func (w WalletTransactionStatus) IsValid() bool {
	return w == WalletTransactionStatusSuccess || w == WalletTransactionStatusFailed
}
