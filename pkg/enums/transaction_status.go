package enums

import "fmt"

// TransactionStatus maps to the transaction_status enum in Postgres.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusCancelled TransactionStatus = "cancelled"
	TransactionStatusRefunded  TransactionStatus = "refunded"
)

var validTransactionStatuses = []TransactionStatus{
	TransactionStatusPending,
	TransactionStatusCompleted,
	TransactionStatusCancelled,
	TransactionStatusRefunded,
}

// IsValid reports whether the value matches the canonical status enum.
func (s TransactionStatus) IsValid() bool {
	for _, candidate := range validTransactionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsReversed reports whether the transaction has already been undone;
// cancellation refuses to run twice on these states.
func (s TransactionStatus) IsReversed() bool {
	return s == TransactionStatusCancelled || s == TransactionStatusRefunded
}

// ParseTransactionStatus converts raw input into TransactionStatus.
func ParseTransactionStatus(value string) (TransactionStatus, error) {
	for _, candidate := range validTransactionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction status %q", value)
}
