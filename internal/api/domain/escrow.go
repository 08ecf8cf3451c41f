package domain

// Escrow status constants
const (
	EscrowStatusPending   = "PENDING"
	EscrowStatusActive    = "ACTIVE"
	EscrowStatusCompleted = "COMPLETED"
	EscrowStatusCancelled = "CANCELLED"
)

// Escrow transaction types recorded in the ledger
const (
	TransactionTypeHold    = "HOLD"
	TransactionTypeConfirm = "CONFIRM"
	TransactionTypeRelease = "RELEASE"
	TransactionTypeCancel  = "CANCEL"
)

// DefaultCurrency is used when a create request omits the currency
const DefaultCurrency = "usd"

// IsValidEscrowStatus reports whether status is a known escrow status
func IsValidEscrowStatus(status string) bool {
	switch status {
	case EscrowStatusPending, EscrowStatusActive, EscrowStatusCompleted, EscrowStatusCancelled:
		return true
	}
	return false
}

// IsTerminalEscrowStatus reports whether no further transition is possible
func IsTerminalEscrowStatus(status string) bool {
	return status == EscrowStatusCompleted || status == EscrowStatusCancelled
}
