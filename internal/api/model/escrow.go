package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Escrow struct {
	ID               string          `db:"id"`
	ProjectID        string          `db:"project_id"`
	Amount           decimal.Decimal `db:"amount"`
	ReleasedAmount   decimal.Decimal `db:"released_amount"`
	Currency         string          `db:"currency"`
	Status           string          `db:"status"`
	PaymentReference string          `db:"payment_reference"`
	CreatedBy        string          `db:"created_by"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

// Remaining is the amount still held and capturable
func (e *Escrow) Remaining() decimal.Decimal {
	return e.Amount.Sub(e.ReleasedAmount)
}

type EscrowTransaction struct {
	ID        string          `db:"id"`
	EscrowID  string          `db:"escrow_id"`
	Type      string          `db:"type"`
	Amount    decimal.Decimal `db:"amount"`
	CreatedAt time.Time       `db:"created_at"`
}
