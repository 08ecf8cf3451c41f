package dto

import "github.com/shopspring/decimal"

type CreateEscrowRequest struct {
	ProjectID string          `json:"project_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
}

type ReleaseFundsRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type ListEscrowsRequest struct {
	ProjectID string `form:"project_id"`
	Status    string `form:"status"`
	PageSize  int    `form:"page_size"`
	Cursor    string `form:"cursor"`
}

type EscrowDTO struct {
	ID               string `json:"id"`
	ProjectID        string `json:"project_id"`
	Amount           string `json:"amount"`
	ReleasedAmount   string `json:"released_amount"`
	RemainingAmount  string `json:"remaining_amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	PaymentReference string `json:"payment_reference"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

type EscrowResponse struct {
	Escrow EscrowDTO `json:"escrow"`
}

type CreateEscrowResponse struct {
	Escrow       EscrowDTO `json:"escrow"`
	ClientSecret string    `json:"client_secret"`
}

type ListEscrowsResponse struct {
	Escrows    []EscrowDTO `json:"escrows"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

type ErrorBody struct {
	Kind      string `json:"kind"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type TransactionDTO struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Amount    string `json:"amount"`
	CreatedAt string `json:"created_at"`
}

type ListTransactionsResponse struct {
	Transactions []TransactionDTO `json:"transactions"`
}
