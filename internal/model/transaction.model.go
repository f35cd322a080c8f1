package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	TransactionKindCredit TransactionKind = "credit"
	TransactionKindDebit  TransactionKind = "debit"
)

type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

type Transaction struct {
	ID          int64             `json:"id"`
	AccountID   int64             `json:"account_id"`
	Kind        TransactionKind   `json:"kind"`
	Amount      decimal.Decimal   `json:"amount"`
	Description string            `json:"description"`
	Status      TransactionStatus `json:"status"`
	Reference   *string           `json:"reference,omitempty"` // settlement hash of a claimed payment
	CreatedAt   time.Time         `json:"created_at"`
}

// IsPendingCredit reports whether the transaction still awaits admin approval.
func (t *Transaction) IsPendingCredit() bool {
	return t.Kind == TransactionKindCredit && t.Status == TransactionStatusPending
}

// CreditClaimRequest is a user's claim that a payment was sent.
type CreditClaimRequest struct {
	AccountID int64
	Amount    decimal.Decimal
	Reference string
}

func (r CreditClaimRequest) Validate() error {
	if r.AccountID == 0 {
		return errors.New("account_id is required")
	}
	if !r.Amount.IsPositive() {
		return errors.New("amount must be positive")
	}
	if r.Reference == "" {
		return errors.New("reference is required")
	}
	return nil
}

type TransactionFilter struct {
	AccountID *int64
	Kind      TransactionKind
	Status    TransactionStatus
	Limit     int // default 50
	Offset    int
}
