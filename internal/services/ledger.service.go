package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nimasrn/group-factory/internal/model"
	"github.com/nimasrn/group-factory/internal/repository"
	"github.com/nimasrn/group-factory/pkg/logger"
	"github.com/shopspring/decimal"
)

type LedgerService struct {
	accounts     AccountRepository
	transactions TransactionRepository
}

func NewLedgerService(accounts AccountRepository, transactions TransactionRepository) *LedgerService {
	return &LedgerService{
		accounts:     accounts,
		transactions: transactions,
	}
}

func (s *LedgerService) GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	balance, err := s.accounts.GetBalance(ctx, accountID)
	if errors.Is(err, repository.ErrAccountNotFound) {
		return decimal.Zero, ErrNotFound
	}
	return balance, err
}

// ClaimCredit records a user's claim of a sent payment as a pending credit.
// Nothing reaches the balance until an admin approves it.
func (s *LedgerService) ClaimCredit(ctx context.Context, req model.CreditClaimRequest) (*model.Transaction, error) {
	req.Reference = strings.TrimSpace(req.Reference)
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if _, err := s.accounts.Get(ctx, req.AccountID); err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	reference := req.Reference
	txn, err := s.transactions.Create(ctx, &model.Transaction{
		AccountID:   req.AccountID,
		Kind:        model.TransactionKindCredit,
		Amount:      req.Amount,
		Description: "Crypto deposit",
		Status:      model.TransactionStatusPending,
		Reference:   &reference,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Credit claimed", "transaction_id", txn.ID, "account_id", txn.AccountID, "amount", txn.Amount.String())
	return txn, nil
}

// ApproveCredit completes a pending credit and applies it to the balance
// exactly once. Approving anything that is not a pending credit returns it unchanged.
func (s *LedgerService) ApproveCredit(ctx context.Context, transactionID int64) (*model.Transaction, error) {
	return s.settle(ctx, transactionID, model.TransactionStatusCompleted)
}

// RejectCredit fails a pending credit without touching the balance.
func (s *LedgerService) RejectCredit(ctx context.Context, transactionID int64) (*model.Transaction, error) {
	return s.settle(ctx, transactionID, model.TransactionStatusFailed)
}

func (s *LedgerService) settle(ctx context.Context, transactionID int64, status model.TransactionStatus) (*model.Transaction, error) {
	var result *model.Transaction
	err := s.accounts.WithinTransaction(ctx, func(ctx context.Context) error {
		txn, err := s.transactions.GetForUpdate(ctx, transactionID)
		if err != nil {
			if errors.Is(err, repository.ErrTransactionNotFound) {
				return ErrNotFound
			}
			return err
		}

		if !txn.IsPendingCredit() {
			result = txn
			return nil
		}

		settled, err := s.transactions.SettlePendingCredit(ctx, transactionID, status)
		if err != nil {
			return err
		}
		if !settled {
			// lost a race with another settlement; report what it left behind
			result, err = s.transactions.Get(ctx, transactionID)
			return err
		}

		if status == model.TransactionStatusCompleted {
			if _, err := s.accounts.ApplyDelta(ctx, txn.AccountID, txn.Amount); err != nil {
				return fmt.Errorf("apply credit: %w", err)
			}
		}

		txn.Status = status
		result = txn
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Credit settled", "transaction_id", result.ID, "status", string(result.Status))
	return result, nil
}

func (s *LedgerService) ListTransactions(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error) {
	return s.transactions.List(ctx, f)
}
