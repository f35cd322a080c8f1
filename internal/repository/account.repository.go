package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimasrn/group-factory/internal/model"
	"github.com/nimasrn/group-factory/pkg/pg"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrConcurrentUpdate    = errors.New("concurrent update detected")
	ErrMaxRetriesExceeded  = errors.New("max retries exceeded")
)

const (
	balanceMaxRetries = 3
	balanceBaseDelay  = 2 * time.Millisecond
)

type AccountRepository struct {
	*pg.DB
}

func NewAccountRepository(db *pg.DB) *AccountRepository {
	return &AccountRepository{
		db,
	}
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) (*model.Account, error) {
	entity := toAccountEntity(account)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toAccountModel(entity), nil
}

func (r *AccountRepository) Get(ctx context.Context, accountID int64) (*model.Account, error) {
	var entity AccountEntity
	err := r.Read(ctx).
		Where("id = ?", accountID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return toAccountModel(&entity), nil
}

func (r *AccountRepository) GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	var entity AccountEntity
	err := r.Read(ctx).
		Select("balance").
		Where("id = ?", accountID).
		First(&entity).
		Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrAccountNotFound
		}
		return decimal.Zero, err
	}

	return entity.Balance, nil
}

// ApplyDelta adds a signed amount to the balance under a row lock and returns
// the resulting balance. It does not enforce non-negativity; debits that must
// not overdraw go through DebitIfSufficient.
func (r *AccountRepository) ApplyDelta(ctx context.Context, accountID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := withRetry(ctx, func() error {
		return r.WithinTransaction(ctx, func(ctx context.Context) error {
			var err error
			balance, err = r.applyDeltaAttempt(ctx, accountID, delta)
			return err
		})
	})
	return balance, err
}

func (r *AccountRepository) applyDeltaAttempt(ctx context.Context, accountID int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var entity AccountEntity

	// SELECT FOR UPDATE serializes deltas on the same account
	err := r.Write(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", accountID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, ErrAccountNotFound
		}
		return decimal.Zero, err
	}

	result := r.Write(ctx).
		Model(&AccountEntity{}).
		Where("id = ?", accountID).
		Update("balance", gorm.Expr("balance + ?", delta))
	if result.Error != nil {
		return decimal.Zero, result.Error
	}
	if result.RowsAffected == 0 {
		return decimal.Zero, ErrConcurrentUpdate
	}

	return entity.Balance.Add(delta), nil
}

// DebitIfSufficient subtracts amount only if the balance covers it. The check
// and the write are one conditional UPDATE, so two concurrent debits can never
// both pass on the same funds.
func (r *AccountRepository) DebitIfSufficient(ctx context.Context, accountID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("debit amount must not be negative: %s", amount)
	}

	var balance decimal.Decimal
	err := withRetry(ctx, func() error {
		return r.WithinTransaction(ctx, func(ctx context.Context) error {
			result := r.Write(ctx).
				Model(&AccountEntity{}).
				Where("id = ? AND balance >= ?", accountID, amount).
				Update("balance", gorm.Expr("balance - ?", amount))
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return r.checkDeductionFailureReason(ctx, accountID, amount)
			}

			var err error
			balance, err = r.GetBalance(ctx, accountID)
			return err
		})
	})
	return balance, err
}

// checkDeductionFailureReason determines why the conditional debit matched no row.
func (r *AccountRepository) checkDeductionFailureReason(ctx context.Context, accountID int64, amount decimal.Decimal) error {
	balance, err := r.GetBalance(ctx, accountID)
	if err != nil {
		return err
	}

	if balance.LessThan(amount) {
		return ErrInsufficientBalance
	}

	// balance was sufficient but the update missed, likely a concurrent modification
	return ErrConcurrentUpdate
}

// withRetry retries transient failures with exponential backoff: 2ms, 4ms, 8ms.
func withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= balanceMaxRetries; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrInsufficientBalance) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt < balanceMaxRetries {
			delay := balanceBaseDelay * time.Duration(1<<attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("%w: failed after %d attempts: %v", ErrMaxRetriesExceeded, balanceMaxRetries+1, err)
}
