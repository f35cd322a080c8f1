package services

import (
	"context"
	"testing"

	"github.com/nimasrn/group-factory/internal/model"
	"github.com/nimasrn/group-factory/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func pendingCredit(id int64, amount string) *model.Transaction {
	return &model.Transaction{
		ID:        id,
		AccountID: 1,
		Kind:      model.TransactionKindCredit,
		Amount:    decimal.RequireFromString(amount),
		Status:    model.TransactionStatusPending,
	}
}

func TestLedgerService_ApproveCredit(t *testing.T) {
	ctx := context.Background()

	t.Run("pending credit is applied once", func(t *testing.T) {
		accounts := new(MockAccountRepository)
		transactions := new(MockTransactionRepository)
		service := NewLedgerService(accounts, transactions)

		accounts.On("WithinTransaction", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
		transactions.On("GetForUpdate", ctx, int64(4)).Return(pendingCredit(4, "25.00"), nil)
		transactions.On("SettlePendingCredit", ctx, int64(4), model.TransactionStatusCompleted).Return(true, nil)
		accounts.On("ApplyDelta", ctx, int64(1), decEq("25.00")).Return(decimal.RequireFromString("25.00"), nil)

		txn, err := service.ApproveCredit(ctx, 4)
		require.NoError(t, err)
		assert.Equal(t, model.TransactionStatusCompleted, txn.Status)
		accounts.AssertNumberOfCalls(t, "ApplyDelta", 1)
	})

	t.Run("completed credit is a no-op", func(t *testing.T) {
		accounts := new(MockAccountRepository)
		transactions := new(MockTransactionRepository)
		service := NewLedgerService(accounts, transactions)

		done := pendingCredit(4, "25.00")
		done.Status = model.TransactionStatusCompleted

		accounts.On("WithinTransaction", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
		transactions.On("GetForUpdate", ctx, int64(4)).Return(done, nil)

		txn, err := service.ApproveCredit(ctx, 4)
		require.NoError(t, err)
		assert.Equal(t, model.TransactionStatusCompleted, txn.Status)
		accounts.AssertNotCalled(t, "ApplyDelta", mock.Anything, mock.Anything, mock.Anything)
		transactions.AssertNotCalled(t, "SettlePendingCredit", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("debit is never approved", func(t *testing.T) {
		accounts := new(MockAccountRepository)
		transactions := new(MockTransactionRepository)
		service := NewLedgerService(accounts, transactions)

		debit := pendingCredit(5, "1")
		debit.Kind = model.TransactionKindDebit

		accounts.On("WithinTransaction", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
		transactions.On("GetForUpdate", ctx, int64(5)).Return(debit, nil)

		txn, err := service.ApproveCredit(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, model.TransactionStatusPending, txn.Status)
		accounts.AssertNotCalled(t, "ApplyDelta", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("lost race reports the settled state", func(t *testing.T) {
		accounts := new(MockAccountRepository)
		transactions := new(MockTransactionRepository)
		service := NewLedgerService(accounts, transactions)

		settled := pendingCredit(4, "25.00")
		settled.Status = model.TransactionStatusCompleted

		accounts.On("WithinTransaction", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
		transactions.On("GetForUpdate", ctx, int64(4)).Return(pendingCredit(4, "25.00"), nil)
		transactions.On("SettlePendingCredit", ctx, int64(4), model.TransactionStatusCompleted).Return(false, nil)
		transactions.On("Get", ctx, int64(4)).Return(settled, nil)

		txn, err := service.ApproveCredit(ctx, 4)
		require.NoError(t, err)
		assert.Equal(t, model.TransactionStatusCompleted, txn.Status)
		accounts.AssertNotCalled(t, "ApplyDelta", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		accounts := new(MockAccountRepository)
		transactions := new(MockTransactionRepository)
		service := NewLedgerService(accounts, transactions)

		accounts.On("WithinTransaction", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
		transactions.On("GetForUpdate", ctx, int64(99)).Return(nil, repository.ErrTransactionNotFound)

		_, err := service.ApproveCredit(ctx, 99)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestLedgerService_RejectCredit(t *testing.T) {
	ctx := context.Background()
	accounts := new(MockAccountRepository)
	transactions := new(MockTransactionRepository)
	service := NewLedgerService(accounts, transactions)

	accounts.On("WithinTransaction", ctx, mock.AnythingOfType("func(context.Context) error")).Return(nil)
	transactions.On("GetForUpdate", ctx, int64(4)).Return(pendingCredit(4, "25.00"), nil)
	transactions.On("SettlePendingCredit", ctx, int64(4), model.TransactionStatusFailed).Return(true, nil)

	txn, err := service.RejectCredit(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionStatusFailed, txn.Status)
	accounts.AssertNotCalled(t, "ApplyDelta", mock.Anything, mock.Anything, mock.Anything)
}

func TestLedgerService_ClaimCredit(t *testing.T) {
	ctx := context.Background()

	t.Run("records a pending credit", func(t *testing.T) {
		accounts := new(MockAccountRepository)
		transactions := new(MockTransactionRepository)
		service := NewLedgerService(accounts, transactions)

		accounts.On("Get", ctx, int64(1)).Return(&model.Account{ID: 1}, nil)
		transactions.On("Create", ctx, mock.MatchedBy(func(txn *model.Transaction) bool {
			return txn.IsPendingCredit() && txn.Reference != nil && *txn.Reference == "0xfeed"
		})).Return(pendingCredit(8, "25"), nil)

		txn, err := service.ClaimCredit(ctx, model.CreditClaimRequest{
			AccountID: 1,
			Amount:    decimal.RequireFromString("25"),
			Reference: "  0xfeed ",
		})
		require.NoError(t, err)
		assert.Equal(t, int64(8), txn.ID)
		accounts.AssertNotCalled(t, "ApplyDelta", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		service := NewLedgerService(new(MockAccountRepository), new(MockTransactionRepository))

		_, err := service.ClaimCredit(ctx, model.CreditClaimRequest{AccountID: 1, Amount: decimal.Zero, Reference: "x"})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("unknown account", func(t *testing.T) {
		accounts := new(MockAccountRepository)
		service := NewLedgerService(accounts, new(MockTransactionRepository))

		accounts.On("Get", ctx, int64(2)).Return(nil, repository.ErrAccountNotFound)

		_, err := service.ClaimCredit(ctx, model.CreditClaimRequest{AccountID: 2, Amount: decimal.NewFromInt(1), Reference: "x"})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestStatsService_Get(t *testing.T) {
	ctx := context.Background()
	accounts := new(MockAccountRepository)
	orders := new(MockOrderRepository)
	groups := new(MockGroupRepository)
	service := NewStatsService(accounts, orders, groups)

	accounts.On("GetBalance", ctx, int64(1)).Return(decimal.RequireFromString("9.90"), nil)
	groups.On("CountByAccount", ctx, int64(1)).Return(int64(12), nil)
	orders.On("CountByStatus", ctx, int64(1), []model.OrderStatus{model.OrderStatusPending, model.OrderStatusProcessing}).Return(int64(2), nil)
	orders.On("CountByStatus", ctx, int64(1), []model.OrderStatus{model.OrderStatusCompleted}).Return(int64(3), nil)

	stats, err := service.Get(ctx, 1)
	require.NoError(t, err)
	assert.True(t, stats.Balance.Equal(decimal.RequireFromString("9.9")))
	assert.Equal(t, int64(12), stats.TotalGroups)
	assert.Equal(t, int64(2), stats.ActiveOrders)
	assert.Equal(t, int64(3), stats.CompletedOrders)

	accounts.On("GetBalance", ctx, int64(2)).Return(decimal.Zero, repository.ErrAccountNotFound)
	_, err = service.Get(ctx, 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSettingsService(t *testing.T) {
	ctx := context.Background()
	repo := new(MockSettingRepository)
	defaults := model.PaymentSetting{PricePerHundredGroups: decimal.RequireFromString("2"), MaxGroupsPerOrder: 50}
	service := NewSettingsService(repo, defaults)

	repo.On("Get", ctx).Return(nil, repository.ErrSettingsNotFound).Once()
	setting, err := service.Effective(ctx)
	require.NoError(t, err)
	assert.Equal(t, defaults, setting)

	_, err = service.Update(ctx, model.PaymentSetting{PricePerHundredGroups: decimal.NewFromInt(-1), MaxGroupsPerOrder: 5})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = service.Update(ctx, model.PaymentSetting{PricePerHundredGroups: decimal.Zero, MaxGroupsPerOrder: 5})
	assert.ErrorIs(t, err, ErrInvalidRequest)
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)

	updated := model.PaymentSetting{PricePerHundredGroups: decimal.RequireFromString("3"), MaxGroupsPerOrder: 5}
	repo.On("Upsert", ctx, updated).Return(nil)
	_, err = service.Update(ctx, updated)
	require.NoError(t, err)

	repo.On("Get", ctx).Return(&updated, nil)
	setting, err = service.Effective(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, setting.MaxGroupsPerOrder)
}

func TestSettingsService_StoredZeroPriceFallsBack(t *testing.T) {
	ctx := context.Background()
	repo := new(MockSettingRepository)
	defaults := model.PaymentSetting{PricePerHundredGroups: decimal.RequireFromString("2"), MaxGroupsPerOrder: 50}
	service := NewSettingsService(repo, defaults)

	repo.On("Get", ctx).Return(&model.PaymentSetting{PricePerHundredGroups: decimal.Zero, MaxGroupsPerOrder: 5}, nil)

	setting, err := service.Effective(ctx)
	require.NoError(t, err)
	assert.True(t, setting.PricePerHundredGroups.Equal(defaults.PricePerHundredGroups))
	assert.Equal(t, 5, setting.MaxGroupsPerOrder)
}
