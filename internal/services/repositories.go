package services

import (
	"context"

	"github.com/nimasrn/group-factory/internal/model"
	"github.com/shopspring/decimal"
)

type AccountRepository interface {
	Get(ctx context.Context, accountID int64) (*model.Account, error)
	GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error)
	ApplyDelta(ctx context.Context, accountID int64, delta decimal.Decimal) (decimal.Decimal, error)
	DebitIfSufficient(ctx context.Context, accountID int64, amount decimal.Decimal) (decimal.Decimal, error)
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type TransactionRepository interface {
	Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error)
	Get(ctx context.Context, id int64) (*model.Transaction, error)
	GetForUpdate(ctx context.Context, id int64) (*model.Transaction, error)
	SettlePendingCredit(ctx context.Context, id int64, status model.TransactionStatus) (bool, error)
	List(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error)
}

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) (*model.Order, error)
	Get(ctx context.Context, id int64) (*model.Order, error)
	Update(ctx context.Context, id int64, update model.OrderUpdate) error
	List(ctx context.Context, f model.OrderFilter) ([]*model.Order, int64, error) // results, totalCount
	ListRecent(ctx context.Context, accountID int64) ([]*model.Order, error)
	CountByStatus(ctx context.Context, accountID int64, statuses ...model.OrderStatus) (int64, error)
}

type GroupRepository interface {
	List(ctx context.Context, f model.GroupFilter) ([]*model.Group, int64, error)
	ListRecent(ctx context.Context, accountID int64) ([]*model.Group, error)
	CountByAccount(ctx context.Context, accountID int64) (int64, error)
}

type SettingRepository interface {
	Get(ctx context.Context) (*model.PaymentSetting, error)
	Upsert(ctx context.Context, setting model.PaymentSetting) error
}

type ConnectionRepository interface {
	GetActive(ctx context.Context, accountID int64) (*model.Connection, error)
	Activate(ctx context.Context, conn *model.Connection) (*model.Connection, error)
	Deactivate(ctx context.Context, accountID int64) error
}
