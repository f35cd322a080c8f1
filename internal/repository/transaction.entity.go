package repository

import (
	"time"

	"github.com/nimasrn/group-factory/internal/model"
	"github.com/shopspring/decimal"
)

type TransactionEntity struct {
	ID          int64           `db:"id"          gorm:"primaryKey;autoIncrement;column:id"`
	AccountID   int64           `db:"account_id"  gorm:"column:account_id;not null;index"`
	Kind        string          `db:"kind"        gorm:"column:kind;type:varchar(16);not null"`
	Amount      decimal.Decimal `db:"amount"      gorm:"column:amount;type:numeric(20,8);not null"`
	Description string          `db:"description" gorm:"column:description;type:text;not null;default:''"`
	Status      string          `db:"status"      gorm:"column:status;type:varchar(16);not null;index"`
	Reference   *string         `db:"reference"   gorm:"column:reference;type:varchar(255)"`
	CreatedAt   time.Time       `db:"created_at"  gorm:"column:created_at;autoCreateTime"`
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	return &TransactionEntity{
		ID:          m.ID,
		AccountID:   m.AccountID,
		Kind:        string(m.Kind),
		Amount:      m.Amount,
		Description: m.Description,
		Status:      string(m.Status),
		Reference:   m.Reference,
		CreatedAt:   m.CreatedAt,
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	return &model.Transaction{
		ID:          e.ID,
		AccountID:   e.AccountID,
		Kind:        model.TransactionKind(e.Kind),
		Amount:      e.Amount,
		Description: e.Description,
		Status:      model.TransactionStatus(e.Status),
		Reference:   e.Reference,
		CreatedAt:   e.CreatedAt,
	}
}

func toTransactionModels(entities []*TransactionEntity) []*model.Transaction {
	models := make([]*model.Transaction, len(entities))
	for i, e := range entities {
		models[i] = toTransactionModel(e)
	}
	return models
}
