package repository

import (
	"time"

	"github.com/nimasrn/group-factory/internal/model"
	"github.com/shopspring/decimal"
)

type AccountEntity struct {
	ID        int64           `db:"id"         gorm:"primaryKey;autoIncrement;column:id"`
	Username  string          `db:"username"   gorm:"column:username;not null;unique"`
	Balance   decimal.Decimal `db:"balance"    gorm:"column:balance;type:numeric(20,8);not null;default:0"`
	IsAdmin   bool            `db:"is_admin"   gorm:"column:is_admin;not null;default:false"`
	CreatedAt time.Time       `db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (AccountEntity) TableName() string {
	return "accounts"
}

func toAccountEntity(m *model.Account) *AccountEntity {
	if m == nil {
		return nil
	}
	return &AccountEntity{
		ID:       m.ID,
		Username: m.Username,
		Balance:  m.Balance,
		IsAdmin:  m.IsAdmin,
	}
}

func toAccountModel(e *AccountEntity) *model.Account {
	if e == nil {
		return nil
	}
	return &model.Account{
		ID:       e.ID,
		Username: e.Username,
		Balance:  e.Balance,
		IsAdmin:  e.IsAdmin,
	}
}
