package model

import "github.com/shopspring/decimal"

type Account struct {
	ID       int64           `json:"id"`
	Username string          `json:"username"`
	Balance  decimal.Decimal `json:"balance"`
	IsAdmin  bool            `json:"is_admin"`
}
