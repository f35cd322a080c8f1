package model

import "github.com/shopspring/decimal"

type Stats struct {
	Balance         decimal.Decimal `json:"balance"`
	TotalGroups     int64           `json:"total_groups"`
	ActiveOrders    int64           `json:"active_orders"`
	CompletedOrders int64           `json:"completed_orders"`
}
