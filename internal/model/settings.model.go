package model

import (
	"errors"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// costPlaces matches the numeric(20,8) money columns.
const costPlaces = 8

type PaymentSetting struct {
	PricePerHundredGroups decimal.Decimal `json:"price_per_hundred_groups"`
	MaxGroupsPerOrder     int             `json:"max_groups_per_order"`
}

// CostFor returns the price of count groups, rounded up to the smallest
// stored unit so a positive price never charges zero.
func (s PaymentSetting) CostFor(count int) decimal.Decimal {
	return s.PricePerHundredGroups.Mul(decimal.NewFromInt(int64(count))).Div(hundred).RoundCeil(costPlaces)
}

func (s PaymentSetting) Validate() error {
	if !s.PricePerHundredGroups.IsPositive() {
		return errors.New("price_per_hundred_groups must be positive")
	}
	if s.MaxGroupsPerOrder < 1 {
		return errors.New("max_groups_per_order must be at least 1")
	}
	return nil
}
