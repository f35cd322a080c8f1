package fixtures

import (
	"github.com/nimasrn/group-factory/internal/model"
	"github.com/shopspring/decimal"
)

// Balances are decimal strings so tests compare exact amounts.
const (
	FundedBalance   = "10.00"
	LowBalance      = "0.05"
	ZeroBalance     = "0.00"
	DefaultPrice    = "2.00"
	DefaultMaxCount = 10
)

var DefaultSetting = model.PaymentSetting{
	PricePerHundredGroups: decimal.RequireFromString(DefaultPrice),
	MaxGroupsPerOrder:     DefaultMaxCount,
}

var TestCredentials = model.Credentials{
	APIID:       1001,
	APIHash:     "0123456789abcdef",
	PhoneNumber: "+15550000000",
}

func NewOrderCreateRequest(accountID int64, count int) model.OrderCreateRequest {
	return model.OrderCreateRequest{
		AccountID:        accountID,
		GroupCount:       count,
		GroupNamePattern: model.DefaultGroupNamePattern,
	}
}

func NewCreditClaimRequest(accountID int64, amount, reference string) model.CreditClaimRequest {
	return model.CreditClaimRequest{
		AccountID: accountID,
		Amount:    decimal.RequireFromString(amount),
		Reference: reference,
	}
}

var (
	ValidGroupNamePatterns = []string{
		"Group {number}",
		"Crypto Signals #{number}",
		"{number} - archive",
	}

	// patterns without the placeholder get " {number}" appended
	PatternsMissingPlaceholder = map[string]string{
		"":         "Group {number}",
		"   ":      "Group {number}",
		"Trading":  "Trading {number}",
		"My Group": "My Group {number}",
	}

	InvalidGroupCounts = []int{0, -1, -100}
)
