package model

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusFailed     OrderStatus = "failed"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusFailed
}

// GroupNumberPlaceholder is replaced by the 1-based group index.
const GroupNumberPlaceholder = "{number}"

const DefaultGroupNamePattern = "Group " + GroupNumberPlaceholder

type Order struct {
	ID                  int64           `json:"id"`
	AccountID           int64           `json:"account_id"`
	RequestedGroupCount int             `json:"requested_group_count"`
	TotalCost           decimal.Decimal `json:"total_cost"`
	GroupNamePattern    string          `json:"group_name_pattern"`
	IsPrivate           bool            `json:"is_private"`
	Status              OrderStatus     `json:"status"`
	GroupsCreated       int             `json:"groups_created"`
	ErrorMessage        *string         `json:"error_message,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
}

// GroupName substitutes the group index into the order's name pattern.
func (o *Order) GroupName(index int) string {
	return strings.ReplaceAll(o.GroupNamePattern, GroupNumberPlaceholder, strconv.Itoa(index))
}

type OrderCreateRequest struct {
	AccountID        int64
	GroupCount       int
	GroupNamePattern string
	IsPrivate        bool
}

func (r OrderCreateRequest) Validate() error {
	if r.AccountID == 0 {
		return errors.New("account_id is required")
	}
	if r.GroupCount < 1 {
		return errors.New("group_count must be at least 1")
	}
	return nil
}

// OrderUpdate is a partial update; nil fields are left untouched.
type OrderUpdate struct {
	Status        OrderStatus
	GroupsCreated *int
	ErrorMessage  *string
}

type OrderFilter struct {
	AccountID *int64
	Statuses  []OrderStatus
	Limit     int // default 50
	Offset    int
}

// RecentOrdersLimit bounds the dashboard's recent orders list.
const RecentOrdersLimit = 5
