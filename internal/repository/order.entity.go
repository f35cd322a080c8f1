package repository

import (
	"time"

	"github.com/nimasrn/group-factory/internal/model"
	"github.com/shopspring/decimal"
)

type OrderEntity struct {
	ID                  int64           `db:"id"                    gorm:"primaryKey;autoIncrement;column:id"`
	AccountID           int64           `db:"account_id"            gorm:"column:account_id;not null;index"`
	RequestedGroupCount int             `db:"requested_group_count" gorm:"column:requested_group_count;not null"`
	TotalCost           decimal.Decimal `db:"total_cost"            gorm:"column:total_cost;type:numeric(20,8);not null"`
	GroupNamePattern    string          `db:"group_name_pattern"    gorm:"column:group_name_pattern;type:varchar(255);not null"`
	IsPrivate           bool            `db:"is_private"            gorm:"column:is_private;not null;default:false"`
	Status              string          `db:"status"                gorm:"column:status;type:varchar(16);not null;index"`
	GroupsCreated       int             `db:"groups_created"        gorm:"column:groups_created;not null;default:0"`
	ErrorMessage        *string         `db:"error_message"         gorm:"column:error_message;type:text"`
	CreatedAt           time.Time       `db:"created_at"            gorm:"column:created_at;autoCreateTime"`
	CompletedAt         *time.Time      `db:"completed_at"          gorm:"column:completed_at"`
}

func (OrderEntity) TableName() string {
	return "orders"
}

func toOrderEntity(m *model.Order) *OrderEntity {
	if m == nil {
		return nil
	}
	return &OrderEntity{
		ID:                  m.ID,
		AccountID:           m.AccountID,
		RequestedGroupCount: m.RequestedGroupCount,
		TotalCost:           m.TotalCost,
		GroupNamePattern:    m.GroupNamePattern,
		IsPrivate:           m.IsPrivate,
		Status:              string(m.Status),
		GroupsCreated:       m.GroupsCreated,
		ErrorMessage:        m.ErrorMessage,
		CreatedAt:           m.CreatedAt,
		CompletedAt:         m.CompletedAt,
	}
}

func toOrderModel(e *OrderEntity) *model.Order {
	if e == nil {
		return nil
	}
	return &model.Order{
		ID:                  e.ID,
		AccountID:           e.AccountID,
		RequestedGroupCount: e.RequestedGroupCount,
		TotalCost:           e.TotalCost,
		GroupNamePattern:    e.GroupNamePattern,
		IsPrivate:           e.IsPrivate,
		Status:              model.OrderStatus(e.Status),
		GroupsCreated:       e.GroupsCreated,
		ErrorMessage:        e.ErrorMessage,
		CreatedAt:           e.CreatedAt,
		CompletedAt:         e.CompletedAt,
	}
}

func toOrderModels(entities []*OrderEntity) []*model.Order {
	models := make([]*model.Order, len(entities))
	for i, e := range entities {
		models[i] = toOrderModel(e)
	}
	return models
}
