package repository

import (
	"time"

	"github.com/nimasrn/group-factory/internal/model"
)

type GroupEntity struct {
	ID              int64     `db:"id"                gorm:"primaryKey;autoIncrement;column:id"`
	OrderID         int64     `db:"order_id"          gorm:"column:order_id;not null;index"`
	AccountID       int64     `db:"account_id"        gorm:"column:account_id;not null;index"`
	DisplayName     string    `db:"display_name"      gorm:"column:display_name;type:varchar(255);not null"`
	ExternalGroupID *string   `db:"external_group_id" gorm:"column:external_group_id;type:varchar(64)"`
	InviteLink      *string   `db:"invite_link"       gorm:"column:invite_link;type:varchar(255)"`
	CreatedAt       time.Time `db:"created_at"        gorm:"column:created_at;autoCreateTime"`
}

func (GroupEntity) TableName() string {
	return "chat_groups"
}

type AutoMessageEntity struct {
	ID      int64     `db:"id"       gorm:"primaryKey;autoIncrement;column:id"`
	GroupID int64     `db:"group_id" gorm:"column:group_id;not null;index"`
	Body    string    `db:"body"     gorm:"column:body;type:text;not null"`
	SentAt  time.Time `db:"sent_at"  gorm:"column:sent_at;not null"`
}

func (AutoMessageEntity) TableName() string {
	return "auto_messages"
}

func toGroupEntity(m *model.Group) *GroupEntity {
	if m == nil {
		return nil
	}
	return &GroupEntity{
		ID:              m.ID,
		OrderID:         m.OrderID,
		AccountID:       m.AccountID,
		DisplayName:     m.DisplayName,
		ExternalGroupID: m.ExternalGroupID,
		InviteLink:      m.InviteLink,
		CreatedAt:       m.CreatedAt,
	}
}

func toGroupModel(e *GroupEntity) *model.Group {
	if e == nil {
		return nil
	}
	return &model.Group{
		ID:              e.ID,
		OrderID:         e.OrderID,
		AccountID:       e.AccountID,
		DisplayName:     e.DisplayName,
		ExternalGroupID: e.ExternalGroupID,
		InviteLink:      e.InviteLink,
		CreatedAt:       e.CreatedAt,
	}
}

func toGroupModels(entities []*GroupEntity) []*model.Group {
	models := make([]*model.Group, len(entities))
	for i, e := range entities {
		models[i] = toGroupModel(e)
	}
	return models
}

func toAutoMessageModel(e *AutoMessageEntity) *model.AutoMessage {
	if e == nil {
		return nil
	}
	return &model.AutoMessage{
		ID:      e.ID,
		GroupID: e.GroupID,
		Body:    e.Body,
		SentAt:  e.SentAt,
	}
}
