package model

import "time"

type Group struct {
	ID              int64     `json:"id"`
	OrderID         int64     `json:"order_id"`
	AccountID       int64     `json:"account_id"`
	DisplayName     string    `json:"display_name"`
	ExternalGroupID *string   `json:"external_group_id,omitempty"`
	InviteLink      *string   `json:"invite_link,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type AutoMessage struct {
	ID      int64     `json:"id"`
	GroupID int64     `json:"group_id"`
	Body    string    `json:"body"`
	SentAt  time.Time `json:"sent_at"`
}

type GroupFilter struct {
	AccountID *int64
	OrderID   *int64
	Limit     int
	Offset    int
}

const RecentGroupsLimit = 10
