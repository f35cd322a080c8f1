package model

import "time"

// Connection is a signed-in messaging platform account bound to a dashboard account.
type Connection struct {
	ID          int64     `json:"id"`
	AccountID   int64     `json:"account_id"`
	APIID       int       `json:"api_id"`
	APIHash     string    `json:"-"`
	PhoneNumber string    `json:"phone_number"`
	Session     string    `json:"-"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Credentials identify the platform application and phone a sign-in is for.
type Credentials struct {
	APIID       int    `json:"api_id"`
	APIHash     string `json:"api_hash"`
	PhoneNumber string `json:"phone_number"`
}
