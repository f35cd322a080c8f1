package gateway

import (
	"context"
	"errors"
)

var (
	ErrRateLimited   = errors.New("rate limited by messaging platform")
	ErrUnauthorized  = errors.New("messaging session unauthorized")
	ErrTransient     = errors.New("transient messaging platform failure")
	ErrRejected      = errors.New("request rejected by messaging platform")
	ErrNotConnected  = errors.New("gateway not connected")
	ErrInvalidConfig = errors.New("invalid gateway config")
)

// Session identifies the platform account a gateway acts as. Handle is empty
// until a sign-in has completed.
type Session struct {
	APIID       int
	APIHash     string
	PhoneNumber string
	Handle      string
}

type Channel struct {
	ExternalID string `json:"external_id"`
	Handle     string `json:"handle"`
}

// Gateway is bound to a single session for the lifetime of one fulfillment
// run. Only Connect retries on its own; every other call fails fast with one
// of ErrRateLimited, ErrUnauthorized, ErrTransient or ErrRejected.
type Gateway interface {
	Connect(ctx context.Context) error
	CreateChannel(ctx context.Context, title string, megagroup bool) (*Channel, error)
	ExportInvite(ctx context.Context, handle string) (string, error)
	SendMessage(ctx context.Context, target, body string) error
	Disconnect(ctx context.Context) error
}

// Conn is a Gateway that can also drive the one-time-code sign-in.
type Conn interface {
	Gateway
	SendCode(ctx context.Context) (string, error)
	SignIn(ctx context.Context, phoneCodeHash, code string) (string, error)
}

type Dialer interface {
	Dial(session Session) Conn
}

// IsRetryable reports whether err is worth another attempt later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}
