package services

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidGroupCount      = errors.New("group count must be at least 1")
	ErrLimitExceeded          = errors.New("requested group count exceeds the per-order limit")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrNoActiveConnection     = errors.New("no active messaging account connection")
	ErrFulfillmentUnavailable = errors.New("order fulfillment is unavailable")
	ErrInvalidRequest         = errors.New("invalid request")
	ErrChallengeExpired       = errors.New("verification challenge expired or unknown")
	ErrChallengeMismatch      = errors.New("verification challenge does not match credentials")
)
