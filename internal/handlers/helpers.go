package handlers

import (
	"encoding/json"
	"errors"
	"strconv"

	gateway "github.com/nimasrn/group-factory/internal/gateways"
	"github.com/nimasrn/group-factory/internal/services"
	xhttp "github.com/nimasrn/group-factory/pkg/http"
	"github.com/nimasrn/group-factory/pkg/logger"
)

// AccountHeader carries the caller's account id. Authentication happens in
// front of this service.
const AccountHeader = "X-Account-ID"

const AdminTokenHeader = "X-Admin-Token"

type listResponse[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

// writeServiceError maps a service error to its HTTP status. Server-side
// failures are logged and answered with the bare status text.
func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	status := errorStatus(err)
	if status >= xhttp.StatusInternalServerError {
		logger.Error("Request failed",
			"method", string(ctx.Method()),
			"path", string(ctx.Path()),
			"status", status,
			"error", err,
		)
		writeError(ctx, status, xhttp.StatusText(status))
		return
	}
	writeError(ctx, status, err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return xhttp.StatusNotFound
	case errors.Is(err, services.ErrInsufficientBalance):
		return xhttp.StatusPaymentRequired
	case errors.Is(err, services.ErrLimitExceeded),
		errors.Is(err, services.ErrInvalidGroupCount):
		return xhttp.StatusUnprocessableEntity
	case errors.Is(err, services.ErrNoActiveConnection),
		errors.Is(err, services.ErrChallengeMismatch),
		errors.Is(err, services.ErrChallengeExpired):
		return xhttp.StatusConflict
	case errors.Is(err, services.ErrFulfillmentUnavailable):
		return xhttp.StatusServiceUnavailable
	case errors.Is(err, services.ErrInvalidRequest),
		errors.Is(err, gateway.ErrRejected):
		return xhttp.StatusBadRequest
	case errors.Is(err, gateway.ErrRateLimited):
		return xhttp.StatusTooManyRequests
	case errors.Is(err, gateway.ErrUnauthorized):
		return xhttp.StatusUnauthorized
	case errors.Is(err, gateway.ErrTransient):
		return xhttp.StatusServiceUnavailable
	default:
		return xhttp.StatusInternalServerError
	}
}

// accountID reads the caller's account. It writes a 401 and returns false
// when the header is missing or malformed.
func accountID(ctx *xhttp.RequestCtx) (int64, bool) {
	v := ctx.Request.Header.Peek(AccountHeader)
	id, err := strconv.ParseInt(string(v), 10, 64)
	if err != nil || id <= 0 {
		writeError(ctx, xhttp.StatusUnauthorized, "missing or invalid "+AccountHeader+" header")
		return 0, false
	}
	return id, true
}

// pathInt64 reads a positive integer route parameter. It writes a 400 and
// returns false when the parameter is not one.
func pathInt64(ctx *xhttp.RequestCtx, name string) (int64, bool) {
	v, _ := ctx.UserValue(name).(string)
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		writeError(ctx, xhttp.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func queryInt(ctx *xhttp.RequestCtx, key string) int {
	if v := query(ctx, key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return 0
}
