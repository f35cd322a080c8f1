package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/nimasrn/group-factory/internal/model"
	xhttp "github.com/nimasrn/group-factory/pkg/http"
)

type StatsService interface {
	Get(ctx context.Context, accountID int64) (*model.Stats, error)
}

type ConnectionService interface {
	RequestVerificationCode(ctx context.Context, creds model.Credentials) (string, error)
	CompleteSignIn(ctx context.Context, accountID int64, creds model.Credentials, token, code string) (*model.Connection, error)
	Active(ctx context.Context, accountID int64) (*model.Connection, error)
	Disconnect(ctx context.Context, accountID int64) error
}

type AccountHandler struct {
	stats       StatsService
	connections ConnectionService
}

func RegisterAccountRoutes(e *router.Group, h *AccountHandler) {
	e.GET("/stats", h.GetStats)
	e.POST("/connection/code", h.RequestCode)
	e.POST("/connection/sign-in", h.SignIn)
	e.GET("/connection", h.GetConnection)
	e.DELETE("/connection", h.Disconnect)
}

func NewAccountHandler(statsService StatsService, connectionService ConnectionService) *AccountHandler {
	return &AccountHandler{
		stats:       statsService,
		connections: connectionService,
	}
}

type requestCodeResponse struct {
	ChallengeToken string `json:"challenge_token"`
}

type signInRequest struct {
	model.Credentials
	ChallengeToken string `json:"challenge_token"`
	Code           string `json:"code"`
}

func (h *AccountHandler) GetStats(ctx *xhttp.RequestCtx) {
	account, ok := accountID(ctx)
	if !ok {
		return
	}

	stats, err := h.stats.Get(ctx, account)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, stats)
}

func (h *AccountHandler) RequestCode(ctx *xhttp.RequestCtx) {
	if _, ok := accountID(ctx); !ok {
		return
	}

	var creds model.Credentials
	if err := readJSON(ctx, &creds); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	token, err := h.connections.RequestVerificationCode(ctx, creds)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusAccepted, requestCodeResponse{ChallengeToken: token})
}

func (h *AccountHandler) SignIn(ctx *xhttp.RequestCtx) {
	account, ok := accountID(ctx)
	if !ok {
		return
	}

	var req signInRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	conn, err := h.connections.CompleteSignIn(ctx, account, req.Credentials, req.ChallengeToken, req.Code)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, conn)
}

func (h *AccountHandler) GetConnection(ctx *xhttp.RequestCtx) {
	account, ok := accountID(ctx)
	if !ok {
		return
	}

	conn, err := h.connections.Active(ctx, account)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, conn)
}

func (h *AccountHandler) Disconnect(ctx *xhttp.RequestCtx) {
	account, ok := accountID(ctx)
	if !ok {
		return
	}

	if err := h.connections.Disconnect(ctx, account); err != nil {
		writeServiceError(ctx, err)
		return
	}
	ctx.SetStatusCode(xhttp.StatusNoContent)
}
