package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/nimasrn/group-factory/internal/model"
	xhttp "github.com/nimasrn/group-factory/pkg/http"
	"github.com/shopspring/decimal"
)

type LedgerService interface {
	GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error)
	ClaimCredit(ctx context.Context, req model.CreditClaimRequest) (*model.Transaction, error)
	ApproveCredit(ctx context.Context, transactionID int64) (*model.Transaction, error)
	RejectCredit(ctx context.Context, transactionID int64) (*model.Transaction, error)
	ListTransactions(ctx context.Context, f model.TransactionFilter) ([]*model.Transaction, int64, error)
}

type LedgerHandler struct {
	svc LedgerService
}

func RegisterLedgerRoutes(e *router.Group, h *LedgerHandler) {
	e.GET("/balance", h.GetBalance)
	e.POST("/credits", h.ClaimCredit)
	e.GET("/transactions", h.ListTransactions)
}

// RegisterLedgerAdminRoutes mounts the settlement endpoints behind the admin token.
func RegisterLedgerAdminRoutes(e *router.Group, adminToken string, h *LedgerHandler) {
	e.POST("/admin/transactions/{id}/approve", xhttp.RequireHeader(AdminTokenHeader, adminToken, h.ApproveCredit))
	e.POST("/admin/transactions/{id}/reject", xhttp.RequireHeader(AdminTokenHeader, adminToken, h.RejectCredit))
	e.GET("/admin/transactions", xhttp.RequireHeader(AdminTokenHeader, adminToken, h.ListAllTransactions))
}

func NewLedgerHandler(ledgerService LedgerService) *LedgerHandler {
	return &LedgerHandler{
		svc: ledgerService,
	}
}

type balanceResponse struct {
	Balance decimal.Decimal `json:"balance"`
}

type claimCreditRequest struct {
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

func (h *LedgerHandler) GetBalance(ctx *xhttp.RequestCtx) {
	account, ok := accountID(ctx)
	if !ok {
		return
	}

	balance, err := h.svc.GetBalance(ctx, account)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, balanceResponse{Balance: balance})
}

func (h *LedgerHandler) ClaimCredit(ctx *xhttp.RequestCtx) {
	account, ok := accountID(ctx)
	if !ok {
		return
	}

	var req claimCreditRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	txn, err := h.svc.ClaimCredit(ctx, model.CreditClaimRequest{
		AccountID: account,
		Amount:    req.Amount,
		Reference: req.Reference,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, txn)
}

func (h *LedgerHandler) ListTransactions(ctx *xhttp.RequestCtx) {
	account, ok := accountID(ctx)
	if !ok {
		return
	}

	f := transactionFilter(ctx)
	f.AccountID = &account
	h.listTransactions(ctx, f)
}

func (h *LedgerHandler) ListAllTransactions(ctx *xhttp.RequestCtx) {
	f := transactionFilter(ctx)
	if v := queryInt(ctx, "account_id"); v > 0 {
		id := int64(v)
		f.AccountID = &id
	}
	h.listTransactions(ctx, f)
}

func (h *LedgerHandler) listTransactions(ctx *xhttp.RequestCtx, f model.TransactionFilter) {
	items, total, err := h.svc.ListTransactions(ctx, f)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse[*model.Transaction]{Items: items, Total: total})
}

func transactionFilter(ctx *xhttp.RequestCtx) model.TransactionFilter {
	return model.TransactionFilter{
		Kind:   model.TransactionKind(query(ctx, "kind")),
		Status: model.TransactionStatus(query(ctx, "status")),
		Limit:  queryInt(ctx, "limit"),
		Offset: queryInt(ctx, "offset"),
	}
}

func (h *LedgerHandler) ApproveCredit(ctx *xhttp.RequestCtx) {
	id, ok := pathInt64(ctx, "id")
	if !ok {
		return
	}

	txn, err := h.svc.ApproveCredit(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, txn)
}

func (h *LedgerHandler) RejectCredit(ctx *xhttp.RequestCtx) {
	id, ok := pathInt64(ctx, "id")
	if !ok {
		return
	}

	txn, err := h.svc.RejectCredit(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, txn)
}
