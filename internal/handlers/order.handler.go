package handlers

import (
	"context"
	"strings"

	"github.com/fasthttp/router"
	"github.com/nimasrn/group-factory/internal/model"
	xhttp "github.com/nimasrn/group-factory/pkg/http"
)

type OrderService interface {
	Create(ctx context.Context, req model.OrderCreateRequest) (*model.Order, error)
	Get(ctx context.Context, accountID, orderID int64) (*model.Order, error)
	List(ctx context.Context, f model.OrderFilter) ([]*model.Order, int64, error)
	ListRecent(ctx context.Context, accountID int64) ([]*model.Order, error)
	ListGroups(ctx context.Context, accountID, orderID int64, limit, offset int) ([]*model.Group, int64, error)
	ListRecentGroups(ctx context.Context, accountID int64) ([]*model.Group, error)
}

type OrderHandler struct {
	svc OrderService
}

func RegisterOrderRoutes(e *router.Group, h *OrderHandler) {
	e.POST("/orders", h.CreateOrder)
	e.GET("/orders", h.ListOrders)
	e.GET("/orders/recent", h.ListRecentOrders)
	e.GET("/orders/{id}", h.GetOrder)
	e.GET("/orders/{id}/groups", h.ListOrderGroups)
	e.GET("/groups/recent", h.ListRecentGroups)
}

func NewOrderHandler(orderService OrderService) *OrderHandler {
	return &OrderHandler{
		svc: orderService,
	}
}

type createOrderRequest struct {
	GroupCount       int    `json:"group_count"`
	GroupNamePattern string `json:"group_name_pattern"`
	IsPrivate        bool   `json:"is_private"`
}

func (h *OrderHandler) CreateOrder(ctx *xhttp.RequestCtx) {
	account, ok := accountID(ctx)
	if !ok {
		return
	}

	var req createOrderRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	order, err := h.svc.Create(ctx, model.OrderCreateRequest{
		AccountID:        account,
		GroupCount:       req.GroupCount,
		GroupNamePattern: req.GroupNamePattern,
		IsPrivate:        req.IsPrivate,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, order)
}

func (h *OrderHandler) GetOrder(ctx *xhttp.RequestCtx) {
	account, ok := accountID(ctx)
	if !ok {
		return
	}
	id, ok := pathInt64(ctx, "id")
	if !ok {
		return
	}

	order, err := h.svc.Get(ctx, account, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, order)
}

func (h *OrderHandler) ListOrders(ctx *xhttp.RequestCtx) {
	account, ok := accountID(ctx)
	if !ok {
		return
	}

	f := model.OrderFilter{
		AccountID: &account,
		Limit:     queryInt(ctx, "limit"),
		Offset:    queryInt(ctx, "offset"),
	}
	if v := query(ctx, "status"); v != "" {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				f.Statuses = append(f.Statuses, model.OrderStatus(part))
			}
		}
	}

	items, total, err := h.svc.List(ctx, f)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse[*model.Order]{Items: items, Total: total})
}

func (h *OrderHandler) ListRecentOrders(ctx *xhttp.RequestCtx) {
	account, ok := accountID(ctx)
	if !ok {
		return
	}

	items, err := h.svc.ListRecent(ctx, account)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse[*model.Order]{Items: items, Total: int64(len(items))})
}

func (h *OrderHandler) ListOrderGroups(ctx *xhttp.RequestCtx) {
	account, ok := accountID(ctx)
	if !ok {
		return
	}
	id, ok := pathInt64(ctx, "id")
	if !ok {
		return
	}

	items, total, err := h.svc.ListGroups(ctx, account, id, queryInt(ctx, "limit"), queryInt(ctx, "offset"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse[*model.Group]{Items: items, Total: total})
}

func (h *OrderHandler) ListRecentGroups(ctx *xhttp.RequestCtx) {
	account, ok := accountID(ctx)
	if !ok {
		return
	}

	items, err := h.svc.ListRecentGroups(ctx, account)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, listResponse[*model.Group]{Items: items, Total: int64(len(items))})
}
