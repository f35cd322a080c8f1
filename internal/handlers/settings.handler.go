package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/nimasrn/group-factory/internal/model"
	xhttp "github.com/nimasrn/group-factory/pkg/http"
)

type SettingsService interface {
	Effective(ctx context.Context) (model.PaymentSetting, error)
	Update(ctx context.Context, setting model.PaymentSetting) (model.PaymentSetting, error)
}

type SettingsHandler struct {
	svc SettingsService
}

// RegisterSettingsRoutes exposes the price list to every caller and its
// update to admins only.
func RegisterSettingsRoutes(e *router.Group, adminToken string, h *SettingsHandler) {
	e.GET("/settings", h.GetSettings)
	e.GET("/admin/settings", xhttp.RequireHeader(AdminTokenHeader, adminToken, h.GetSettings))
	e.PUT("/admin/settings", xhttp.RequireHeader(AdminTokenHeader, adminToken, h.UpdateSettings))
}

func NewSettingsHandler(settingsService SettingsService) *SettingsHandler {
	return &SettingsHandler{
		svc: settingsService,
	}
}

func (h *SettingsHandler) GetSettings(ctx *xhttp.RequestCtx) {
	setting, err := h.svc.Effective(ctx)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, setting)
}

func (h *SettingsHandler) UpdateSettings(ctx *xhttp.RequestCtx) {
	var req model.PaymentSetting
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	setting, err := h.svc.Update(ctx, req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, setting)
}
