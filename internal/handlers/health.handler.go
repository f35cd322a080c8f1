package handlers

import (
	"context"
	"time"

	"github.com/fasthttp/router"
	xhttp "github.com/nimasrn/group-factory/pkg/http"
)

const healthCheckTimeout = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

// StatsFunc reports a component's runtime counters.
type StatsFunc func() any

type HealthHandler struct {
	checks map[string]Pinger
	stats  map[string]StatsFunc
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
	e.GET("/health/stats", h.GetStats)
}

func NewHealthHandler(checks map[string]Pinger, stats map[string]StatsFunc) *HealthHandler {
	return &HealthHandler{
		checks: checks,
		stats:  stats,
	}
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	c, cancel := context.WithTimeout(context.Background(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(h.checks))}
	status := xhttp.StatusOK
	for name, check := range h.checks {
		if err := check.Ping(c); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = xhttp.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(ctx, status, resp)
}

func (h *HealthHandler) GetStats(ctx *xhttp.RequestCtx) {
	out := make(map[string]any, len(h.stats))
	for name, fn := range h.stats {
		out[name] = fn()
	}
	writeJSON(ctx, xhttp.StatusOK, out)
}
