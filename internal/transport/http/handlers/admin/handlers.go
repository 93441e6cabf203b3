package adminhandler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"asistencia/internal/domain/audit"
	"asistencia/internal/domain/auth"
	"asistencia/internal/domain/receipts"
	"asistencia/internal/platform/metrics"
	"asistencia/internal/transport/http/api"
	"asistencia/internal/transport/http/middleware"
	"asistencia/internal/transport/http/shared"
)

type Handler struct {
	Receipts  *receipts.Service
	Audit     *audit.Service
	Collector *metrics.Collector
}

func NewHandler(r *receipts.Service, a *audit.Service, c *metrics.Collector) *Handler {
	return &Handler{Receipts: r, Audit: a, Collector: c}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(middleware.RequireRole(auth.RoleAdmin))
		r.Get("/receipts", h.handleListReceipts)
		r.Get("/audit", h.handleListAudit)
		r.Get("/metrics", h.handleMetrics)
	})
}

func (h *Handler) handleListReceipts(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	page := shared.ParsePagination(r, 50, 200)

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	if status == "" {
		status = receipts.StatusFailed
	}
	switch status {
	case receipts.StatusPending, receipts.StatusSent, receipts.StatusFailed:
	default:
		api.Fail(w, http.StatusBadRequest, "validation_error", "status must be pending, sent or failed", reqID)
		return
	}

	items, err := h.Receipts.ListByStatus(r.Context(), status, page.Limit, page.Offset)
	if err != nil {
		slog.Error("list receipts failed", "status", status, "err", err, "requestId", reqID)
		api.Fail(w, http.StatusInternalServerError, "list_failed", "could not list receipts", reqID)
		return
	}
	if items == nil {
		items = []receipts.Item{}
	}
	api.Success(w, map[string]any{"status": status, "items": items}, reqID)
}

func (h *Handler) handleListAudit(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	page := shared.ParsePagination(r, 50, 200)

	filter := audit.Filter{
		Action:     strings.TrimSpace(r.URL.Query().Get("action")),
		EntityType: strings.TrimSpace(r.URL.Query().Get("entityType")),
		ActorID:    strings.TrimSpace(r.URL.Query().Get("actorId")),
	}
	events, err := h.Audit.List(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		slog.Error("list audit events failed", "err", err, "requestId", reqID)
		api.Fail(w, http.StatusInternalServerError, "list_failed", "could not list audit events", reqID)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	api.Success(w, map[string]any{"events": events}, reqID)
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	if h.Collector == nil {
		api.Fail(w, http.StatusNotFound, "metrics_disabled", "metrics collection is disabled", reqID)
		return
	}
	api.Success(w, h.Collector.Snapshot(), reqID)
}
