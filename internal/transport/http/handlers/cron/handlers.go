package cronhandler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"asistencia/internal/domain/receipts"
	"asistencia/internal/platform/metrics"
	"asistencia/internal/transport/http/api"
	"asistencia/internal/transport/http/middleware"
)

type Handler struct {
	Receipts   *receipts.Service
	Collector  *metrics.Collector
	CronSecret string
	BatchLimit int
}

func NewHandler(r *receipts.Service, c *metrics.Collector, cronSecret string, batchLimit int) *Handler {
	return &Handler{Receipts: r, Collector: c, CronSecret: cronSecret, BatchLimit: batchLimit}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/cron", func(r chi.Router) {
		r.Use(middleware.CronGuard(h.CronSecret))
		r.Get("/process-emails", h.handleProcessEmails)
	})
}

func (h *Handler) handleProcessEmails(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	result, err := h.Receipts.Sweep(r.Context(), h.BatchLimit)
	if err != nil {
		slog.Error("receipt sweep failed", "err", err, "requestId", reqID)
		api.Fail(w, http.StatusInternalServerError, "sweep_failed", "could not run the receipt sweep", reqID)
		return
	}
	if h.Collector != nil {
		h.Collector.RecordReceipts(result.Succeeded, result.Failed)
	}
	api.Success(w, result, reqID)
}
