package attendancehandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"asistencia/internal/domain/audit"
	"asistencia/internal/domain/auth"
	"asistencia/internal/domain/corrections"
	"asistencia/internal/domain/ledger"
	"asistencia/internal/platform/metrics"
	"asistencia/internal/requestctx"
	"asistencia/internal/transport/http/api"
	"asistencia/internal/transport/http/middleware"
	"asistencia/internal/transport/http/shared"
)

type Handler struct {
	Ledger    *ledger.Service
	Verifier  *ledger.Verifier
	Requests  *corrections.Service
	Audit     *audit.Service
	Collector *metrics.Collector
}

func NewHandler(l *ledger.Service, v *ledger.Verifier, c *corrections.Service, a *audit.Service, m *metrics.Collector) *Handler {
	return &Handler{Ledger: l, Verifier: v, Requests: c, Audit: a, Collector: m}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/attendance", func(r chi.Router) {
		r.With(middleware.RequireRole(auth.RoleWorker, auth.RoleSupervisor, auth.RoleAdmin)).Post("/marks", h.handleAppendMark)
		r.With(middleware.RequireAuth).Get("/marks", h.handleHistory)
		r.With(middleware.RequireAuth).Get("/history", h.handleHistory)
		r.With(middleware.RequireRole(auth.RoleSupervisor, auth.RoleAdmin, auth.RoleDTViewer)).Get("/integrity-check", h.handleIntegrityCheck)

		r.Route("/modification-requests", func(r chi.Router) {
			r.With(middleware.RequireAuth).Post("/", h.handleCreateRequest)
			r.With(middleware.RequireAuth).Get("/", h.handleListRequests)
			r.With(middleware.RequireRole(auth.RoleSupervisor, auth.RoleAdmin)).Post("/{requestID}/approve", h.handleApproveRequest)
			r.With(middleware.RequireRole(auth.RoleSupervisor, auth.RoleAdmin)).Post("/{requestID}/reject", h.handleRejectRequest)
		})
	})
}

type appendMarkRequest struct {
	SubjectID string  `json:"subjectId"`
	Kind      string  `json:"kind"`
	EventTS   string  `json:"eventTs"`
	SiteID    *string `json:"siteId"`
}

func (h *Handler) handleAppendMark(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())

	var payload appendMarkRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	subjectID := strings.TrimSpace(payload.SubjectID)
	// Workers mark for themselves only; supervisors and admins can mark for
	// anyone on their sites.
	if user.Role == auth.RoleWorker {
		if user.PersonID == "" {
			api.Fail(w, http.StatusForbidden, "forbidden", "no person linked to this account", reqID)
			return
		}
		if subjectID != "" && subjectID != user.PersonID {
			api.Fail(w, http.StatusForbidden, "forbidden", "workers can only mark their own attendance", reqID)
			return
		}
		subjectID = user.PersonID
	}

	v := shared.NewValidator()
	v.Required("subjectId", subjectID, "subjectId is required")
	v.Required("kind", payload.Kind, "kind is required")
	v.Enum("kind", payload.Kind, []string{string(ledger.KindIn), string(ledger.KindOut)}, "kind must be in or out")
	var eventTS time.Time
	if strings.TrimSpace(payload.EventTS) != "" {
		var ok bool
		eventTS, ok = v.Timestamp("eventTs", payload.EventTS)
		if !ok {
			eventTS = time.Time{}
		}
	}
	if v.Reject(w, reqID) {
		return
	}

	mark, err := h.Ledger.Append(r.Context(), subjectID, ledger.Kind(strings.ToLower(strings.TrimSpace(payload.Kind))), eventTS, payload.SiteID)
	if err != nil {
		switch {
		case errors.Is(err, ledger.ErrOutOfOrderEvent):
			api.Fail(w, http.StatusBadRequest, "out_of_order_event", "event timestamp precedes the subject's latest mark", reqID)
		case errors.Is(err, ledger.ErrInvalidKind):
			api.Fail(w, http.StatusBadRequest, "invalid_kind", "kind must be in or out", reqID)
		case errors.Is(err, ledger.ErrInvalidSubject):
			api.Fail(w, http.StatusBadRequest, "validation_error", "subjectId is required", reqID)
		default:
			slog.Error("append mark failed", "subjectId", subjectID, "err", err, "requestId", reqID)
			api.Fail(w, http.StatusInternalServerError, "append_failed", "could not record the mark", reqID)
		}
		return
	}

	if h.Collector != nil {
		h.Collector.RecordMark()
	}
	h.recordAudit(r, user, "attendance.mark.append", "attendance_mark", mark.ID, nil, mark)
	api.Created(w, mark, reqID)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())

	subjectID := strings.TrimSpace(r.URL.Query().Get("subjectId"))
	if user.Role == auth.RoleWorker {
		if user.PersonID == "" {
			api.Fail(w, http.StatusForbidden, "forbidden", "no person linked to this account", reqID)
			return
		}
		if subjectID != "" && subjectID != user.PersonID {
			api.Fail(w, http.StatusForbidden, "forbidden", "workers can only read their own history", reqID)
			return
		}
		subjectID = user.PersonID
	}
	if subjectID == "" {
		api.Fail(w, http.StatusBadRequest, "validation_error", "subjectId is required", reqID)
		return
	}

	from, to, ok := parseWindow(w, r, reqID)
	if !ok {
		return
	}

	marks, err := h.Ledger.History(r.Context(), subjectID, from, to)
	if err != nil {
		slog.Error("history query failed", "subjectId", subjectID, "err", err, "requestId", reqID)
		api.Fail(w, http.StatusInternalServerError, "history_failed", "could not load history", reqID)
		return
	}
	if marks == nil {
		marks = []ledger.Mark{}
	}
	api.Success(w, map[string]any{"subjectId": subjectID, "marks": marks}, reqID)
}

func (h *Handler) handleIntegrityCheck(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	var subjectID *string
	if raw := strings.TrimSpace(r.URL.Query().Get("subjectId")); raw != "" {
		subjectID = &raw
	}
	from, to, ok := parseWindow(w, r, reqID)
	if !ok {
		return
	}

	report, err := h.Verifier.Verify(r.Context(), subjectID, from, to)
	if err != nil {
		slog.Error("integrity check failed", "err", err, "requestId", reqID)
		api.Fail(w, http.StatusInternalServerError, "verify_failed", "could not run the integrity check", reqID)
		return
	}

	user, _ := middleware.GetUser(r.Context())
	entityID := "all"
	if subjectID != nil {
		entityID = *subjectID
	}
	h.recordAudit(r, user, "attendance.integrity.check", "attendance_chain", entityID, nil, map[string]any{
		"status":       report.Status,
		"totalChecked": report.TotalChecked,
	})
	api.Success(w, report, reqID)
}

type createRequestPayload struct {
	MarkID          string  `json:"markId"`
	Reason          string  `json:"reason"`
	RequestedTS     string  `json:"requestedTs"`
	RequestedSiteID *string `json:"requestedSiteId"`
}

func (h *Handler) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())

	var payload createRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	v := shared.NewValidator()
	v.Required("markId", payload.MarkID, "markId is required")
	v.Required("reason", payload.Reason, "reason is required")
	requestedTS, tsOK := v.Timestamp("requestedTs", payload.RequestedTS)
	if v.Reject(w, reqID) || !tsOK {
		return
	}

	// Workers may only contest their own marks.
	if user.Role == auth.RoleWorker {
		mark, err := h.Ledger.GetMark(r.Context(), payload.MarkID)
		if err != nil {
			api.Fail(w, http.StatusNotFound, "mark_not_found", "target mark not found", reqID)
			return
		}
		if user.PersonID == "" || mark.SubjectID != user.PersonID {
			api.Fail(w, http.StatusForbidden, "forbidden", "workers can only contest their own marks", reqID)
			return
		}
	}

	request, err := h.Requests.Create(r.Context(), payload.MarkID, user.UserID, payload.Reason, requestedTS, payload.RequestedSiteID)
	if err != nil {
		switch {
		case errors.Is(err, corrections.ErrReasonRequired):
			api.Fail(w, http.StatusBadRequest, "validation_error", "reason is required", reqID)
		case errors.Is(err, ledger.ErrMarkNotFound):
			api.Fail(w, http.StatusNotFound, "mark_not_found", "target mark not found", reqID)
		default:
			slog.Error("create modification request failed", "markId", payload.MarkID, "err", err, "requestId", reqID)
			api.Fail(w, http.StatusInternalServerError, "request_failed", "could not create the request", reqID)
		}
		return
	}

	h.recordAudit(r, user, "attendance.request.create", "modification_request", request.ID, nil, request)
	api.Created(w, request, reqID)
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	page := shared.ParsePagination(r, 50, 200)

	filter := corrections.Filter{Status: strings.TrimSpace(r.URL.Query().Get("status"))}
	if user.Role == auth.RoleWorker {
		filter.RequesterID = user.UserID
	}

	requests, err := h.Requests.List(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		slog.Error("list modification requests failed", "err", err, "requestId", reqID)
		api.Fail(w, http.StatusInternalServerError, "list_failed", "could not list requests", reqID)
		return
	}
	if requests == nil {
		requests = []corrections.Request{}
	}
	api.Success(w, map[string]any{"requests": requests}, reqID)
}

func (h *Handler) handleApproveRequest(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	id := chi.URLParam(r, "requestID")

	request, mark, err := h.Requests.Approve(r.Context(), id, user.UserID)
	if err != nil {
		h.failDecision(w, reqID, id, err)
		return
	}

	h.recordAudit(r, user, "attendance.request.approve", "modification_request", request.ID, nil, map[string]any{
		"request":        request,
		"correctionMark": mark.ID,
	})
	api.Success(w, map[string]any{"request": request, "correctionMark": mark}, reqID)
}

func (h *Handler) handleRejectRequest(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())
	id := chi.URLParam(r, "requestID")

	request, err := h.Requests.Reject(r.Context(), id, user.UserID)
	if err != nil {
		h.failDecision(w, reqID, id, err)
		return
	}

	h.recordAudit(r, user, "attendance.request.reject", "modification_request", request.ID, nil, request)
	api.Success(w, request, reqID)
}

func (h *Handler) failDecision(w http.ResponseWriter, reqID, id string, err error) {
	switch {
	case errors.Is(err, corrections.ErrRequestNotFound):
		api.Fail(w, http.StatusNotFound, "request_not_found", "modification request not found", reqID)
	case errors.Is(err, corrections.ErrAlreadyDecided):
		api.Fail(w, http.StatusConflict, "already_decided", "request was already decided", reqID)
	default:
		slog.Error("decide modification request failed", "requestId", reqID, "id", id, "err", err)
		api.Fail(w, http.StatusInternalServerError, "decision_failed", "could not decide the request", reqID)
	}
}

func (h *Handler) recordAudit(r *http.Request, user auth.UserContext, action, entityType, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	reqID := middleware.GetRequestID(r.Context())
	ip := requestctx.GetClientIP(r.Context())
	if err := h.Audit.Record(r.Context(), user.UserID, action, entityType, entityID, reqID, ip, before, after); err != nil {
		slog.Warn("audit record failed", "action", action, "entityId", entityID, "err", err)
	}
}

func parseWindow(w http.ResponseWriter, r *http.Request, reqID string) (*time.Time, *time.Time, bool) {
	var from, to *time.Time
	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		parsed, err := shared.ParseDate(raw)
		if err != nil {
			api.Fail(w, http.StatusBadRequest, "validation_error", "from must be RFC3339 or YYYY-MM-DD", reqID)
			return nil, nil, false
		}
		from = &parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		parsed, err := shared.ParseDate(raw)
		if err != nil {
			api.Fail(w, http.StatusBadRequest, "validation_error", "to must be RFC3339 or YYYY-MM-DD", reqID)
			return nil, nil, false
		}
		to = &parsed
	}
	if from != nil && to != nil && to.Before(*from) {
		api.Fail(w, http.StatusBadRequest, "validation_error", "from must be on or before to", reqID)
		return nil, nil, false
	}
	return from, to, true
}
