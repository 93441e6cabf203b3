package dtaccesshandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"asistencia/internal/domain/access"
	"asistencia/internal/domain/audit"
	"asistencia/internal/domain/auth"
	"asistencia/internal/requestctx"
	"asistencia/internal/transport/http/api"
	"asistencia/internal/transport/http/middleware"
	"asistencia/internal/transport/http/shared"
)

type Handler struct {
	Access *access.Service
	Audit  *audit.Service
}

func NewHandler(svc *access.Service, a *audit.Service) *Handler {
	return &Handler{Access: svc, Audit: a}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/admin/attendance/dt/access", func(r chi.Router) {
		r.With(middleware.RequireRole(auth.RoleAdmin, auth.RoleSupervisor)).Post("/", h.handleIssue)
		// Redemption is authenticated by the token itself, not a session.
		r.Get("/", h.handleRedeem)
	})
}

type issueRequest struct {
	From             string   `json:"from"`
	To               string   `json:"to"`
	PersonIDs        []string `json:"personIds"`
	SiteIDs          []string `json:"siteIds"`
	TTL              string   `json:"ttl"`
	ExpiresInMinutes int      `json:"expiresInMinutes"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())

	var payload issueRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	v := shared.NewValidator()
	v.Required("from", payload.From, "from is required")
	v.Required("to", payload.To, "to is required")
	from, fromOK := v.Timestamp("from", payload.From)
	to, toOK := v.Timestamp("to", payload.To)
	if fromOK && toOK {
		v.DateOrder("from", from, "to", to)
	}
	ttl := 24 * time.Hour
	switch {
	case payload.ExpiresInMinutes != 0:
		if payload.ExpiresInMinutes < 0 {
			v.Add("expiresInMinutes", "must be positive")
		} else {
			ttl = time.Duration(payload.ExpiresInMinutes) * time.Minute
		}
	case strings.TrimSpace(payload.TTL) != "":
		parsed, err := time.ParseDuration(payload.TTL)
		if err != nil {
			v.Add("ttl", "must be a Go duration such as 24h or 90m")
		} else {
			ttl = parsed
		}
	}
	if v.Reject(w, reqID) {
		return
	}

	scope := access.Scope{From: from, To: to, PersonIDs: payload.PersonIDs, SiteIDs: payload.SiteIDs}
	grant, err := h.Access.Issue(scope, ttl)
	if err != nil {
		switch {
		case errors.Is(err, access.ErrBadScope):
			api.Fail(w, http.StatusBadRequest, "bad_scope", "scope dates are missing or inverted", reqID)
		case errors.Is(err, access.ErrTTLTooShort):
			api.Fail(w, http.StatusBadRequest, "ttl_too_short", "ttl must be at least 5 minutes", reqID)
		default:
			slog.Error("issue dt grant failed", "err", err, "requestId", reqID)
			api.Fail(w, http.StatusInternalServerError, "issue_failed", "could not issue the access grant", reqID)
		}
		return
	}

	if h.Audit != nil {
		ip := requestctx.GetClientIP(r.Context())
		if err := h.Audit.Record(r.Context(), user.UserID, "dt.access.issue", "dt_grant", "", reqID, ip, nil, map[string]any{
			"scope":     scope,
			"expiresAt": grant.ExpiresAt,
		}); err != nil {
			slog.Warn("audit record failed", "action", "dt.access.issue", "err", err)
		}
	}
	api.Created(w, grant, reqID)
}

func (h *Handler) handleRedeem(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		api.Fail(w, http.StatusBadRequest, "validation_error", "token is required", reqID)
		return
	}

	filters, ok := parseFilters(w, r, reqID)
	if !ok {
		return
	}

	marks, err := h.Access.Redeem(r.Context(), token, filters)
	if err != nil {
		switch {
		case errors.Is(err, access.ErrTokenExpired):
			api.Fail(w, http.StatusForbidden, "token_expired", "the access grant has expired", reqID)
		case errors.Is(err, access.ErrTokenInvalid):
			api.Fail(w, http.StatusForbidden, "token_invalid", "the access token is not valid", reqID)
		default:
			slog.Error("redeem dt grant failed", "err", err, "requestId", reqID)
			api.Fail(w, http.StatusInternalServerError, "redeem_failed", "could not read the granted data", reqID)
		}
		return
	}

	if h.Audit != nil {
		ip := requestctx.GetClientIP(r.Context())
		if err := h.Audit.Record(r.Context(), "dt-grant", "dt.access.redeem", "dt_grant", "", reqID, ip, nil, map[string]any{
			"marksReturned": len(marks),
		}); err != nil {
			slog.Warn("audit record failed", "action", "dt.access.redeem", "err", err)
		}
	}
	api.Success(w, map[string]any{"marks": marks}, reqID)
}

func parseFilters(w http.ResponseWriter, r *http.Request, reqID string) (access.Filters, bool) {
	var filters access.Filters
	query := r.URL.Query()

	if raw := strings.TrimSpace(query.Get("from")); raw != "" {
		parsed, err := shared.ParseDate(raw)
		if err != nil {
			api.Fail(w, http.StatusBadRequest, "validation_error", "from must be RFC3339 or YYYY-MM-DD", reqID)
			return access.Filters{}, false
		}
		filters.From = &parsed
	}
	if raw := strings.TrimSpace(query.Get("to")); raw != "" {
		parsed, err := shared.ParseDate(raw)
		if err != nil {
			api.Fail(w, http.StatusBadRequest, "validation_error", "to must be RFC3339 or YYYY-MM-DD", reqID)
			return access.Filters{}, false
		}
		filters.To = &parsed
	}
	filters.PersonIDs = splitList(query.Get("personIds"))
	filters.SiteIDs = splitList(query.Get("siteIds"))
	return filters, true
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
