package corehandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"asistencia/internal/domain/auth"
	"asistencia/internal/domain/core"
	"asistencia/internal/transport/http/api"
	"asistencia/internal/transport/http/middleware"
	"asistencia/internal/transport/http/shared"
)

type Handler struct {
	Store *core.Store
}

func NewHandler(store *core.Store) *Handler {
	return &Handler{Store: store}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/me", h.handleMe)
	r.Route("/sites", func(r chi.Router) {
		r.With(middleware.RequireAuth).Get("/", h.handleListSites)
		r.With(middleware.RequireRole(auth.RoleAdmin)).Post("/", h.handleCreateSite)
		r.With(middleware.RequireRole(auth.RoleAdmin)).Put("/{siteID}", h.handleUpdateSite)
	})
	r.Route("/people", func(r chi.Router) {
		r.With(middleware.RequireRole(auth.RoleSupervisor, auth.RoleAdmin)).Get("/", h.handleListPeople)
		r.With(middleware.RequireRole(auth.RoleAdmin)).Post("/", h.handleCreatePerson)
		r.With(middleware.RequireRole(auth.RoleAdmin)).Put("/{personID}", h.handleUpdatePerson)
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", reqID)
		return
	}
	api.Success(w, map[string]any{
		"id":       user.UserID,
		"email":    user.Email,
		"role":     user.Role,
		"personId": user.PersonID,
	}, reqID)
}

func (h *Handler) handleListSites(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	sites, err := h.Store.ListSites(r.Context())
	if err != nil {
		slog.Error("list sites failed", "err", err, "requestId", reqID)
		api.Fail(w, http.StatusInternalServerError, "list_failed", "could not list sites", reqID)
		return
	}
	if sites == nil {
		sites = []core.Site{}
	}
	api.Success(w, map[string]any{"sites": sites}, reqID)
}

type sitePayload struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Timezone string `json:"timezone"`
}

func (h *Handler) handleCreateSite(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	var payload sitePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}
	v := shared.NewValidator()
	v.Required("name", payload.Name, "name is required")
	if v.Reject(w, reqID) {
		return
	}
	if strings.TrimSpace(payload.Timezone) == "" {
		payload.Timezone = "America/Santiago"
	}

	id, err := h.Store.CreateSite(r.Context(), core.Site{Name: payload.Name, Address: payload.Address, Timezone: payload.Timezone})
	if err != nil {
		slog.Error("create site failed", "err", err, "requestId", reqID)
		api.Fail(w, http.StatusInternalServerError, "create_failed", "could not create the site", reqID)
		return
	}
	api.Created(w, map[string]string{"id": id}, reqID)
}

func (h *Handler) handleUpdateSite(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	siteID := chi.URLParam(r, "siteID")

	var payload sitePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}
	err := h.Store.UpdateSite(r.Context(), siteID, core.Site{Name: payload.Name, Address: payload.Address, Timezone: payload.Timezone})
	if err != nil {
		if errors.Is(err, core.ErrSiteNotFound) {
			api.Fail(w, http.StatusNotFound, "site_not_found", "site not found", reqID)
			return
		}
		slog.Error("update site failed", "siteId", siteID, "err", err, "requestId", reqID)
		api.Fail(w, http.StatusInternalServerError, "update_failed", "could not update the site", reqID)
		return
	}
	api.Success(w, map[string]string{"id": siteID}, reqID)
}

func (h *Handler) handleListPeople(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	page := shared.ParsePagination(r, 50, 200)
	activeOnly := r.URL.Query().Get("all") != "true"

	people, err := h.Store.ListPeople(r.Context(), activeOnly, page.Limit, page.Offset)
	if err != nil {
		slog.Error("list people failed", "err", err, "requestId", reqID)
		api.Fail(w, http.StatusInternalServerError, "list_failed", "could not list people", reqID)
		return
	}
	if people == nil {
		people = []core.Person{}
	}
	api.Success(w, map[string]any{"people": people}, reqID)
}

type personPayload struct {
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Email     string  `json:"email"`
	SiteID    *string `json:"siteId"`
	Active    *bool   `json:"active"`
}

func (h *Handler) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	var payload personPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}
	v := shared.NewValidator()
	v.Required("firstName", payload.FirstName, "firstName is required")
	v.Required("lastName", payload.LastName, "lastName is required")
	v.Required("email", payload.Email, "email is required")
	if v.Reject(w, reqID) {
		return
	}

	person := core.Person{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Email:     payload.Email,
		SiteID:    payload.SiteID,
		Active:    true,
	}
	id, err := h.Store.CreatePerson(r.Context(), person)
	if err != nil {
		slog.Error("create person failed", "err", err, "requestId", reqID)
		api.Fail(w, http.StatusInternalServerError, "create_failed", "could not create the person", reqID)
		return
	}
	api.Created(w, map[string]string{"id": id}, reqID)
}

func (h *Handler) handleUpdatePerson(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	personID := chi.URLParam(r, "personID")

	var payload personPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	person := core.Person{
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		Email:     payload.Email,
		SiteID:    payload.SiteID,
		Active:    true,
	}
	if payload.Active != nil {
		person.Active = *payload.Active
	}
	if err := h.Store.UpdatePerson(r.Context(), personID, person); err != nil {
		if errors.Is(err, core.ErrPersonNotFound) {
			api.Fail(w, http.StatusNotFound, "person_not_found", "person not found", reqID)
			return
		}
		slog.Error("update person failed", "personId", personID, "err", err, "requestId", reqID)
		api.Fail(w, http.StatusInternalServerError, "update_failed", "could not update the person", reqID)
		return
	}
	api.Success(w, map[string]string{"id": personID}, reqID)
}
