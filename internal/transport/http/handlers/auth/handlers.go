package authhandler

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pquerna/otp/totp"

	"asistencia/internal/domain/auth"
	"asistencia/internal/transport/http/api"
	"asistencia/internal/transport/http/middleware"
	"asistencia/internal/transport/http/shared"
)

// Mailer delivers the password-reset link. A nil mailer logs it instead.
type Mailer interface {
	Send(ctx context.Context, from, to, subject, htmlBody string) error
}

type Handler struct {
	Auth      *auth.Service
	Secret    string
	BaseURL   string
	EmailFrom string
	Mailer    Mailer
}

func NewHandler(svc *auth.Service, secret, baseURL, emailFrom string, mailer Mailer) *Handler {
	return &Handler{Auth: svc, Secret: secret, BaseURL: baseURL, EmailFrom: emailFrom, Mailer: mailer}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/logout", h.handleLogout)
	r.Post("/auth/request-reset", h.handleRequestReset)
	r.Post("/auth/reset", h.handleResetPassword)
	r.With(middleware.RequireAuth).Post("/auth/mfa/enroll", h.handleMFAEnroll)
	r.With(middleware.RequireAuth).Post("/auth/mfa/verify", h.handleMFAVerify)
}

const sessionTTL = 8 * time.Hour

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	MFACode  string `json:"mfaCode"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	var payload loginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	v := shared.NewValidator()
	v.Required("email", payload.Email, "email is required")
	v.Required("password", payload.Password, "password is required")
	if v.Reject(w, reqID) {
		return
	}

	user, err := h.Auth.FindActiveUserByEmail(r.Context(), payload.Email)
	if err != nil {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", reqID)
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, payload.Password); err != nil {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", reqID)
		return
	}

	if user.MFAEnabled {
		if payload.MFACode == "" {
			api.Fail(w, http.StatusUnauthorized, "mfa_required", "mfa code required", reqID)
			return
		}
		secret, err := h.Auth.MFASecret(r.Context(), user.ID)
		if err != nil || secret == "" || !totp.Validate(payload.MFACode, secret) {
			api.Fail(w, http.StatusUnauthorized, "mfa_invalid", "invalid mfa code", reqID)
			return
		}
	}

	sessionID, err := generateToken()
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", reqID)
		return
	}
	if err := h.Auth.CreateSession(r.Context(), user.ID, auth.HashToken(sessionID), time.Now().Add(sessionTTL)); err != nil {
		api.Fail(w, http.StatusInternalServerError, "session_error", "failed to start session", reqID)
		return
	}

	personID := ""
	if user.PersonID != nil {
		personID = *user.PersonID
	}
	token, err := auth.GenerateToken(h.Secret, auth.Claims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		PersonID:  personID,
		SessionID: sessionID,
	}, sessionTTL)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", reqID)
		return
	}

	if err := h.Auth.UpdateLastLogin(r.Context(), user.ID); err != nil {
		slog.Warn("update last login failed", "userId", user.ID, "err", err)
	}

	api.Success(w, map[string]any{
		"token": token,
		"user": map[string]any{
			"id":       user.ID,
			"email":    user.Email,
			"role":     user.Role,
			"personId": user.PersonID,
		},
	}, reqID)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	if user, ok := middleware.GetUser(r.Context()); ok && user.SessionID != "" {
		if err := h.Auth.RevokeSession(r.Context(), user.UserID, auth.HashToken(user.SessionID)); err != nil {
			slog.Warn("logout session revoke failed", "userId", user.UserID, "err", err)
		}
	}
	api.Success(w, map[string]string{"status": "logged_out"}, reqID)
}

type resetRequest struct {
	Email string `json:"email"`
}

func (h *Handler) handleRequestReset(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	var payload resetRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	// The response never reveals whether the account exists.
	respond := func() {
		api.Success(w, map[string]string{"status": "reset_requested"}, reqID)
	}

	userID, err := h.Auth.UserIDByEmail(r.Context(), payload.Email)
	if err != nil {
		if !errors.Is(err, auth.ErrUserNotFound) {
			slog.Warn("reset lookup failed", "err", err, "requestId", reqID)
		}
		respond()
		return
	}

	token, err := generateToken()
	if err != nil {
		respond()
		return
	}
	if err := h.Auth.CreatePasswordReset(r.Context(), userID, auth.HashToken(token), time.Now().Add(time.Hour)); err != nil {
		slog.Warn("reset create failed", "userId", userID, "err", err)
		respond()
		return
	}

	link := fmt.Sprintf("%s/reset?token=%s", h.BaseURL, token)
	if h.Mailer != nil {
		body := fmt.Sprintf("<p>Para restablecer su contraseña, visite <a href=%q>este enlace</a>. Expira en una hora.</p>", link)
		if err := h.Mailer.Send(r.Context(), h.EmailFrom, payload.Email, "Restablecer contraseña", body); err != nil {
			slog.Warn("reset email failed", "userId", userID, "err", err)
		}
	} else {
		slog.Info("password reset link issued", "userId", userID, "link", link)
	}
	respond()
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	var payload resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}
	if len(payload.NewPassword) < 10 {
		api.Fail(w, http.StatusBadRequest, "weak_password", "password must be at least 10 characters", reqID)
		return
	}

	tokenHash := auth.HashToken(payload.Token)
	userID, err := h.Auth.PasswordResetUserID(r.Context(), tokenHash)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_token", "reset token is invalid or expired", reqID)
		return
	}

	hash, err := auth.HashPassword(payload.NewPassword)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "hash_error", "could not update the password", reqID)
		return
	}
	if err := h.Auth.UpdateUserPassword(r.Context(), userID, hash); err != nil {
		api.Fail(w, http.StatusInternalServerError, "update_error", "could not update the password", reqID)
		return
	}
	if err := h.Auth.MarkPasswordResetUsed(r.Context(), tokenHash); err != nil {
		slog.Warn("mark reset used failed", "userId", userID, "err", err)
	}
	api.Success(w, map[string]string{"status": "password_updated"}, reqID)
}

func (h *Handler) handleMFAEnroll(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "asistencia",
		AccountName: user.Email,
	})
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "mfa_error", "could not generate mfa secret", reqID)
		return
	}
	if err := h.Auth.UpdateMFASecret(r.Context(), user.UserID, key.Secret()); err != nil {
		api.Fail(w, http.StatusInternalServerError, "mfa_error", "could not store mfa secret", reqID)
		return
	}
	api.Success(w, map[string]string{"secret": key.Secret(), "otpauthUrl": key.URL()}, reqID)
}

type mfaCodeRequest struct {
	Code string `json:"code"`
}

func (h *Handler) handleMFAVerify(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	reqID := middleware.GetRequestID(r.Context())

	var payload mfaCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	secret, err := h.Auth.MFASecret(r.Context(), user.UserID)
	if err != nil || secret == "" {
		api.Fail(w, http.StatusBadRequest, "mfa_not_enrolled", "enroll mfa first", reqID)
		return
	}
	if !totp.Validate(payload.Code, secret) {
		api.Fail(w, http.StatusBadRequest, "mfa_invalid", "invalid mfa code", reqID)
		return
	}
	if err := h.Auth.SetMFAEnabled(r.Context(), user.UserID, true); err != nil {
		api.Fail(w, http.StatusInternalServerError, "mfa_error", "could not enable mfa", reqID)
		return
	}
	api.Success(w, map[string]string{"status": "mfa_enabled"}, reqID)
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
