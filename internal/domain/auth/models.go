package auth

import "time"

const (
	RoleWorker     = "worker"
	RoleSupervisor = "supervisor"
	RoleAdmin      = "admin"
	RoleDTViewer   = "dt_viewer"
)

func ValidRole(role string) bool {
	switch role {
	case RoleWorker, RoleSupervisor, RoleAdmin, RoleDTViewer:
		return true
	}
	return false
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	DisplayName  string    `json:"displayName"`
	PersonID     *string   `json:"personId,omitempty"`
	MFAEnabled   bool      `json:"mfaEnabled"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserContext is the authenticated identity attached to a request.
type UserContext struct {
	UserID    string
	Email     string
	Role      string
	PersonID  string
	SessionID string
}
