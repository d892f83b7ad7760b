package domain

import (
	"time"

	"github.com/google/uuid"
)

// Roles understood by the gateway. RoleSuper bypasses all role checks.
const (
	RoleSuper  = "super"
	RoleAdmin  = "admin"
	RoleViewer = "viewer"
)

// User is the credential collaborator's view of an admin account. The
// gateway only needs enough to verify a login and stamp a role claim.
type User struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}
