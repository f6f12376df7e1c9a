package models

import "time"

// Role enumerates the community roles allowed to connect.
type Role string

const (
	RolePatient   Role = "patient"
	RoleCaregiver Role = "caregiver"
	RoleTherapist Role = "therapist"
	RoleAdmin     Role = "admin"
)

// Identity is the result of verifying a credential.
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// UserStatus is the directory record consulted before admitting a connection.
type UserStatus struct {
	UserID   string `db:"id" json:"user_id"`
	Name     string `db:"display_name" json:"name"`
	Role     Role   `db:"role" json:"role"`
	IsActive bool   `db:"is_active" json:"is_active"`
}

// OnlineUser is a registry entry for a currently-connected authenticated user.
type OnlineUser struct {
	UserID   string    `json:"user_id"`
	Name     string    `json:"name"`
	Role     Role      `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}
