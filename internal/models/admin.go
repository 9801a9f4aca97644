package models

import "time"

// Admin represents an administrator account operating the tracker.
type Admin struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"` // Never expose in JSON
	Name         *string    `json:"name,omitempty"`
	Roles        []string   `json:"roles"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// CreateAdminRequest represents the request body for creating an admin
type CreateAdminRequest struct {
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Name     *string  `json:"name,omitempty"`
	Roles    []string `json:"roles"`
}

// LoginRequest represents the request body for admin login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents the response body for successful login
type LoginResponse struct {
	Token string `json:"token"`
	Admin Admin  `json:"admin"`
}

// ChangePasswordRequest represents the request body for changing password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ValidRoles defines the available roles in the system
var ValidRoles = []string{
	"viewer",
	"admin",
}

// IsValidRole checks if a role is valid
func IsValidRole(role string) bool {
	for _, validRole := range ValidRoles {
		if role == validRole {
			return true
		}
	}
	return false
}

// ValidateRoles checks if all provided roles are valid
func ValidateRoles(roles []string) bool {
	for _, role := range roles {
		if !IsValidRole(role) {
			return false
		}
	}
	return len(roles) > 0
}

// Redacted returns a copy of the admin with sensitive fields removed
func (a *Admin) Redacted() Admin {
	return Admin{
		ID:          a.ID,
		Email:       a.Email,
		Name:        a.Name,
		Roles:       a.Roles,
		IsActive:    a.IsActive,
		CreatedAt:   a.CreatedAt,
		LastLoginAt: a.LastLoginAt,
	}
}
