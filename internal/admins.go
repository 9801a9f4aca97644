package internal

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"equiptrack-api/internal/auth"
	"equiptrack-api/internal/models"

	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

// loginAdmin handles admin authentication
func (s *Server) loginAdmin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	var admin models.Admin
	var name sql.NullString
	var lastLoginAt sql.NullTime
	var roles pq.StringArray

	err := s.DB.QueryRowContext(r.Context(), `
		SELECT id, email, password_hash, name, roles, is_active, created_at, last_login_at
		FROM admins
		WHERE email = $1 AND is_active = true`, req.Email).Scan(
		&admin.ID, &admin.Email, &admin.PasswordHash, &name, &roles,
		&admin.IsActive, &admin.CreatedAt, &lastLoginAt,
	)
	if err == sql.ErrNoRows {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	// Update last login time; failure here does not fail the login
	if _, err := s.DB.ExecContext(r.Context(),
		"UPDATE admins SET last_login_at = now() WHERE id = $1", admin.ID); err != nil {
		log.Printf("Failed to update last_login_at: %v", err)
	}

	if name.Valid {
		admin.Name = &name.String
	}
	if lastLoginAt.Valid {
		admin.LastLoginAt = &lastLoginAt.Time
	}
	admin.Roles = roles

	token, err := s.JWTManager.GenerateToken(admin.ID, admin.Roles)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	response := models.LoginResponse{
		Token: token,
		Admin: admin.Redacted(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// createAdmin handles admin account creation
func (s *Server) createAdmin(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAdminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" || len(req.Roles) == 0 {
		http.Error(w, "Email, password, and roles are required", http.StatusBadRequest)
		return
	}
	if len(req.Password) < 8 {
		http.Error(w, "Password must be at least 8 characters", http.StatusBadRequest)
		return
	}
	if !models.ValidateRoles(req.Roles) {
		http.Error(w, "Invalid roles provided", http.StatusBadRequest)
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	var admin models.Admin
	err = s.DB.QueryRowContext(r.Context(), `
		INSERT INTO admins (email, password_hash, name, roles)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_active, created_at`,
		req.Email, string(hashedPassword), nullIfEmpty(req.Name), pq.Array(req.Roles)).
		Scan(&admin.ID, &admin.IsActive, &admin.CreatedAt)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			http.Error(w, "Admin with this email already exists", http.StatusConflict)
			return
		}
		http.Error(w, "Failed to create admin", http.StatusInternalServerError)
		return
	}

	admin.Email = req.Email
	admin.Name = req.Name
	admin.Roles = req.Roles

	s.logActivity(r.Context(), auth.AdminIDFromContext(r.Context()), "create", "admin", admin.ID, map[string]any{
		"email": admin.Email,
	})

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(admin.Redacted())
}

// changePassword lets the authenticated admin rotate their own password
func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	var req models.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.CurrentPassword == "" || req.NewPassword == "" {
		http.Error(w, "Current and new passwords are required", http.StatusBadRequest)
		return
	}
	if len(req.NewPassword) < 8 {
		http.Error(w, "New password must be at least 8 characters", http.StatusBadRequest)
		return
	}

	adminID := auth.AdminIDFromContext(r.Context())

	var passwordHash string
	err := s.DB.QueryRowContext(r.Context(),
		`SELECT password_hash FROM admins WHERE id = $1 AND is_active = true`, adminID).
		Scan(&passwordHash)
	if err == sql.ErrNoRows {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(req.CurrentPassword)); err != nil {
		http.Error(w, "Current password is incorrect", http.StatusUnauthorized)
		return
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	if _, err := s.DB.ExecContext(r.Context(),
		`UPDATE admins SET password_hash = $1 WHERE id = $2`, string(newHash), adminID); err != nil {
		http.Error(w, "Failed to update password", http.StatusInternalServerError)
		return
	}

	s.logActivity(r.Context(), adminID, "change_password", "admin", adminID, nil)

	w.WriteHeader(http.StatusNoContent)
}
