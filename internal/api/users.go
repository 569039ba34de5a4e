package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/vitrina/internal/model"
	"github.com/erazemk/vitrina/internal/store"
)

// UsersHandler handles user management endpoints.
type UsersHandler struct {
	DB *sql.DB
}

type createUserRequest struct {
	Email           string     `json:"email" validate:"required,email"`
	Name            string     `json:"name" validate:"max=100"`
	Password        string     `json:"password" validate:"required"`
	Role            string     `json:"role" validate:"required,oneof=admin volunteer"`
	AccessExpiresAt *time.Time `json:"access_expires_at"`
}

type updateUserRequest struct {
	Name            *string    `json:"name" validate:"omitempty,max=100"`
	Role            string     `json:"role" validate:"omitempty,oneof=admin volunteer"`
	IsActive        *bool      `json:"is_active"`
	AccessExpiresAt *time.Time `json:"access_expires_at"`
	ClearExpiry     bool       `json:"clear_access_expiry"`
}

type resetPasswordRequest struct {
	Password string `json:"password" validate:"required"`
}

// List handles GET /api/users.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := store.ListUsers(r.Context(), h.DB)
	if err != nil {
		slog.Error("failed to list users", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	if users == nil {
		users = []model.User{}
	}
	jsonResponse(w, http.StatusOK, users)
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStoreError(w, err, "invalid request")
		return
	}

	if err := model.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, req.Email, req.Name, string(hash), req.Role)
	if err != nil {
		writeStoreError(w, err, "failed to create user")
		return
	}

	if req.AccessExpiresAt != nil {
		err := store.UpdateUser(r.Context(), h.DB, user.ID, store.UserUpdate{
			Name:            user.Name,
			Role:            user.Role,
			IsActive:        true,
			AccessExpiresAt: req.AccessExpiresAt,
		})
		if err != nil {
			writeStoreError(w, err, "failed to set access expiry")
			return
		}
		user, _ = store.GetUser(r.Context(), h.DB, user.ID)
	}

	claims := GetClaims(r.Context())
	slog.Info("user created", "user", claims.Email, "new_user", user.Email, "role", user.Role)
	jsonResponse(w, http.StatusCreated, user)
}

// Get handles GET /api/users/{id}.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get user", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get user")
		return
	}
	if user == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}

	jsonResponse(w, http.StatusOK, user)
}

// Update handles PUT /api/users/{id}. Omitted fields keep their values.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req updateUserRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStoreError(w, err, "invalid request")
		return
	}

	user, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		slog.Error("failed to get user", "error", err)
		jsonError(w, http.StatusInternalServerError, "failed to get user")
		return
	}
	if user == nil || user.DeletedAt != nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}

	u := store.UserUpdate{
		Name:            user.Name,
		Role:            user.Role,
		IsActive:        user.IsActive,
		AccessExpiresAt: user.AccessExpiresAt,
	}
	if req.Name != nil {
		u.Name = *req.Name
	}
	if req.Role != "" {
		u.Role = req.Role
	}
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}
	if req.AccessExpiresAt != nil {
		u.AccessExpiresAt = req.AccessExpiresAt
	}
	if req.ClearExpiry {
		u.AccessExpiresAt = nil
	}

	if user.Role == model.RoleAdmin && user.IsActive && (u.Role != model.RoleAdmin || !u.IsActive) {
		if err := h.requireOtherAdmin(r.Context()); err != nil {
			writeStoreError(w, err, "failed to update user")
			return
		}
	}

	if err := store.UpdateUser(r.Context(), h.DB, id, u); err != nil {
		writeStoreError(w, err, "failed to update user")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("user updated", "user", claims.Email, "target_user", user.Email,
		"role", u.Role, "active", u.IsActive)
	updated, _ := store.GetUser(r.Context(), h.DB, id)
	jsonResponse(w, http.StatusOK, updated)
}

// ResetPassword handles PUT /api/users/{id}/password.
func (h *UsersHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeStoreError(w, err, "invalid request")
		return
	}

	if err := model.ValidatePassword(req.Password); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	if err := store.UpdateUserPassword(r.Context(), h.DB, id, string(hash)); err != nil {
		writeStoreError(w, err, "failed to reset password")
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("user password reset", "user", claims.Email, "target_user", h.userLabel(r, id))
	jsonResponse(w, http.StatusOK, map[string]string{"message": "password reset"})
}

// Delete handles DELETE /api/users/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	// Prevent self-deletion.
	claims := GetClaims(r.Context())
	if claims != nil && claims.UserID == id {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	targetName := h.userLabel(r, id)

	if err := store.DeleteUser(r.Context(), h.DB, id); err != nil {
		writeStoreError(w, err, "failed to delete user")
		return
	}

	slog.Info("user deleted", "user", claims.Email, "deleted_user", targetName)
	jsonResponse(w, http.StatusOK, map[string]string{"message": "user deleted"})
}

// requireOtherAdmin fails when demoting or deactivating an admin would leave
// no active admin.
func (h *UsersHandler) requireOtherAdmin(ctx context.Context) error {
	n, err := store.CountAdmins(ctx, h.DB)
	if err != nil {
		return err
	}
	if n <= 1 {
		return fmt.Errorf("last active admin: %w", model.ErrInUse)
	}
	return nil
}

func (h *UsersHandler) userLabel(r *http.Request, id int64) string {
	target, _ := store.GetUser(r.Context(), h.DB, id)
	if target != nil {
		return target.Email
	}
	return fmt.Sprintf("id:%d", id)
}
