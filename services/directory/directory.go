// Package directory exposes the user directory over HTTP: login for
// the dashboard and account management for administrators. All
// authorization goes through the userstore capability matrix.
package directory

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"clinicsync-backend/lib/userstore"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	users *userstore.Store
}

func NewHandler(users *userstore.Store) *Handler {
	return &Handler{users: users}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/authenticate", h.authenticate)
	r.Post("/password", h.changePassword)

	r.Group(func(r chi.Router) {
		r.Use(h.requireCapability(userstore.CapManageUsers))
		r.Get("/users", h.listUsers)
		r.Post("/users", h.createUser)
		r.Put("/users/{username}", h.updateUser)
		r.Delete("/users/{username}", h.deleteUser)
		r.Post("/users/{username}/password", h.setPassword)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireCapability(userstore.CapRevealPassword))
		r.Get("/users/{username}/password", h.revealPassword)
	})
	return r
}

type ctxKey int

const callerKey ctxKey = 0

// requireCapability authenticates the caller from basic auth and
// checks the capability against their resolved role.
func (h *Handler) requireCapability(capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok {
				writeError(w, http.StatusUnauthorized, "credentials required")
				return
			}
			caller, err := h.users.Verify(username, password)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid credentials")
				return
			}
			if !userstore.Can(caller.Role, capability) {
				writeError(w, http.StatusForbidden, "operation not permitted")
				return
			}
			next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), caller)))
		})
	}
}

type authRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) {
	var req authRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.users.Authenticate(req.Username, req.Password)
	if errors.Is(err, userstore.ErrBadPassword) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err != nil {
		slog.WarnContext(r.Context(), "authentication failed", "err", err)
		writeError(w, http.StatusInternalServerError, "authentication unavailable")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListAll()
	if err != nil {
		slog.WarnContext(r.Context(), "failed to list users", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

type createUserRequest struct {
	Username           string `json:"username"`
	Name               string `json:"name"`
	Position           string `json:"position"`
	Password           string `json:"password"`
	MustChangePassword bool   `json:"must_change_password"`
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := h.users.Create(req.Username, req.Name, req.Position, req.Password, req.MustChangePassword)
	if errors.Is(err, userstore.ErrExists) {
		writeError(w, http.StatusConflict, "user already exists")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

type updateUserRequest struct {
	Name     string `json:"name"`
	Position string `json:"position"`
}

func (h *Handler) updateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.users.Update(chi.URLParam(r, "username"), req.Name, req.Position)
	if errors.Is(err, userstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	err := h.users.Delete(chi.URLParam(r, "username"))
	if errors.Is(err, userstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type passwordRequest struct {
	Username string `json:"username"`
	Current  string `json:"current_password"`
	Next     string `json:"new_password"`
}

// changePassword is the self-service flow; the current password is the
// proof of identity, no capability needed.
func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req passwordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Next == "" {
		writeError(w, http.StatusBadRequest, "a new password is required")
		return
	}

	err := h.users.ChangePassword(req.Username, req.Current, req.Next)
	switch {
	case errors.Is(err, userstore.ErrBadPassword):
		writeError(w, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, userstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to change password")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"status": "changed"})
	}
}

type setPasswordRequest struct {
	Password string `json:"password"`
}

func (h *Handler) setPassword(w http.ResponseWriter, r *http.Request) {
	var req setPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
		writeError(w, http.StatusBadRequest, "a password is required")
		return
	}

	err := h.users.SetPasswordAdmin(chi.URLParam(r, "username"), req.Password)
	if errors.Is(err, userstore.ErrNotFound) {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to set password")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) revealPassword(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())

	plain, err := h.users.RevealPassword(caller.Role, chi.URLParam(r, "username"))
	switch {
	case errors.Is(err, userstore.ErrForbidden):
		writeError(w, http.StatusForbidden, "operation not permitted")
	case errors.Is(err, userstore.ErrNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case err != nil:
		writeError(w, http.StatusInternalServerError, "failed to reveal password")
	default:
		writeJSON(w, http.StatusOK, map[string]string{"password": plain})
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("failed to encode response", "err", err)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"status": "error", "message": message})
}
