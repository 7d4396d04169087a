package devserver

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edusync/edusync/internal/ratelimit"
)

type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func toResponse(u *User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

// authHandler groups authentication HTTP handlers.
type authHandler struct {
	store   *Store
	tokens  *Tokens
	limiter *ratelimit.Limiter
	logger  *slog.Logger
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login handles POST /api/login.
func (h *authHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request body.")
		return
	}
	if fields := check(req); fields != nil {
		writeValidation(w, fields)
		return
	}

	u, err := h.store.GetByEmail(r.Context(), req.Email)
	if err != nil || !CheckPassword(u, req.Password) {
		h.logger.Info("login rejected", "email", req.Email)
		writeError(w, http.StatusUnauthorized, "Invalid credentials.")
		return
	}

	token, err := h.tokens.Issue(u)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not issue token.")
		return
	}

	// A successful login forgets earlier failed attempts from this client.
	if h.limiter != nil {
		h.limiter.Reset(ratelimit.ByRemoteIP(r))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  toResponse(u),
	})
}

// Me handles GET /api/me.
func (h *authHandler) Me(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())
	if u == nil {
		writeError(w, http.StatusUnauthorized, "Unauthenticated.")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(u))
}

// teachersHandler groups teacher account handlers (admin only).
type teachersHandler struct {
	store  *Store
	logger *slog.Logger
}

type registerRequest struct {
	Name                 string `json:"name" validate:"required,max=255"`
	Email                string `json:"email" validate:"required,email,max=255"`
	Password             string `json:"password" validate:"required,min=8"`
	PasswordConfirmation string `json:"password_confirmation" validate:"eqfield=Password"`
}

type editRequest struct {
	Name                 string `json:"name" validate:"required,max=255"`
	Email                string `json:"email" validate:"required,email,max=255"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
}

// passwordChange is validated only when an edit carries a password.
type passwordChange struct {
	Password             string `json:"password" validate:"min=8"`
	PasswordConfirmation string `json:"password_confirmation" validate:"eqfield=Password"`
}

// List handles GET /api/maestros.
func (h *teachersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListByRole(r.Context(), RoleTeacher)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not list teachers.")
		return
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toResponse(u))
	}
	writeJSON(w, http.StatusOK, out)
}

// Register handles POST /api/register-maestro.
func (h *teachersHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request body.")
		return
	}
	fields := check(req)
	if h.store.EmailTaken(req.Email, "") {
		if fields == nil {
			fields = fieldErrors{}
		}
		fields.add("email", msgEmailTaken)
	}
	if fields != nil {
		writeValidation(w, fields)
		return
	}

	u, err := h.store.Create(r.Context(), CreateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     RoleTeacher,
	})
	if errors.Is(err, ErrEmailTaken) {
		writeValidation(w, fieldErrors{"email": {msgEmailTaken}})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not register teacher.")
		return
	}
	h.logger.Info("teacher registered", "id", u.ID)
	writeJSON(w, http.StatusCreated, toResponse(u))
}

// Edit handles PUT /api/edit-maestro/{id}. The password changes only when
// the body carries a non-empty password matching its confirmation.
func (h *teachersHandler) Edit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := h.store.GetByID(r.Context(), id)
	if err != nil || existing.Role != RoleTeacher {
		writeError(w, http.StatusNotFound, "Teacher not found.")
		return
	}

	var req editRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request body.")
		return
	}
	fields := check(req)
	if req.Password != "" {
		for k, v := range check(passwordChange{Password: req.Password, PasswordConfirmation: req.PasswordConfirmation}) {
			if fields == nil {
				fields = fieldErrors{}
			}
			fields[k] = append(fields[k], v...)
		}
	}
	if h.store.EmailTaken(req.Email, id) {
		if fields == nil {
			fields = fieldErrors{}
		}
		fields.add("email", msgEmailTaken)
	}
	if fields != nil {
		writeValidation(w, fields)
		return
	}

	in := UpdateUserInput{Name: req.Name, Email: req.Email}
	if req.Password != "" {
		in.Password = &req.Password
	}
	u, err := h.store.Update(r.Context(), id, in)
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "Teacher not found.")
		return
	case errors.Is(err, ErrEmailTaken):
		writeValidation(w, fieldErrors{"email": {msgEmailTaken}})
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Could not update teacher.")
		return
	}
	h.logger.Info("teacher updated", "id", id, "password_changed", in.Password != nil)
	writeJSON(w, http.StatusOK, toResponse(u))
}

// Delete handles DELETE /api/delete-maestro/{id}.
func (h *teachersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := h.store.GetByID(r.Context(), id)
	if err != nil || existing.Role != RoleTeacher {
		writeError(w, http.StatusNotFound, "Teacher not found.")
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "Teacher not found.")
		return
	}
	h.logger.Info("teacher deleted", "id", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Teacher deleted."})
}
