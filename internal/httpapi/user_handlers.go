package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"identra.org/internal/auth"
)

type updateProfileRequest struct {
	Email *string `json:"email"`
	Name  *string `json:"name"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required", codeAuthRequired)
		return
	}
	writeJSON(w, http.StatusOK, identity.User)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.dir.FindByID(r.Context(), r.PathValue("id"))
	if err != nil {
		a.handleDirectoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), codeValidation)
		return
	}
	if req.Email == nil && req.Name == nil {
		writeError(w, http.StatusBadRequest, "nothing to update", codeValidation)
		return
	}
	upd := auth.ProfileUpdate{Name: req.Name}
	if req.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*req.Email))
		if email == "" || !strings.Contains(email, "@") {
			writeError(w, http.StatusBadRequest, "valid email is required", codeValidation)
			return
		}
		upd.Email = &email
	}

	user, err := a.dir.UpdateProfile(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already registered", codeEmailInUse)
			return
		}
		a.handleDirectoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleChangePassword lets a user rotate their own password after proving
// the current one. Resetting someone else's password goes through the
// step-up-guarded admin route; this one refuses non-self targets so the
// elevated-session requirement cannot be sidestepped.
func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required", codeAuthRequired)
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), codeValidation)
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters", codePasswordRequired)
		return
	}

	target, err := a.dir.FindByID(r.Context(), r.PathValue("id"))
	if err != nil {
		a.handleDirectoryError(w, err)
		return
	}
	if target.ID != identity.User.ID {
		writeStepUpError(w, http.StatusForbidden, "use the admin password reset for other accounts", codeElevatedRequired)
		return
	}
	if req.CurrentPassword == "" {
		writeError(w, http.StatusBadRequest, "current password is required", codePasswordRequired)
		return
	}
	if err := auth.VerifyPassword(target.PasswordHash, req.CurrentPassword); err != nil {
		writeError(w, http.StatusForbidden, "invalid password", codeInvalidPassword)
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "password update failed", codeTokenError)
		return
	}
	if err := a.dir.UpdatePassword(r.Context(), target.ID, hash); err != nil {
		a.handleDirectoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDirectoryError(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrUserNotFound) {
		writeError(w, http.StatusNotFound, "user not found", codeUserNotFound)
		return
	}
	writeError(w, http.StatusInternalServerError, "directory unavailable", codeDirectoryError)
}
