package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"identra.org/internal/audit"
	"identra.org/internal/auth"
	"identra.org/internal/obs"
)

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *auth.User `json:"user"`
}

type elevateRequest struct {
	Password string `json:"password"`
}

type elevateResponse struct {
	Token     string `json:"elevated_token"`
	ExpiresAt string `json:"expires_at"`
}

const minPasswordLength = 8

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), codeValidation)
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		writeError(w, http.StatusBadRequest, "valid email is required", codeValidation)
		return
	}
	if len(req.Password) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters", codePasswordRequired)
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "registration failed", codeTokenError)
		return
	}
	user := &auth.User{
		Email:        email,
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hash,
		Role:         auth.RoleUser,
		IsActive:     true,
	}
	if err := a.dir.Create(r.Context(), user); err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already registered", codeEmailInUse)
			return
		}
		writeError(w, http.StatusInternalServerError, "registration failed", codeDirectoryError)
		return
	}

	token, exp, err := a.codec.SignSession(user, a.cfg.SessionTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token generation failed", codeTokenError)
		return
	}

	a.auditor.AuthEvent(user.ID, audit.ActionRegister, true, "", requestContext(r))
	writeJSON(w, http.StatusCreated, sessionResponse{Token: token, ExpiresAt: exp, User: user})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), codeValidation)
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required", codeValidation)
		return
	}
	rc := requestContext(r)

	user, err := a.dir.FindByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			obs.ObserveLogin("failure")
			a.auditor.AuthEvent("", audit.ActionLogin, false, "unknown email", rc)
			writeError(w, http.StatusUnauthorized, "invalid email or password", codeInvalidCredentials)
			return
		}
		writeError(w, http.StatusInternalServerError, "login failed", codeDirectoryError)
		return
	}
	if !user.IsActive {
		obs.ObserveLogin("failure")
		a.auditor.AuthEvent(user.ID, audit.ActionLogin, false, "account deactivated", rc)
		writeError(w, http.StatusUnauthorized, "account deactivated", codeAccountDeactivated)
		return
	}
	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		obs.ObserveLogin("failure")
		a.auditor.AuthEvent(user.ID, audit.ActionLogin, false, "invalid password", rc)
		writeError(w, http.StatusUnauthorized, "invalid email or password", codeInvalidCredentials)
		return
	}

	token, exp, err := a.codec.SignSession(user, a.cfg.SessionTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token generation failed", codeTokenError)
		return
	}

	obs.ObserveLogin("success")
	a.auditor.AuthEvent(user.ID, audit.ActionLogin, true, "", rc)
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, ExpiresAt: exp, User: user})
}

// handleLogout records the logout but cannot invalidate the session token:
// there is no server-side blacklist, so the token stays usable until its
// expiry. Known limitation.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required", codeAuthRequired)
		return
	}
	a.auditor.AuthEvent(identity.User.ID, audit.ActionLogout, true, "", requestContext(r))
	w.WriteHeader(http.StatusNoContent)
}

// handleElevate issues a step-up token after a synchronous password
// re-check in this same request. Never issues without it.
func (a *API) handleElevate(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required", codeAuthRequired)
		return
	}
	var req elevateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), codeValidation)
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required", codePasswordRequired)
		return
	}
	rc := requestContext(r)
	if err := auth.VerifyPassword(identity.User.PasswordHash, req.Password); err != nil {
		a.auditor.AuthEvent(identity.User.ID, audit.ActionElevate, false, "invalid password", rc)
		writeError(w, http.StatusForbidden, "invalid password", codeInvalidPassword)
		return
	}

	session, err := a.elevated.Issue(identity.User.ID, identity.User.Role)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token generation failed", codeTokenError)
		return
	}

	a.auditor.AuthEvent(identity.User.ID, audit.ActionElevate, true, "", rc)
	writeJSON(w, http.StatusOK, elevateResponse{
		Token:     session.Token,
		ExpiresAt: session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
