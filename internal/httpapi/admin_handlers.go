package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"identra.org/internal/audit"
	"identra.org/internal/auth"
)

type roleChangeRequest struct {
	Role string `json:"role"`
}

type statusChangeRequest struct {
	IsActive *bool `json:"isActive"`
}

type passwordResetRequest struct {
	NewPassword string `json:"newPassword"`
}

type auditEntryResponse struct {
	ID           string            `json:"id"`
	TargetUserID string            `json:"target_user_id,omitempty"`
	Action       string            `json:"action"`
	IPAddress    string            `json:"ip_address,omitempty"`
	UserAgent    string            `json:"user_agent,omitempty"`
	Success      bool              `json:"success"`
	Detail       string            `json:"detail,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

func (a *API) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := a.dir.List(r.Context(), queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		a.handleDirectoryError(w, err)
		return
	}
	if users == nil {
		users = []auth.User{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// handleAdminGetUser is where a missing target is a 404: the caller already
// passed the admin guard, so existence is not a secret here, unlike the 401
// identity-resolution case.
func (a *API) handleAdminGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.dir.FindByID(r.Context(), r.PathValue("id"))
	if err != nil {
		a.handleDirectoryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleAdminRoleChange(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	targetID := r.PathValue("id")
	if targetID == identity.User.ID {
		// Even a fresh step-up session does not let admins change their
		// own role; a second admin must do it.
		writeError(w, http.StatusBadRequest, "cannot change your own role", codeCannotChangeOwnRole)
		return
	}

	var req roleChangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), codeValidation)
		return
	}
	if !auth.ValidRole(req.Role) {
		writeError(w, http.StatusBadRequest, "role must be user or admin", codeValidation)
		return
	}

	before, err := a.dir.FindByID(r.Context(), targetID)
	if err != nil {
		a.handleDirectoryError(w, err)
		return
	}
	user, err := a.dir.UpdateRole(r.Context(), targetID, req.Role)
	if err != nil {
		a.handleDirectoryError(w, err)
		return
	}

	a.auditor.AdminAction(audit.ActionRoleChange, user.ID, identity.User.ID, map[string]string{
		"old_role": before.Role,
		"new_role": user.Role,
	}, requestContext(r))
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleAdminStatusChange(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	targetID := r.PathValue("id")
	if targetID == identity.User.ID {
		writeError(w, http.StatusBadRequest, "cannot change your own account status", codeCannotChangeOwnStatus)
		return
	}

	var req statusChangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), codeValidation)
		return
	}
	if req.IsActive == nil {
		writeError(w, http.StatusBadRequest, "isActive is required", codeValidation)
		return
	}

	user, err := a.dir.UpdateStatus(r.Context(), targetID, *req.IsActive)
	if err != nil {
		a.handleDirectoryError(w, err)
		return
	}

	a.auditor.AdminAction(audit.ActionStatusChange, user.ID, identity.User.ID, map[string]string{
		"is_active": strconv.FormatBool(user.IsActive),
	}, requestContext(r))
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleAdminPasswordReset(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var req passwordResetRequest
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
	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "password reset failed", codeTokenError)
		return
	}
	if err := a.dir.UpdatePassword(r.Context(), target.ID, hash); err != nil {
		a.handleDirectoryError(w, err)
		return
	}

	a.auditor.AdminAction(audit.ActionPasswordReset, target.ID, identity.User.ID, nil, requestContext(r))
	w.WriteHeader(http.StatusNoContent)
}

// handleAdminImpersonate mints a regular session token for the target user.
// The impersonated session is indistinguishable from the target's own; the
// audit row is the only record tying it back to the acting admin.
func (a *API) handleAdminImpersonate(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	target, err := a.dir.FindByID(r.Context(), r.PathValue("id"))
	if err != nil {
		a.handleDirectoryError(w, err)
		return
	}
	if !target.IsActive {
		writeError(w, http.StatusBadRequest, "cannot impersonate a deactivated account", codeValidation)
		return
	}

	token, exp, err := a.codec.SignSession(target, a.cfg.SessionTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "token generation failed", codeTokenError)
		return
	}

	a.auditor.AdminAction(audit.ActionImpersonate, target.ID, identity.User.ID, nil, requestContext(r))
	writeJSON(w, http.StatusOK, sessionResponse{Token: token, ExpiresAt: exp, User: target})
}

func (a *API) handleAdminAuditLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := a.auditLog.Recent(r.Context(), queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "audit log unavailable", codeDirectoryError)
		return
	}
	out := make([]auditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntryResponse{
			ID:           e.ID,
			TargetUserID: e.TargetUserID,
			Action:       e.Action,
			IPAddress:    e.IPAddress,
			UserAgent:    e.UserAgent,
			Success:      e.Success,
			Detail:       e.Detail,
			Metadata:     e.Metadata,
			CreatedAt:    e.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}
