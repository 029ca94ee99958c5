package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"identra.org/internal/auth"
	"identra.org/internal/obs"
)

// elevatedHeader is the side channel for step-up tokens, separate from the
// primary session token.
const elevatedHeader = "x-elevated-token"

// requireAdmin passes iff an identity is present and carries the admin
// role. Identity absence and wrong role get distinct codes: one means "log
// in", the other "this account lacks privilege".
func (a *API) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			obs.GuardDenied("admin", codeAuthRequired)
			writeError(w, http.StatusUnauthorized, "authentication required", codeAuthRequired)
			return
		}
		if !identity.IsAdmin() {
			obs.GuardDenied("admin", codeAdminRequired)
			writeError(w, http.StatusForbidden, "admin role required", codeAdminRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireOwnershipOrAdmin passes iff the resolved target user id equals the
// caller's id, or the caller is admin. Authentication absence is checked
// before target resolution, so an anonymous request with no target still
// yields 401 rather than 400.
func (a *API) requireOwnershipOrAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			obs.GuardDenied("ownership", codeAuthRequired)
			writeError(w, http.StatusUnauthorized, "authentication required", codeAuthRequired)
			return
		}
		target := targetUserID(r)
		if target == "" {
			obs.GuardDenied("ownership", codeUserIDRequired)
			writeError(w, http.StatusBadRequest, "user id is required", codeUserIDRequired)
			return
		}
		if !identity.IsAdmin() && identity.User.ID != target {
			obs.GuardDenied("ownership", codeOwnershipRequired)
			writeError(w, http.StatusForbidden, "you can only access your own account", codeOwnershipRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireElevated reads the step-up token from its dedicated header and
// verifies it. Every failure carries the reauthenticate hint: unlike a
// plain 403, the caller can fix these by re-running the step-up flow.
func (a *API) requireElevated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimSpace(r.Header.Get(elevatedHeader))
		if token == "" {
			obs.GuardDenied("elevated", codeElevatedRequired)
			writeStepUpError(w, http.StatusForbidden, "elevated session required for this operation", codeElevatedRequired)
			return
		}
		claims, err := a.elevated.Verify(token)
		if err != nil {
			if errors.Is(err, auth.ErrElevatedExpired) {
				obs.GuardDenied("elevated", codeElevatedExpired)
				writeStepUpError(w, http.StatusForbidden, "elevated session expired", codeElevatedExpired)
				return
			}
			obs.GuardDenied("elevated", codeElevatedInvalid)
			writeStepUpError(w, http.StatusForbidden, "invalid elevated token", codeElevatedInvalid)
			return
		}
		if claims.Role != auth.RoleAdmin {
			obs.GuardDenied("elevated", codeAdminRequired)
			writeStepUpError(w, http.StatusForbidden, "admin role required", codeAdminRequired)
			return
		}
		if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.User.ID != claims.Subject {
			// A step-up token minted for someone else proves nothing
			// about this caller.
			obs.GuardDenied("elevated", codeElevatedInvalid)
			writeStepUpError(w, http.StatusForbidden, "invalid elevated token", codeElevatedInvalid)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithElevated(r.Context(), claims)))
	})
}

// targetUserID resolves the target of an ownership check. Precedence: path
// id parameter, then path userId parameter, then a userId field in the
// request body. The body is restored so handlers can decode it again.
func targetUserID(r *http.Request) string {
	if id := strings.TrimSpace(r.PathValue("id")); id != "" {
		return id
	}
	if id := strings.TrimSpace(r.PathValue("userId")); id != "" {
		return id
	}
	if r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return ""
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	var probe struct {
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return ""
	}
	return strings.TrimSpace(probe.UserID)
}
