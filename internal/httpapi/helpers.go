package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"identra.org/internal/audit"
)

// Machine-readable error codes returned in the rejection payload.
const (
	codeAuthRequired          = "AUTH_REQUIRED"
	codeInvalidToken          = "INVALID_TOKEN"
	codeAccountDeactivated    = "ACCOUNT_DEACTIVATED"
	codeAdminRequired         = "ADMIN_REQUIRED"
	codeOwnershipRequired     = "OWNERSHIP_REQUIRED"
	codeUserIDRequired        = "USER_ID_REQUIRED"
	codeElevatedRequired      = "ELEVATED_SESSION_REQUIRED"
	codeElevatedExpired       = "ELEVATED_SESSION_EXPIRED"
	codeElevatedInvalid       = "INVALID_ELEVATED_TOKEN"
	codePasswordRequired      = "PASSWORD_REQUIRED"
	codeInvalidPassword       = "INVALID_PASSWORD"
	codeInvalidCredentials    = "INVALID_CREDENTIALS"
	codeEmailInUse            = "EMAIL_IN_USE"
	codeUserNotFound          = "USER_NOT_FOUND"
	codeCannotChangeOwnRole   = "CANNOT_CHANGE_OWN_ROLE"
	codeCannotChangeOwnStatus = "CANNOT_CHANGE_OWN_STATUS"
	codeValidation            = "VALIDATION_ERROR"
	codeDirectoryError        = "DIRECTORY_ERROR"
	codeTokenError            = "TOKEN_ERROR"
)

// actionReauthenticate distinguishes step-up failures from permanent
// denials: the client can retry after re-running the elevation flow.
const actionReauthenticate = "reauthenticate"

type errorPayload struct {
	Error  string `json:"error"`
	Code   string `json:"code"`
	Action string `json:"action,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorPayload{Error: msg, Code: code})
}

func writeStepUpError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorPayload{Error: msg, Code: code, Action: actionReauthenticate})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// requestContext captures client attributes for the audit trail before the
// core is invoked.
func requestContext(r *http.Request) *audit.RequestContext {
	return &audit.RequestContext{
		IPAddress: clientIP(r),
		UserAgent: r.Header.Get("User-Agent"),
	}
}

func clientIP(r *http.Request) string {
	// X-Forwarded-For support (first IP)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
