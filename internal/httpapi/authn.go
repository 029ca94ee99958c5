package httpapi

import (
	"errors"
	"net/http"

	"identra.org/internal/auth"
)

const authHeader = "Authorization"

var publicPaths = []string{
	"/v1/auth/register",
	"/v1/auth/login",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/metrics",
	"/",
}

// withIdentity resolves the bearer token on every non-public route. It is
// the single authentication gate: guard middleware downstream can assume an
// identity is present when this passes.
//
// All resolution failures surface as 401. A token whose subject no longer
// exists is reported with the same code as a forged token so callers cannot
// probe account existence; the log line records the real cause.
func (a *API) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := a.resolver.Resolve(r.Context(), r.Header.Get(authHeader))
		if err != nil {
			a.rejectUnauthenticated(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), identity)))
	})
}

func (a *API) rejectUnauthenticated(w http.ResponseWriter, r *http.Request, err error) {
	reason := "resolver_error"
	status := http.StatusUnauthorized
	msg := "invalid token"
	code := codeInvalidToken

	switch {
	case errors.Is(err, auth.ErrNoToken):
		reason = "missing_token"
		msg = "authentication required"
		code = codeAuthRequired
	case errors.Is(err, auth.ErrTokenExpired):
		reason = "token_expired"
	case errors.Is(err, auth.ErrTokenInvalid):
		reason = "token_invalid"
	case errors.Is(err, auth.ErrUserNotFound):
		// Deliberately indistinguishable from token_invalid in the
		// response.
		reason = "user_not_found"
	case errors.Is(err, auth.ErrAccountDeactivated):
		reason = "account_deactivated"
		msg = "account deactivated"
		code = codeAccountDeactivated
	default:
		status = http.StatusInternalServerError
		msg = "authentication error"
		code = codeDirectoryError
	}

	a.log.Warn().
		Str("path", r.URL.Path).
		Str("reason", reason).
		Msg("authentication rejected")
	writeError(w, status, msg, code)
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
