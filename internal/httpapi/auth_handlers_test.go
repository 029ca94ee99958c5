package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"identra.org/internal/audit"
)

func TestRegisterIssuesWorkingSession(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, request{
		method: http.MethodPost,
		path:   "/v1/auth/register",
		body:   map[string]string{"email": "New@Example.org", "name": "New User", "password": "long-enough-pw"},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp sessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.User.Email != "new@example.org" {
		t.Fatalf("expected lowercased email, got %q", resp.User.Email)
	}
	if resp.User.Role != "user" {
		t.Fatalf("new accounts start as user, got %q", resp.User.Role)
	}

	me := env.do(t, request{method: http.MethodGet, path: "/v1/users/me", token: resp.Token})
	if me.Code != http.StatusOK {
		t.Fatalf("fresh token rejected: %d %s", me.Code, me.Body.String())
	}

	env.api.auditor.Flush()
	entries := env.sink.byAction(audit.ActionRegister)
	if len(entries) != 1 || !entries[0].Success {
		t.Fatalf("expected one successful register entry, got %+v", entries)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	user := seedUser(t, "user-1")
	env := newTestEnv(t, user)

	rr := env.do(t, request{
		method: http.MethodPost,
		path:   "/v1/auth/register",
		body:   map[string]string{"email": user.Email, "name": "Imposter", "password": "long-enough-pw"},
	})
	expectError(t, rr, http.StatusConflict, codeEmailInUse)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, request{
		method: http.MethodPost,
		path:   "/v1/auth/register",
		body:   map[string]string{"email": "not-an-email", "password": "long-enough-pw"},
	})
	expectError(t, rr, http.StatusBadRequest, codeValidation)

	rr = env.do(t, request{
		method: http.MethodPost,
		path:   "/v1/auth/register",
		body:   map[string]string{"email": "a@b.org", "password": "short"},
	})
	expectError(t, rr, http.StatusBadRequest, codePasswordRequired)
}

func TestLoginOutcomesAudited(t *testing.T) {
	user := seedUser(t, "user-1")
	inactive := seedUser(t, "user-2")
	inactive.IsActive = false
	env := newTestEnv(t, user, inactive)

	rr := env.do(t, request{
		method: http.MethodPost,
		path:   "/v1/auth/login",
		body:   map[string]string{"email": user.Email, "password": userPassword},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, request{
		method: http.MethodPost,
		path:   "/v1/auth/login",
		body:   map[string]string{"email": user.Email, "password": "wrong-password"},
	})
	expectError(t, rr, http.StatusUnauthorized, codeInvalidCredentials)

	rr = env.do(t, request{
		method: http.MethodPost,
		path:   "/v1/auth/login",
		body:   map[string]string{"email": "ghost@example.org", "password": "whatever-pw"},
	})
	expectError(t, rr, http.StatusUnauthorized, codeInvalidCredentials)

	rr = env.do(t, request{
		method: http.MethodPost,
		path:   "/v1/auth/login",
		body:   map[string]string{"email": inactive.Email, "password": userPassword},
	})
	expectError(t, rr, http.StatusUnauthorized, codeAccountDeactivated)

	env.api.auditor.Flush()
	entries := env.sink.byAction(audit.ActionLogin)
	if len(entries) != 4 {
		t.Fatalf("expected 4 login audit entries, got %d", len(entries))
	}
	reasons := make(map[string]int)
	for _, e := range entries {
		if e.UserAgent != "identra-test/1.0" {
			t.Fatalf("expected request user agent captured, got %q", e.UserAgent)
		}
		reasons[e.Detail]++
	}
	for _, want := range []string{"", "invalid password", "unknown email", "account deactivated"} {
		if reasons[want] != 1 {
			t.Fatalf("expected one entry with detail %q, got %+v", want, reasons)
		}
	}
}

func TestLoginUnknownEmailEntryHasNoUser(t *testing.T) {
	env := newTestEnv(t)

	env.do(t, request{
		method: http.MethodPost,
		path:   "/v1/auth/login",
		body:   map[string]string{"email": "ghost@example.org", "password": "whatever-pw"},
	})
	env.api.auditor.Flush()

	entries := env.sink.byAction(audit.ActionLogin)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].TargetUserID != "" {
		t.Fatalf("no account matched, target must stay empty, got %q", entries[0].TargetUserID)
	}
}

func TestLogoutDoesNotRevokeToken(t *testing.T) {
	user := seedUser(t, "user-1")
	env := newTestEnv(t, user)
	token := env.sessionToken(t, user)

	rr := env.do(t, request{method: http.MethodPost, path: "/v1/auth/logout", token: token})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}

	// No server-side blacklist: the same token keeps working until expiry.
	rr = env.do(t, request{method: http.MethodGet, path: "/v1/users/me", token: token})
	if rr.Code != http.StatusOK {
		t.Fatalf("token must stay valid after logout, got %d", rr.Code)
	}

	env.api.auditor.Flush()
	if entries := env.sink.byAction(audit.ActionLogout); len(entries) != 1 || entries[0].TargetUserID != user.ID {
		t.Fatalf("expected logout audit entry for %s, got %+v", user.ID, entries)
	}
}

func TestElevateRequiresPasswordRecheck(t *testing.T) {
	admin := seedAdmin(t)
	env := newTestEnv(t, admin, seedUser(t, "user-1"))
	token := env.sessionToken(t, admin)

	rr := env.do(t, request{
		method: http.MethodPost,
		path:   "/v1/auth/elevate",
		body:   map[string]string{"password": ""},
		token:  token,
	})
	expectError(t, rr, http.StatusBadRequest, codePasswordRequired)

	rr = env.do(t, request{
		method: http.MethodPost,
		path:   "/v1/auth/elevate",
		body:   map[string]string{"password": "wrong-password"},
		token:  token,
	})
	expectError(t, rr, http.StatusForbidden, codeInvalidPassword)

	env.api.auditor.Flush()
	entries := env.sink.byAction(audit.ActionElevate)
	if len(entries) != 1 || entries[0].Success || entries[0].Detail != "invalid password" {
		t.Fatalf("expected one failed elevate entry, got %+v", entries)
	}
}

func TestElevateTokenUnlocksStepUpRoute(t *testing.T) {
	admin := seedAdmin(t)
	env := newTestEnv(t, admin, seedUser(t, "user-1"))
	token := env.sessionToken(t, admin)

	rr := env.do(t, request{
		method: http.MethodPost,
		path:   "/v1/auth/elevate",
		body:   map[string]string{"password": adminPassword},
		token:  token,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp elevateResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Token == "" || resp.ExpiresAt == "" {
		t.Fatalf("incomplete elevate response: %+v", resp)
	}

	rr = env.do(t, request{
		method:   http.MethodPut,
		path:     "/v1/admin/users/user-1/role",
		body:     map[string]string{"role": "admin"},
		token:    token,
		elevated: resp.Token,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("step-up token rejected: %d %s", rr.Code, rr.Body.String())
	}
}

func TestLoginRateLimitPerIP(t *testing.T) {
	user := seedUser(t, "user-1")
	env := newTestEnv(t, user)

	// Burst of 2 with no refill: the third and later attempts from the same
	// IP must be throttled.
	h := RateLimit(http.HandlerFunc(env.api.handleLogin), 2, 0)
	limited := 0
	for i := 0; i < 5; i++ {
		rr := doRaw(t, h, request{
			method: http.MethodPost,
			path:   "/v1/auth/login",
			body:   map[string]string{"email": user.Email, "password": userPassword},
		})
		if rr.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	if limited != 3 {
		t.Fatalf("expected 3 of 5 requests limited, got %d", limited)
	}
}
