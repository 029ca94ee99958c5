package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"identra.org/internal/auth"
)

func TestUpdateProfileSelf(t *testing.T) {
	user := seedUser(t, "user-1")
	env := newTestEnv(t, user)

	rr := env.do(t, request{
		method: http.MethodPut,
		path:   "/v1/users/user-1",
		body:   map[string]string{"name": "Renamed", "email": "Renamed@Example.org"},
		token:  env.sessionToken(t, user),
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var updated auth.User
	if err := json.Unmarshal(rr.Body.Bytes(), &updated); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if updated.Name != "Renamed" || updated.Email != "renamed@example.org" {
		t.Fatalf("unexpected profile after update: %+v", updated)
	}
}

func TestUpdateProfileEmptyBodyRejected(t *testing.T) {
	user := seedUser(t, "user-1")
	env := newTestEnv(t, user)

	rr := env.do(t, request{
		method: http.MethodPut,
		path:   "/v1/users/user-1",
		body:   map[string]string{},
		token:  env.sessionToken(t, user),
	})
	expectError(t, rr, http.StatusBadRequest, codeValidation)
}

func TestUpdateProfileOtherUserDenied(t *testing.T) {
	env := newTestEnv(t, seedUser(t, "user-1"), seedUser(t, "user-2"))

	rr := env.do(t, request{
		method: http.MethodPut,
		path:   "/v1/users/user-2",
		body:   map[string]string{"name": "Hijacked"},
		token:  env.sessionToken(t, env.mustUser(t, "user-1")),
	})
	expectError(t, rr, http.StatusForbidden, codeOwnershipRequired)
	if env.mustUser(t, "user-2").Name == "Hijacked" {
		t.Fatal("profile mutated despite guard denial")
	}
}

func TestChangePasswordSelf(t *testing.T) {
	user := seedUser(t, "user-1")
	env := newTestEnv(t, user)

	rr := env.do(t, request{
		method: http.MethodPut,
		path:   "/v1/users/user-1/password",
		body:   map[string]string{"currentPassword": userPassword, "newPassword": "fresh-password"},
		token:  env.sessionToken(t, user),
	})
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}

	login := env.do(t, request{
		method: http.MethodPost,
		path:   "/v1/auth/login",
		body:   map[string]string{"email": user.Email, "password": "fresh-password"},
	})
	if login.Code != http.StatusOK {
		t.Fatalf("new password rejected at login: %d %s", login.Code, login.Body.String())
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	user := seedUser(t, "user-1")
	env := newTestEnv(t, user)

	rr := env.do(t, request{
		method: http.MethodPut,
		path:   "/v1/users/user-1/password",
		body:   map[string]string{"currentPassword": "wrong-password", "newPassword": "fresh-password"},
		token:  env.sessionToken(t, user),
	})
	expectError(t, rr, http.StatusForbidden, codeInvalidPassword)
}

func TestChangePasswordAdminRedirectedToReset(t *testing.T) {
	admin := seedAdmin(t)
	user := seedUser(t, "user-1")
	env := newTestEnv(t, admin, user)

	// Admins pass the ownership guard, but rotating someone else's password
	// without their current one belongs to the step-up-guarded reset route.
	rr := env.do(t, request{
		method: http.MethodPut,
		path:   "/v1/users/user-1/password",
		body:   map[string]string{"newPassword": "fresh-password"},
		token:  env.sessionToken(t, admin),
	})
	payload := expectError(t, rr, http.StatusForbidden, codeElevatedRequired)
	if payload.Action != actionReauthenticate {
		t.Fatalf("expected action %q, got %q", actionReauthenticate, payload.Action)
	}
}

func TestGetUserAsAdminMissingTarget(t *testing.T) {
	admin := seedAdmin(t)
	env := newTestEnv(t, admin)

	rr := env.do(t, request{method: http.MethodGet, path: "/v1/users/ghost", token: env.sessionToken(t, admin)})
	expectError(t, rr, http.StatusNotFound, codeUserNotFound)
}
