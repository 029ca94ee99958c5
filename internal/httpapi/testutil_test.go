package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"identra.org/internal/audit"
	"identra.org/internal/auth"
	"identra.org/internal/config"
)

type fakeDir struct {
	mu    sync.Mutex
	users map[string]*auth.User
}

func newFakeDir(users ...*auth.User) *fakeDir {
	d := &fakeDir{users: make(map[string]*auth.User)}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

func (d *fakeDir) Create(_ context.Context, u *auth.User) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.users {
		if existing.Email == u.Email {
			return auth.ErrEmailTaken
		}
	}
	if u.ID == "" {
		u.ID = "generated-" + u.Email
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	copied := *u
	d.users[u.ID] = &copied
	return nil
}

func (d *fakeDir) FindByID(_ context.Context, id string) (*auth.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (d *fakeDir) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, u := range d.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, auth.ErrUserNotFound
}

func (d *fakeDir) List(_ context.Context, _, _ int) ([]auth.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]auth.User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, *u)
	}
	return out, nil
}

func (d *fakeDir) UpdateProfile(ctx context.Context, id string, upd auth.ProfileUpdate) (*auth.User, error) {
	d.mu.Lock()
	u, ok := d.users[id]
	if ok {
		if upd.Email != nil {
			u.Email = *upd.Email
		}
		if upd.Name != nil {
			u.Name = *upd.Name
		}
	}
	d.mu.Unlock()
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return d.FindByID(ctx, id)
}

func (d *fakeDir) UpdatePassword(_ context.Context, id, hash string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return auth.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (d *fakeDir) UpdateRole(ctx context.Context, id, role string) (*auth.User, error) {
	d.mu.Lock()
	u, ok := d.users[id]
	if ok {
		u.Role = role
	}
	d.mu.Unlock()
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return d.FindByID(ctx, id)
}

func (d *fakeDir) UpdateStatus(ctx context.Context, id string, active bool) (*auth.User, error) {
	d.mu.Lock()
	u, ok := d.users[id]
	if ok {
		u.IsActive = active
	}
	d.mu.Unlock()
	if !ok {
		return nil, auth.ErrUserNotFound
	}
	return d.FindByID(ctx, id)
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (s *fakeAudit) Append(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *e)
	return nil
}

func (s *fakeAudit) Recent(_ context.Context, _, _ int) ([]audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *fakeAudit) byAction(action string) []audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audit.Entry
	for _, e := range s.entries {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	api   *API
	h     http.Handler
	dir   *fakeDir
	sink  *fakeAudit
	codec *auth.Codec
}

const (
	testSecret    = "test-secret"
	adminPassword = "admin-password-1"
	userPassword  = "user-password-1"
)

func seedAdmin(t *testing.T) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(adminPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return &auth.User{ID: "admin-1", Email: "admin@example.org", Name: "Admin", PasswordHash: hash, Role: auth.RoleAdmin, IsActive: true}
}

func seedUser(t *testing.T, id string) *auth.User {
	t.Helper()
	hash, err := auth.HashPassword(userPassword)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	return &auth.User{ID: id, Email: id + "@example.org", Name: "User " + id, PasswordHash: hash, Role: auth.RoleUser, IsActive: true}
}

func newTestEnv(t *testing.T, users ...*auth.User) *testEnv {
	t.Helper()
	cfg := config.Config{
		TokenSecret:        testSecret,
		SessionTTL:         24 * time.Hour,
		ElevatedTTL:        15 * time.Minute,
		LoginRatePerSecond: 100,
		LoginRateBurst:     100,
		MaxBodyBytes:       1 << 20,
	}
	codec, err := auth.NewCodec(cfg.TokenSecret)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	dir := newFakeDir(users...)
	resolver, err := auth.NewResolver(codec, dir)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	elevated, err := auth.NewElevatedIssuer(codec, cfg.ElevatedTTL)
	if err != nil {
		t.Fatalf("NewElevatedIssuer: %v", err)
	}
	sink := &fakeAudit{}
	api := New(cfg, Deps{
		Resolver:   resolver,
		Codec:      codec,
		Elevated:   elevated,
		Directory:  dir,
		Recorder:   audit.NewRecorder(sink, zerolog.Nop()),
		AuditStore: sink,
		Version:    "test",
	})
	return &testEnv{api: api, h: api.Handler(), dir: dir, sink: sink, codec: codec}
}

func (env *testEnv) sessionToken(t *testing.T, u *auth.User) string {
	t.Helper()
	token, _, err := env.codec.SignSession(u, time.Hour)
	if err != nil {
		t.Fatalf("SignSession: %v", err)
	}
	return token
}

func (env *testEnv) elevatedToken(t *testing.T, u *auth.User) string {
	t.Helper()
	session, err := env.api.elevated.Issue(u.ID, u.Role)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return session.Token
}

type request struct {
	method   string
	path     string
	body     any
	token    string
	elevated string
}

func (env *testEnv) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()
	return doRaw(t, env.h, req)
}

func doRaw(t *testing.T, h http.Handler, req request) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if req.body != nil {
		if err := json.NewEncoder(&buf).Encode(req.body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	r := httptest.NewRequest(req.method, req.path, &buf)
	r.Header.Set("User-Agent", "identra-test/1.0")
	if req.body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if req.token != "" {
		r.Header.Set(authHeader, "Bearer "+req.token)
	}
	if req.elevated != "" {
		r.Header.Set(elevatedHeader, req.elevated)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, r)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var payload errorPayload
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error payload %q: %v", rr.Body.String(), err)
	}
	return payload
}

func expectError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) errorPayload {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	payload := decodeError(t, rr)
	if payload.Code != code {
		t.Fatalf("expected code %s, got %s", code, payload.Code)
	}
	return payload
}
