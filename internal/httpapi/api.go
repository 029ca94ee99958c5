package httpapi

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/rs/zerolog"

	"identra.org/internal/audit"
	"identra.org/internal/auth"
	"identra.org/internal/config"
	"identra.org/internal/obs"
)

// ReadyProbe reports backing-store readiness for /readyz.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps collects the collaborators the HTTP layer drives.
type Deps struct {
	Resolver   *auth.Resolver
	Codec      *auth.Codec
	Elevated   *auth.ElevatedIssuer
	Directory  auth.Directory
	Recorder   *audit.Recorder
	AuditStore audit.Store
	Probe      ReadyProbe
	Version    string
}

// API is the HTTP layer.
type API struct {
	mux      *http.ServeMux
	cfg      config.Config
	resolver *auth.Resolver
	codec    *auth.Codec
	elevated *auth.ElevatedIssuer
	dir      auth.Directory
	auditor  *audit.Recorder
	auditLog audit.Store
	probe    ReadyProbe
	version  string
	log      zerolog.Logger
}

// New wires routes and guards. Guards compose in a fixed order per route:
// identity resolution happens once for every non-public path, then
// per-route guards run before the handler.
func New(cfg config.Config, deps Deps) *API {
	a := &API{
		mux:      http.NewServeMux(),
		cfg:      cfg,
		resolver: deps.Resolver,
		codec:    deps.Codec,
		elevated: deps.Elevated,
		dir:      deps.Directory,
		auditor:  deps.Recorder,
		auditLog: deps.AuditStore,
		probe:    deps.Probe,
		version:  deps.Version,
		log:      obs.Logger(),
	}

	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("GET /metrics", obs.Handler())

	// session lifecycle
	a.mux.Handle("POST /v1/auth/register", http.HandlerFunc(a.handleRegister))
	a.mux.Handle("POST /v1/auth/login", RateLimit(http.HandlerFunc(a.handleLogin), cfg.LoginRateBurst, cfg.LoginRatePerSecond))
	a.mux.Handle("POST /v1/auth/logout", http.HandlerFunc(a.handleLogout))
	a.mux.Handle("POST /v1/auth/elevate", http.HandlerFunc(a.handleElevate))

	// profile
	a.mux.Handle("GET /v1/users/me", http.HandlerFunc(a.handleMe))
	a.mux.Handle("GET /v1/users/{id}", a.requireOwnershipOrAdmin(http.HandlerFunc(a.handleGetUser)))
	a.mux.Handle("PUT /v1/users/{id}", a.requireOwnershipOrAdmin(http.HandlerFunc(a.handleUpdateProfile)))
	a.mux.Handle("PUT /v1/users/{id}/password", a.requireOwnershipOrAdmin(http.HandlerFunc(a.handleChangePassword)))

	// admin panel
	a.mux.Handle("GET /v1/admin/users", a.requireAdmin(http.HandlerFunc(a.handleAdminListUsers)))
	a.mux.Handle("GET /v1/admin/users/{id}", a.requireAdmin(http.HandlerFunc(a.handleAdminGetUser)))
	a.mux.Handle("GET /v1/admin/audit-logs", a.requireAdmin(http.HandlerFunc(a.handleAdminAuditLogs)))

	// Sensitive mutations need a fresh step-up token on top of the admin
	// role. The elevated guard runs first: a caller without a step-up
	// token hears "re-authenticate" before any role verdict, and the
	// guard's own role check keeps non-admin step-up tokens out.
	a.mux.Handle("PUT /v1/admin/users/{id}/role", a.requireElevated(a.requireAdmin(http.HandlerFunc(a.handleAdminRoleChange))))
	a.mux.Handle("PUT /v1/admin/users/{id}/status", a.requireElevated(a.requireAdmin(http.HandlerFunc(a.handleAdminStatusChange))))
	a.mux.Handle("POST /v1/admin/users/{id}/password-reset", a.requireElevated(a.requireAdmin(http.HandlerFunc(a.handleAdminPasswordReset))))
	a.mux.Handle("POST /v1/admin/users/{id}/impersonate", a.requireElevated(a.requireAdmin(http.HandlerFunc(a.handleAdminImpersonate))))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withIdentity(a.mux)
	h = MaxBodyBytes(h, a.cfg.MaxBodyBytes)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = Logging(h)
	return obs.Instrument(h)
}
