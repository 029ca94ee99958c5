// Package audit records authentication and privileged-admin events.
//
// Writes are best-effort and fire-and-forget: they are issued on a detached
// goroutine, never awaited before responding, and a failed write is routed
// to the operator log only. The triggering request must never fail or roll
// back because of audit persistence.
package audit

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mssola/useragent"
	"github.com/rs/zerolog"

	"identra.org/internal/ids"
	"identra.org/internal/obs"
)

// Actions recorded by the service.
const (
	ActionRegister = "auth.register"
	ActionLogin    = "auth.login"
	ActionLogout   = "auth.logout"
	ActionElevate  = "auth.elevate"

	ActionRoleChange    = "admin.user.role_change"
	ActionStatusChange  = "admin.user.status_change"
	ActionPasswordReset = "admin.user.password_reset"
	ActionImpersonate   = "admin.user.impersonate"
)

// Entry is one append-only audit row. Empty string fields are persisted as
// NULL. Detail carries the failure reason for auth events and the acting
// admin's user id for admin actions.
type Entry struct {
	ID           string
	TargetUserID string
	Action       string
	IPAddress    string
	UserAgent    string
	Success      bool
	Detail       string
	Metadata     map[string]string
	CreatedAt    time.Time
}

// Store persists audit entries. Append failures are absorbed by the
// Recorder, so implementations need no retry logic.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	Recent(ctx context.Context, limit, offset int) ([]Entry, error)
}

// RequestContext carries the client-facing request attributes the HTTP
// layer resolved before invoking the core. Either field may be empty.
type RequestContext struct {
	IPAddress string
	UserAgent string
}

const writeTimeout = 5 * time.Second

// Recorder is the audit entry point used by handlers.
type Recorder struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
	wg    sync.WaitGroup
}

// NewRecorder constructs a Recorder writing to store and reporting failures
// to logger.
func NewRecorder(store Store, logger zerolog.Logger) *Recorder {
	return &Recorder{store: store, log: logger, now: time.Now}
}

// AuthEvent records a login, registration, or failed-login event. userID may
// be empty, e.g. a login attempt against a nonexistent email.
func (r *Recorder) AuthEvent(userID, action string, success bool, failureReason string, rc *RequestContext) {
	entry := &Entry{
		ID:           ids.New(),
		TargetUserID: userID,
		Action:       action,
		Success:      success,
		Detail:       failureReason,
		CreatedAt:    r.now().UTC(),
	}
	applyRequestContext(entry, rc)
	r.submit(entry)
}

// AdminAction records a privileged mutation performed by actorUserID against
// targetUserID.
func (r *Recorder) AdminAction(action, targetUserID, actorUserID string, metadata map[string]string, rc *RequestContext) {
	entry := &Entry{
		ID:           ids.New(),
		TargetUserID: targetUserID,
		Action:       action,
		Success:      true,
		Detail:       actorUserID,
		Metadata:     metadata,
		CreatedAt:    r.now().UTC(),
	}
	applyRequestContext(entry, rc)
	r.submit(entry)
}

// Flush waits for in-flight writes. Called on shutdown and from tests; the
// request path never waits.
func (r *Recorder) Flush() {
	r.wg.Wait()
}

func (r *Recorder) submit(entry *Entry) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := r.store.Append(ctx, entry); err != nil {
			obs.AuditWriteFailed()
			r.log.Error().
				Err(err).
				Str("action", entry.Action).
				Str("target_user_id", entry.TargetUserID).
				Msg("audit write failed")
		}
	}()
}

func applyRequestContext(entry *Entry, rc *RequestContext) {
	if rc == nil {
		return
	}
	entry.IPAddress = rc.IPAddress
	entry.UserAgent = rc.UserAgent
	if device := deviceSummary(rc.UserAgent); device != "" {
		if entry.Metadata == nil {
			entry.Metadata = make(map[string]string, 1)
		}
		entry.Metadata["device"] = device
	}
}

// deviceSummary condenses a User-Agent string into "Browser on OS" for the
// audit trail. Unparseable agents yield an empty summary.
func deviceSummary(uaString string) string {
	if strings.TrimSpace(uaString) == "" {
		return ""
	}
	ua := useragent.New(uaString)
	browser, _ := ua.Browser()
	os := ua.OSInfo().Name
	browser = strings.TrimSpace(browser)
	os = strings.TrimSpace(os)
	switch {
	case browser == "" && os == "":
		return ""
	case browser == "":
		return os
	case os == "":
		return browser
	}
	return browser + " on " + os
}
