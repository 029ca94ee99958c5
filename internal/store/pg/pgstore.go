package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"identra.org/internal/audit"
	"identra.org/internal/auth"
	"identra.org/internal/ids"
)

const (
	pgErrUniqueViolation = "23505"
)

// Store implements the user directory and the audit sink over Postgres.
type Store struct {
	db *sql.DB
}

var _ auth.Directory = (*Store)(nil)
var _ audit.Store = (*Store)(nil)

// Open connects to Postgres using the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing connection. Used by tests.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

const userColumns = `id, email, name, password_hash, role, is_active, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*auth.User, error) {
	var u auth.User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create inserts a user record. The caller provides the ID, password hash,
// role, and active flag; timestamps come from the database.
func (s *Store) Create(ctx context.Context, u *auth.User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into users (id, email, name, password_hash, role, is_active)
		values ($1, $2, $3, $4, $5, $6)
		returning created_at, updated_at
	`, u.ID, strings.ToLower(u.Email), u.Name, u.PasswordHash, u.Role, u.IsActive)
	if err := row.Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrEmailTaken
		}
		return err
	}
	return nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id)
	return scanUser(row)
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1`, strings.ToLower(email))
	return scanUser(row)
}

func (s *Store) List(ctx context.Context, limit, offset int) ([]auth.User, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+userColumns+`
		from users
		order by created_at desc
		limit $1 offset $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *u)
	}
	return result, rows.Err()
}

func (s *Store) UpdateProfile(ctx context.Context, id string, upd auth.ProfileUpdate) (*auth.User, error) {
	email := sql.NullString{}
	if upd.Email != nil {
		email = sql.NullString{String: strings.ToLower(*upd.Email), Valid: true}
	}
	name := sql.NullString{}
	if upd.Name != nil {
		name = sql.NullString{String: *upd.Name, Valid: true}
	}
	row := s.db.QueryRowContext(ctx, `
		update users
		set email = coalesce($2, email),
		    name = coalesce($3, name),
		    updated_at = now()
		where id = $1
		returning `+userColumns+`
	`, id, email, name)
	u, err := scanUser(row)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return nil, auth.ErrEmailTaken
		}
		return nil, err
	}
	return u, nil
}

func (s *Store) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.execOnUser(ctx, `
		update users set password_hash = $2, updated_at = now() where id = $1
	`, id, passwordHash)
}

func (s *Store) UpdateRole(ctx context.Context, id, role string) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `
		update users set role = $2, updated_at = now() where id = $1
		returning `+userColumns+`
	`, id, role)
	return scanUser(row)
}

func (s *Store) UpdateStatus(ctx context.Context, id string, active bool) (*auth.User, error) {
	row := s.db.QueryRowContext(ctx, `
		update users set is_active = $2, updated_at = now() where id = $1
		returning `+userColumns+`
	`, id, active)
	return scanUser(row)
}

func (s *Store) execOnUser(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return auth.ErrUserNotFound
	}
	return nil
}

// Append writes one audit row. Append-only: nothing updates or deletes rows
// in audit_logs.
func (s *Store) Append(ctx context.Context, e *audit.Entry) error {
	if e.ID == "" {
		e.ID = ids.New()
	}
	metaJSON := []byte("{}")
	if len(e.Metadata) > 0 {
		bytes, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metaJSON = bytes
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_logs (id, target_user_id, action, ip_address, user_agent, success, detail, metadata, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, nullable(e.TargetUserID), e.Action, nullable(e.IPAddress), nullable(e.UserAgent), e.Success, nullable(e.Detail), metaJSON, e.CreatedAt)
	return err
}

// Recent returns audit rows, newest first.
func (s *Store) Recent(ctx context.Context, limit, offset int) ([]audit.Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, target_user_id, action, ip_address, user_agent, success, detail, metadata, created_at
		from audit_logs
		order by created_at desc
		limit $1 offset $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []audit.Entry
	for rows.Next() {
		var (
			e       audit.Entry
			target  sql.NullString
			ip      sql.NullString
			agent   sql.NullString
			detail  sql.NullString
			rawMeta []byte
		)
		if err := rows.Scan(&e.ID, &target, &e.Action, &ip, &agent, &e.Success, &detail, &rawMeta, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.TargetUserID = target.String
		e.IPAddress = ip.String
		e.UserAgent = agent.String
		e.Detail = detail.String
		if len(rawMeta) > 0 {
			if err := json.Unmarshal(rawMeta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func nullable(v string) sql.NullString {
	if strings.TrimSpace(v) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}
