package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/domain"
	"github.com/gtextsoft/LandlordNoAgent-sub001/internal/port"
	"github.com/lib/pq"
)

// uniqueViolation is the Postgres error code for unique constraint conflicts.
const uniqueViolation = "23505"

// PostgresStore handles all relational database operations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection and returns a store instance.
func NewPostgresStore(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreWithDB wraps an existing connection (used by tests).
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use in transactions and migrations.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// isUniqueViolation reports whether err is a Postgres unique-constraint error.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// --- Auth users ---

// CreateAuthUser inserts an identity record for the auth backend.
// A duplicate email returns port.ErrEmailTaken.
func (s *PostgresStore) CreateAuthUser(ctx context.Context, email, passwordHash string, meta domain.SignupMetadata) (*domain.AuthUser, error) {
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal signup metadata: %w", err)
	}

	query := `INSERT INTO auth_users (email, password_hash, metadata)
	          VALUES ($1, $2, $3::jsonb)
	          RETURNING id, email, password_hash, metadata, created_at`

	user, err := scanAuthUser(s.db.QueryRowContext(ctx, query, email, passwordHash, metaJSON))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, port.ErrEmailTaken
		}
		return nil, fmt.Errorf("create auth user: %w", err)
	}
	return user, nil
}

// GetAuthUserByEmail retrieves an identity by email.
func (s *PostgresStore) GetAuthUserByEmail(ctx context.Context, email string) (*domain.AuthUser, error) {
	query := `SELECT id, email, password_hash, metadata, created_at
	          FROM auth_users WHERE lower(email) = lower($1)`

	user, err := scanAuthUser(s.db.QueryRowContext(ctx, query, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, port.ErrUserNotFound
		}
		return nil, fmt.Errorf("get auth user: %w", err)
	}
	return user, nil
}

func scanAuthUser(row *sql.Row) (*domain.AuthUser, error) {
	var (
		user     domain.AuthUser
		metaJSON []byte
	)
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &metaJSON, &user.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &user.Metadata); err != nil {
			return nil, fmt.Errorf("decode signup metadata: %w", err)
		}
	}
	return &user, nil
}

// --- Auth sessions ---

// CreateAuthSession persists a new session row. The refresh token is stored
// hashed; the plaintext never reaches the database.
func (s *PostgresStore) CreateAuthSession(ctx context.Context, sess *domain.Session, refreshHash string) error {
	query := `INSERT INTO auth_sessions (id, user_id, refresh_hash, expires_at)
	          VALUES ($1, $2, $3, $4)`
	if _, err := s.db.ExecContext(ctx, query, sess.ID, sess.UserID, refreshHash, sess.ExpiresAt); err != nil {
		return fmt.Errorf("create auth session: %w", err)
	}
	return nil
}

// GetAuthSession returns a live (non-revoked) session joined with its identity.
// Revoked sessions return port.ErrSessionRevoked, missing ones ErrTokenInvalid.
func (s *PostgresStore) GetAuthSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	query := `SELECT s.id, s.user_id, u.email, u.metadata, s.expires_at, s.created_at, s.revoked_at
	          FROM auth_sessions s
	          JOIN auth_users u ON u.id = s.user_id
	          WHERE s.id = $1`
	return s.scanSession(s.db.QueryRowContext(ctx, query, sessionID))
}

// GetAuthSessionByRefreshHash looks a session up by its hashed refresh token.
func (s *PostgresStore) GetAuthSessionByRefreshHash(ctx context.Context, refreshHash string) (*domain.Session, error) {
	query := `SELECT s.id, s.user_id, u.email, u.metadata, s.expires_at, s.created_at, s.revoked_at
	          FROM auth_sessions s
	          JOIN auth_users u ON u.id = s.user_id
	          WHERE s.refresh_hash = $1`
	return s.scanSession(s.db.QueryRowContext(ctx, query, refreshHash))
}

func (s *PostgresStore) scanSession(row *sql.Row) (*domain.Session, error) {
	var (
		sess      domain.Session
		metaJSON  []byte
		revokedAt sql.NullTime
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Email, &metaJSON, &sess.ExpiresAt, &sess.CreatedAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, port.ErrTokenInvalid
		}
		return nil, fmt.Errorf("get auth session: %w", err)
	}
	if revokedAt.Valid {
		return nil, port.ErrSessionRevoked
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &sess.Metadata); err != nil {
			return nil, fmt.Errorf("decode session metadata: %w", err)
		}
	}
	return &sess, nil
}

// RotateAuthSession swaps in a new refresh hash and extends the session window.
func (s *PostgresStore) RotateAuthSession(ctx context.Context, sessionID, newRefreshHash string, expiresAt time.Time) error {
	query := `UPDATE auth_sessions SET refresh_hash = $1, expires_at = $2
	          WHERE id = $3 AND revoked_at IS NULL`
	res, err := s.db.ExecContext(ctx, query, newRefreshHash, expiresAt, sessionID)
	if err != nil {
		return fmt.Errorf("rotate auth session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return port.ErrSessionRevoked
	}
	return nil
}

// RevokeAuthSession marks a session revoked. Revoking twice is a no-op.
func (s *PostgresStore) RevokeAuthSession(ctx context.Context, sessionID string) error {
	query := `UPDATE auth_sessions SET revoked_at = NOW()
	          WHERE id = $1 AND revoked_at IS NULL`
	if _, err := s.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("revoke auth session: %w", err)
	}
	return nil
}

// --- Profiles ---

// GetProfile retrieves a profile by user id. Absence returns (nil, nil):
// a missing profile is an expected state, not an error.
func (s *PostgresStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	query := `SELECT id, email, full_name, phone, avatar_url, COALESCE(role, ''), created_at, updated_at, last_sign_in_at
	          FROM profiles WHERE id = $1`

	p, err := scanProfile(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// CreateProfile inserts a profile row and, when initialRole is valid, the
// matching role-assignment row in one transaction. A concurrent insert of the
// same profile surfaces as port.ErrProfileExists so the caller can re-fetch.
func (s *PostgresStore) CreateProfile(ctx context.Context, p *domain.Profile, initialRole domain.Role) (*domain.Profile, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `INSERT INTO profiles (id, email, full_name, phone, avatar_url, role)
	          VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
	          RETURNING id, email, full_name, phone, avatar_url, COALESCE(role, ''), created_at, updated_at, last_sign_in_at`

	created, err := scanProfile(tx.QueryRowContext(ctx, query,
		p.ID, p.Email, p.FullName, p.Phone, p.AvatarURL, p.Role,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, port.ErrProfileExists
		}
		return nil, fmt.Errorf("create profile: %w", err)
	}

	if initialRole.Valid() {
		roleQuery := `INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
		              ON CONFLICT (user_id, role) DO NOTHING`
		if _, err := tx.ExecContext(ctx, roleQuery, p.ID, string(initialRole)); err != nil {
			return nil, fmt.Errorf("create initial role: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit profile: %w", err)
	}
	return created, nil
}

// UpdateProfile persists the user-editable profile fields.
func (s *PostgresStore) UpdateProfile(ctx context.Context, p *domain.Profile) (*domain.Profile, error) {
	query := `UPDATE profiles SET full_name = $1, phone = $2, avatar_url = $3, updated_at = NOW()
	          WHERE id = $4
	          RETURNING id, email, full_name, phone, avatar_url, COALESCE(role, ''), created_at, updated_at, last_sign_in_at`

	updated, err := scanProfile(s.db.QueryRowContext(ctx, query, p.FullName, p.Phone, p.AvatarURL, p.ID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, port.ErrUserNotFound
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return updated, nil
}

// TouchLastSignIn stamps the profile's last sign-in time.
func (s *PostgresStore) TouchLastSignIn(ctx context.Context, userID string) error {
	query := `UPDATE profiles SET last_sign_in_at = NOW() WHERE id = $1`
	_, err := s.db.ExecContext(ctx, query, userID)
	return err
}

func scanProfile(row *sql.Row) (*domain.Profile, error) {
	var (
		p          domain.Profile
		lastSignIn sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.Phone, &p.AvatarURL, &p.Role,
		&p.CreatedAt, &p.UpdatedAt, &lastSignIn)
	if err != nil {
		return nil, err
	}
	if lastSignIn.Valid {
		t := lastSignIn.Time
		p.LastSignInAt = &t
	}
	return &p, nil
}

// --- Role assignments ---

// CurrentUserRoles returns the authoritative role list for the session's own
// identity. The user id comes from the session record, never from the caller.
func (s *PostgresStore) CurrentUserRoles(ctx context.Context, session *domain.Session) ([]domain.Role, error) {
	if session == nil {
		return nil, port.ErrTokenInvalid
	}
	return s.rolesFor(ctx, session.UserID)
}

// ListUserRoles returns role assignments for an arbitrary user (admin paths).
func (s *PostgresStore) ListUserRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	return s.rolesFor(ctx, userID)
}

func (s *PostgresStore) rolesFor(ctx context.Context, userID string) ([]domain.Role, error) {
	query := `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list user roles: %w", err)
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		if r, ok := domain.ParseRole(raw); ok {
			roles = append(roles, r)
		}
	}
	return roles, rows.Err()
}

// UpsertUserRole inserts a role assignment keyed on (user id, role). Repeated
// calls with the same pair leave exactly one row.
func (s *PostgresStore) UpsertUserRole(ctx context.Context, userID string, role domain.Role) error {
	query := `INSERT INTO user_roles (user_id, role) VALUES ($1, $2)
	          ON CONFLICT (user_id, role) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, userID, string(role)); err != nil {
		return fmt.Errorf("upsert user role: %w", err)
	}
	return nil
}

// RemoveUserRole deletes one role assignment.
func (s *PostgresStore) RemoveUserRole(ctx context.Context, userID string, role domain.Role) error {
	query := `DELETE FROM user_roles WHERE user_id = $1 AND role = $2`
	if _, err := s.db.ExecContext(ctx, query, userID, string(role)); err != nil {
		return fmt.Errorf("remove user role: %w", err)
	}
	return nil
}

// ListProfiles returns profiles with their role assignments, newest first
// (admin user directory).
func (s *PostgresStore) ListProfiles(ctx context.Context, limit, offset int) ([]domain.Profile, error) {
	query := `SELECT id, email, full_name, phone, avatar_url, COALESCE(role, ''), created_at, updated_at, last_sign_in_at
	          FROM profiles ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		var (
			p          domain.Profile
			lastSignIn sql.NullTime
		)
		if err := rows.Scan(&p.ID, &p.Email, &p.FullName, &p.Phone, &p.AvatarURL, &p.Role,
			&p.CreatedAt, &p.UpdatedAt, &lastSignIn); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		if lastSignIn.Valid {
			t := lastSignIn.Time
			p.LastSignInAt = &t
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// --- Audit logs ---

// WriteAudit implements middleware.AuditWriter.
func (s *PostgresStore) WriteAudit(userID, action, resource, resourceID, details, ip, userAgent string) error {
	query := `INSERT INTO audit_logs (user_id, action, resource, resource_id, details, ip, user_agent)
	          VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7)`
	_, err := s.db.ExecContext(context.Background(), query,
		userID, action, resource, resourceID, details, ip, userAgent,
	)
	return err
}

// ListAuditLogs returns recent audit logs with optional filters.
func (s *PostgresStore) ListAuditLogs(ctx context.Context, limit int, action, userID string) ([]domain.AuditLog, error) {
	query := `SELECT id, user_id, action, resource, resource_id, details, ip, user_agent, created_at
	          FROM audit_logs`
	args := []interface{}{}
	argIdx := 1
	conditions := []string{}

	if action != "" {
		conditions = append(conditions, fmt.Sprintf("action = $%d", argIdx))
		args = append(args, action)
		argIdx++
	}
	if userID != "" {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIdx))
		args = append(args, userID)
		argIdx++
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY created_at DESC"

	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.AuditLog
	for rows.Next() {
		var l domain.AuditLog
		if err := rows.Scan(
			&l.ID, &l.UserID, &l.Action, &l.Resource, &l.ResourceID,
			&l.Details, &l.IP, &l.UserAgent, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
