package profilestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/fatenhq/authcore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Postgres persists profiles and pre-registered accounts in PostgreSQL over
// the pgx stdlib driver. It implements both authcore.ProfileStore and
// authcore.PreRegistry.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens a connection pool for dsn and verifies it with a ping.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open profile store: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping profile store: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgresFromDB wraps an existing pool. The caller keeps ownership of
// the pool's lifecycle.
func NewPostgresFromDB(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// RunMigrations applies the embedded schema migrations.
func (p *Postgres) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, p.db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

const profileColumns = `id, email, full_name, role, status, avatar_url, verified,
	verification_code, code_expires_at, created_at, updated_at`

// SelectByID returns the profile row, or (nil, nil) when none exists.
func (p *Postgres) SelectByID(ctx context.Context, id string) (*authcore.Profile, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id)

	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	return profile, nil
}

// Insert creates the profile row and returns it with the database-assigned
// timestamps. A duplicate id surfaces as authcore.ErrProfileExists so the
// caller can resolve the creation race.
func (p *Postgres) Insert(ctx context.Context, row authcore.ProfileInsert) (*authcore.Profile, error) {
	inserted := p.db.QueryRowContext(ctx,
		`INSERT INTO profiles (id, email, full_name, role, status, verified)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+profileColumns,
		row.ID, row.Email, row.FullName, row.Role.String(), row.Status.String(), row.Verified)

	profile, err := scanProfile(inserted)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, fmt.Errorf("%w: %s", authcore.ErrProfileExists, row.ID)
		}
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	return profile, nil
}

// Update applies a partial patch. Matching zero rows is not an error; the
// write simply has no effect.
func (p *Postgres) Update(ctx context.Context, id string, patch authcore.ProfilePatch) error {
	sets := make([]string, 0, 5)
	args := make([]any, 0, 6)

	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}

	if patch.FullName != nil {
		add("full_name", *patch.FullName)
	}
	if patch.Status != nil {
		add("status", patch.Status.String())
	}
	if patch.Verified != nil {
		add("verified", *patch.Verified)
	}
	if patch.SetVerification {
		if patch.Verification != nil {
			add("verification_code", patch.Verification.Code)
			add("code_expires_at", patch.Verification.ExpiresAt)
		} else {
			add("verification_code", nil)
			add("code_expires_at", nil)
		}
	}

	sets = append(sets, "updated_at = now()")
	args = append(args, id)

	query := "UPDATE profiles SET " + strings.Join(sets, ", ") +
		" WHERE id = $" + strconv.Itoa(len(args))

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

/*
====================================
PRE-REGISTERED ACCOUNTS
====================================
*/

// LookupUnused returns the oldest unused pre-registration for email, or
// (nil, nil) when none exists.
func (p *Postgres) LookupUnused(ctx context.Context, email string) (*authcore.PreRegistration, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, email, full_name, role, is_used, created_at
		 FROM pre_registered_accounts
		 WHERE email = $1 AND is_used = FALSE
		 ORDER BY created_at
		 LIMIT 1`, email)

	var reg authcore.PreRegistration
	var roleText string
	err := row.Scan(&reg.ID, &reg.Email, &reg.FullName, &roleText, &reg.Used, &reg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select pre-registration: %w", err)
	}

	reg.Role, err = authcore.ParseRole(roleText)
	if err != nil {
		return nil, fmt.Errorf("select pre-registration: %w", err)
	}
	return &reg, nil
}

// MarkUsed consumes a pre-registration so it never applies twice.
func (p *Postgres) MarkUsed(ctx context.Context, id string) error {
	if _, err := p.db.ExecContext(ctx,
		`UPDATE pre_registered_accounts SET is_used = TRUE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("mark pre-registration used: %w", err)
	}
	return nil
}

/*
====================================
SCANNING
====================================
*/

type rowScanner interface {
	Scan(dest ...any) error
}

// scanProfile builds a Profile from a row, mapping the nullable code column
// pair onto the single optional VerificationCode value. Only a row carrying
// both columns yields a live code.
func scanProfile(row rowScanner) (*authcore.Profile, error) {
	var (
		profile   authcore.Profile
		roleText  string
		statText  string
		code      sql.NullString
		expiresAt sql.NullTime
		createdAt time.Time
		updatedAt time.Time
	)

	err := row.Scan(
		&profile.ID, &profile.Email, &profile.FullName,
		&roleText, &statText, &profile.AvatarURL, &profile.Verified,
		&code, &expiresAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if profile.Role, err = authcore.ParseRole(roleText); err != nil {
		return nil, err
	}
	if profile.Status, err = authcore.ParseStatus(statText); err != nil {
		return nil, err
	}

	if code.Valid && expiresAt.Valid {
		profile.Verification = &authcore.VerificationCode{
			Code:      code.String,
			ExpiresAt: expiresAt.Time,
		}
	}

	profile.CreatedAt = createdAt
	profile.UpdatedAt = updatedAt
	return &profile, nil
}
