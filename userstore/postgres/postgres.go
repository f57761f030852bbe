// Package postgres is an otpgate.UserDirectory on PostgreSQL. It talks to the
// database through database/sql with the pgx driver and owns its schema via
// embedded goose migrations.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/userstore"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const uniqueViolation = "23505"

// DBTX is the subset of database/sql used by the store.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db DBTX
}

func New(db DBTX) *Store {
	return &Store{db: db}
}

// Open connects to dsn, applies migrations and returns the store with its
// connection pool. The caller closes the pool.
func Open(ctx context.Context, dsn string) (*Store, *sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("db ping error: %w", err)
	}
	if err := Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("migration error: %w", err)
	}
	return New(db), db, nil
}

func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

const userColumns = `id, email, name, password_hash, headline, bio, skills, location, verified, created_at, updated_at`

func (s *Store) Create(ctx context.Context, u *otpgate.User) error {
	skills, err := userstore.EncodeSkills(u.Profile.Skills)
	if err != nil {
		return err
	}

	query :=
		`INSERT INTO users (` + userColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 `

	_, err = s.db.ExecContext(ctx, query,
		u.ID, u.Email, u.Name, u.PasswordHash,
		u.Profile.Headline, u.Profile.Bio, skills, u.Profile.Location,
		u.Verified, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return otpgate.ErrConflict
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*otpgate.User, error) {
	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE email = $1
		 `
	return s.scanOne(s.db.QueryRowContext(ctx, query, email))
}

func (s *Store) FindByID(ctx context.Context, id string) (*otpgate.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, otpgate.ErrUserNotFound
	}

	query :=
		`SELECT ` + userColumns + ` FROM users
		 WHERE id = $1
		 `
	return s.scanOne(s.db.QueryRowContext(ctx, query, id))
}

func (s *Store) scanOne(row *sql.Row) (*otpgate.User, error) {
	var (
		u      otpgate.User
		skills string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash,
		&u.Profile.Headline, &u.Profile.Bio, &skills, &u.Profile.Location,
		&u.Verified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, otpgate.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	u.Profile.Skills, err = userstore.DecodeSkills(skills)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
