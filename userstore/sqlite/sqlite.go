// Package sqlite is an otpgate.UserDirectory on SQLite, accessed through
// sqlx and the go-sqlite3 driver. The schema is applied with embedded goose
// migrations.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/otpgate"
	"github.com/MrEthical07/otpgate/userstore"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Store struct {
	db *sqlx.DB
}

// Open opens dsn with the sqlite3 driver and applies migrations. In-memory
// databases are pinned to a single connection so every query sees the same
// database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if strings.Contains(dsn, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	if err := Migrate(ctx, db.DB); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return &Store{db: db}, nil
}

func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

func (s *Store) Close() error {
	return s.db.Close()
}

type userRow struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	Name         string    `db:"name"`
	PasswordHash string    `db:"password_hash"`
	Headline     string    `db:"headline"`
	Bio          string    `db:"bio"`
	Skills       string    `db:"skills"`
	Location     string    `db:"location"`
	Verified     bool      `db:"verified"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (s *Store) Create(ctx context.Context, u *otpgate.User) error {
	skills, err := userstore.EncodeSkills(u.Profile.Skills)
	if err != nil {
		return err
	}

	row := userRow{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Headline:     u.Profile.Headline,
		Bio:          u.Profile.Bio,
		Skills:       skills,
		Location:     u.Profile.Location,
		Verified:     u.Verified,
		CreatedAt:    u.CreatedAt.UTC(),
		UpdatedAt:    u.UpdatedAt.UTC(),
	}

	_, err = s.db.NamedExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, headline, bio, skills, location, verified, created_at, updated_at)
		 VALUES (:id, :email, :name, :password_hash, :headline, :bio, :skills, :location, :verified, :created_at, :updated_at)`,
		row)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) &&
			(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
			return otpgate.ErrConflict
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*otpgate.User, error) {
	return s.findOne(ctx, `SELECT * FROM users WHERE email = ?`, email)
}

func (s *Store) FindByID(ctx context.Context, id string) (*otpgate.User, error) {
	return s.findOne(ctx, `SELECT * FROM users WHERE id = ?`, id)
}

func (s *Store) findOne(ctx context.Context, query string, arg string) (*otpgate.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, otpgate.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	skills, err := userstore.DecodeSkills(row.Skills)
	if err != nil {
		return nil, err
	}

	return &otpgate.User{
		ID:           row.ID,
		Email:        row.Email,
		Name:         row.Name,
		PasswordHash: row.PasswordHash,
		Profile: otpgate.Profile{
			Headline: row.Headline,
			Bio:      row.Bio,
			Skills:   skills,
			Location: row.Location,
		},
		Verified:  row.Verified,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}
