// Package userstore holds otpgate.UserDirectory implementations.
//
//   - memory: process-local, for development and tests.
//   - postgres: database/sql over the pgx driver, goose migrations.
//   - sqlite: sqlx over go-sqlite3, goose migrations.
//   - mongo: the official MongoDB driver with a unique email index.
//
// Every implementation stores emails as given (the engine normalizes them)
// and rejects a second user with the same email with otpgate.ErrConflict.
package userstore
