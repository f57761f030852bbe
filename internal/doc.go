// Package internal contains helpers that are private to otpgate: OTP
// generation and keyed hashing.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - keylock: per-email in-process serialization
//   - logging: slog-backed structured logger
//   - stores: Redis-backed challenge and staging records
//
// # What this package must NOT do
//
//   - Export types that appear in the public otpgate API.
//   - Be imported by any package outside the otpgate module.
package internal
