// Package middleware exposes the HTTP session guard built on top of
// otpgate.Engine validation.
//
// # Guards
//
//   - [Guard]: reads the session cookie (or a Bearer header), calls
//     ValidateSession and injects the user into the request context.
//
// Handlers behind the guard read the user with [UserFromContext].
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; every decision is delegated to
// Engine.ValidateSession.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly (delegates to Engine).
//   - Tell the client why a token was rejected.
package middleware
