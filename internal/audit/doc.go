// Package audit dispatches auth handshake events asynchronously to a sink.
//
// # Components
//
//   - [Sink]: event consumers (channel, JSON lines, slog, no-op).
//   - [Dispatcher]: buffered relay with drop-if-full or block-if-full semantics.
//   - [Event]: one handshake outcome: type, user or email, purpose, client IP.
//
// The engine decides which events to emit. Events never carry OTP codes,
// passwords or session tokens.
package audit
