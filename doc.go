// Package otpgate authenticates users through a two-phase, OTP-gated
// handshake and issues signed session tokens.
//
// Registration stages the registrant in Redis, mails a one-time code and
// creates the durable user only after the code is verified. Login checks the
// password, mails a login code and issues a session once that code is
// verified. Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// otpgate is the public surface. It exposes [Engine], [Builder], [Config] and
// the collaborator interfaces [UserDirectory] and [MailSender]. Challenge and
// staging storage, per-email locking and audit dispatch live under internal/
// and are never exported.
//
// # What this package must NOT do
//
//   - Log or return OTP codes, passwords or session tokens except to the
//     caller that owns them.
//   - Hold the per-email lock while sending mail.
//   - Import any sub-package that re-imports otpgate (no import cycles).
//
// # Consistency contract
//
// Issue, verify and promote are serialized per email inside one process.
// Across processes the challenge consume is a single Redis script and user
// uniqueness is enforced by the [UserDirectory].
package otpgate
