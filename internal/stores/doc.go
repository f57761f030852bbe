// Package stores provides Redis-backed, short-lived records for the OTP
// handshake: the outstanding challenge per (purpose, email) and the staged
// registrant per email.
//
// # Design
//
// Challenges are versioned, fixed-size binary records. Consume runs as a
// single Lua script (GET, expiry check, hash compare, attempt count, DEL) so
// concurrent verifiers across processes observe one outcome. A successful
// consume deletes the record. Staged registrants are JSON with a TTL.
//
// # What this package must NOT do
//
//   - Import otpgate or any sibling internal package.
//   - Store or log plaintext OTP codes or passwords.
//   - Use non-constant-time comparisons for secret matching.
package stores
