// Package password hashes and verifies user passwords with argon2id.
//
// Hashes use the PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Length policy lives here too: at least [MinPasswordBytes] and at most the
// configured maximum, counted in raw bytes.
package password
