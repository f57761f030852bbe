// Package jwt issues and verifies stateless session tokens (HS256 or Ed25519)
// carrying the user id, issue and expiry times, issuer and a random token id.
package jwt
