// Package httpapi is the JSON HTTP surface of otpgate: registration, login,
// OTP confirmation and resend, logout and the current-user endpoint.
//
// Handlers decode and validate the request envelope, call the engine and map
// its errors to status codes in one place (errors.go). Session tokens travel
// only in the HttpOnly session cookie.
package httpapi
