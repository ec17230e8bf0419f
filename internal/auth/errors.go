package auth

import "errors"

// Sentinel errors for the credential flow. Handlers map these onto the HTTP
// error taxonomy; everything else from this package is a backend failure.
var (
	ErrMissingCredential = errors.New("auth: no credential presented")
	ErrInvalidKey        = errors.New("auth: invalid api key")
	ErrInvalidToken      = errors.New("auth: invalid token")
	ErrTokenExpired      = errors.New("auth: token expired")
	ErrAdminForbidden    = errors.New("auth: admin secret mismatch")
)
