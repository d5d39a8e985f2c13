package services

import "errors"

// Service-level error categories. Handlers map these onto HTTP status
// codes with errors.Is; everything else is treated as a server error.
var (
	ErrInvalid      = errors.New("invalid input")
	ErrUnauthorized = errors.New("invalid credentials")
	ErrForbidden    = errors.New("not authorized")
	ErrNotFound     = errors.New("not found")
)
