package auth

import "errors"

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token has expired")
	ErrMissingSecret = errors.New("JWT_SECRET must not be empty")
)
