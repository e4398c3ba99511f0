package auth

import "context"

// Database defines the token revocation store needed by the auth package.
type Database interface {
	AddBlacklistedToken(ctx context.Context, token string, expiresAt int64) error
	IsTokenBlacklisted(ctx context.Context, token string) (bool, error)
}
