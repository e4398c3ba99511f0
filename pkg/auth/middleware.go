package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

type contextKey string

// UserContextKey holds the validated jwt.MapClaims of the caller.
const UserContextKey contextKey = "user"

// ClaimsFromContext returns the claims attached by AuthMiddleware.
func ClaimsFromContext(ctx context.Context) (jwt.MapClaims, bool) {
	claims, ok := ctx.Value(UserContextKey).(jwt.MapClaims)
	return claims, ok && claims != nil
}

// Middleware handles authentication for incoming HTTP requests.
type Middleware struct {
	Config   *Config
	Database Database
	Logger   *logrus.Logger
}

// NewMiddleware initializes a new authentication middleware.
func NewMiddleware(config *Config, db Database, logger *logrus.Logger) *Middleware {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Middleware{
		Config:   config,
		Database: db,
		Logger:   logger,
	}
}

// AuthMiddleware is the HTTP middleware for authentication.
func (m *Middleware) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := m.Logger.WithFields(logrus.Fields{
			"client_ip": getClientIP(r),
			"path":      r.URL.Path,
		})

		tokenString := extractToken(r)
		if tokenString == "" {
			logger.Warn("Authorization token not found")
			WriteErrorResponse(w, "Authorization token not found", http.StatusUnauthorized)
			return
		}

		if m.Database != nil {
			blacklisted, err := m.Database.IsTokenBlacklisted(r.Context(), tokenString)
			if err != nil {
				logger.WithError(err).Error("Failed to check token blacklist")
				WriteErrorResponse(w, "Internal server error", http.StatusInternalServerError)
				return
			}
			if blacklisted {
				logger.Warn("Token has been revoked")
				WriteErrorResponse(w, "Token has been revoked", http.StatusUnauthorized)
				return
			}
		}

		claims, err := parseJWT(tokenString, m.Config.JwtSecret)
		if err != nil {
			logger.WithError(err).Warn("Invalid token")
			msg := "Invalid token"
			if errors.Is(err, ErrTokenExpired) {
				msg = "Token has expired"
			}
			WriteErrorResponse(w, msg, http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
