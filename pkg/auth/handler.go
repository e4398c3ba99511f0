package auth

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

// Handler holds the authentication handlers and dependencies.
type Handler struct {
	Config     *Config
	Database   Database
	Middleware *Middleware
	Logger     *logrus.Logger
}

// NewHandler initializes a new authentication handler.
func NewHandler(config *Config, db Database, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		Config:     config,
		Database:   db,
		Middleware: NewMiddleware(config, db, logger),
		Logger:     logger,
	}
}

// AuthMiddleware returns the authentication middleware, or a pass-through
// when authentication is disabled.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	if !h.Config.Enabled() {
		return next
	}
	return h.Middleware.AuthMiddleware(next)
}

// HandleStatus reports the caller's authentication status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if !h.Config.Enabled() {
		WriteSuccessResponse(w, "Authentication disabled", StatusResponse{
			Authenticated: false,
			AuthType:      AuthTypeNone,
			Message:       "Authentication is disabled",
		})
		return
	}

	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		WriteErrorResponse(w, "Failed to retrieve user information", http.StatusInternalServerError)
		return
	}

	user := UserInfo{}
	if sub, ok := claims["sub"].(string); ok {
		user.Sub = sub
	}
	if name, ok := claims["name"].(string); ok {
		user.Name = name
	}

	WriteSuccessResponse(w, "Authenticated", StatusResponse{
		Authenticated: true,
		AuthType:      h.Config.AuthType,
		User:          user,
	})
}

// HandleLogout revokes the caller's access token until it expires and
// clears the token cookie.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if !h.Config.Enabled() {
		WriteSuccessResponse(w, "Authentication disabled", nil)
		return
	}

	tokenString := extractToken(r)
	if tokenString != "" && h.Database != nil {
		if err := h.Database.AddBlacklistedToken(r.Context(), tokenString, getTokenExpiration(tokenString)); err != nil {
			h.Logger.WithError(err).Error("Failed to blacklist access token during logout")
			WriteErrorResponse(w, "Failed to logout", http.StatusInternalServerError)
			return
		}
	}

	clearAuthCookie(w, h.Config)
	WriteSuccessResponse(w, "Successfully logged out", nil)
}
