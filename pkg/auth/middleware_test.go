package auth

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	testLogger := logrus.New()
	testLogger.SetOutput(&bytes.Buffer{}) // Discard output during tests
	testLogger.SetLevel(logrus.DebugLevel)
	return testLogger
}

// Helper function to create a new Middleware with a mock database
func newTestMiddleware() *Middleware {
	config := &Config{
		AuthType:  AuthTypeJWT,
		JwtSecret: []byte("testsecret"),
	}
	return NewMiddleware(config, NewMockDatabase(), quietLogger())
}

func signed(t *testing.T, m *Middleware, claims jwt.MapClaims) string {
	t.Helper()
	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.Config.JwtSecret)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return tokenString
}

func TestAuthMiddlewareValidToken(t *testing.T) {
	middleware := newTestMiddleware()
	tokenString := signed(t, middleware, jwt.MapClaims{
		"sub": "user123",
		"exp": time.Now().Add(15 * time.Minute).Unix(),
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	w := httptest.NewRecorder()

	nextHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || claims["sub"] != "user123" {
			t.Errorf("user claims not found in context")
		}
		w.WriteHeader(http.StatusOK)
	})

	middleware.AuthMiddleware(nextHandler).ServeHTTP(w, req)

	resp := w.Result()
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", resp.StatusCode)
	}
}

func TestAuthMiddlewareCookieToken(t *testing.T) {
	middleware := newTestMiddleware()
	tokenString := signed(t, middleware, jwt.MapClaims{
		"sub": "user123",
		"exp": time.Now().Add(15 * time.Minute).Unix(),
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.AddCookie(&http.Cookie{Name: accessTokenCookie, Value: tokenString})
	w := httptest.NewRecorder()

	middleware.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestAuthMiddlewareRejects(t *testing.T) {
	middleware := newTestMiddleware()
	other := &Middleware{Config: &Config{JwtSecret: []byte("othersecret")}}

	tests := []struct {
		name   string
		header string
	}{
		{"no token", ""},
		{"malformed", "Bearer invalidtoken"},
		{"expired", "Bearer " + signed(t, middleware, jwt.MapClaims{
			"sub": "user123",
			"exp": time.Now().Add(-15 * time.Minute).Unix(),
		})},
		{"no expiration", "Bearer " + signed(t, middleware, jwt.MapClaims{"sub": "user123"})},
		{"wrong secret", "Bearer " + signed(t, other, jwt.MapClaims{
			"sub": "user123",
			"exp": time.Now().Add(15 * time.Minute).Unix(),
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			middleware.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Error("handler should not be called")
			})).ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("expected status 401, got %d", w.Code)
			}
		})
	}
}

func TestAuthMiddlewareBlacklistedToken(t *testing.T) {
	middleware := newTestMiddleware()
	tokenString := signed(t, middleware, jwt.MapClaims{
		"sub": "user123",
		"exp": time.Now().Add(15 * time.Minute).Unix(),
	})
	middleware.Database.(*MockDatabase).BlacklistedTokens[tokenString] = time.Now().Add(time.Hour).Unix()

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tokenString)
	w := httptest.NewRecorder()

	middleware.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called with a revoked token")
	})).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", w.Code)
	}
}
