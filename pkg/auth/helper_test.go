package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestIssueToken(t *testing.T) {
	config := &Config{
		JwtSecret:             []byte("testsecret"),
		AccessTokenExpiration: 15 * time.Minute,
	}

	tokens, err := IssueToken(config, "user123", "John Doe")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if tokens.AccessToken == "" || tokens.TokenType != "Bearer" {
		t.Errorf("unexpected token response: %+v", tokens)
	}
	if tokens.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Errorf("unexpected expires_in: %d", tokens.ExpiresIn)
	}

	claims, err := parseJWT(tokens.AccessToken, config.JwtSecret)
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if claims["sub"] != "user123" || claims["name"] != "John Doe" {
		t.Errorf("unexpected claims: %v", claims)
	}

	exp := getTokenExpiration(tokens.AccessToken)
	if d := time.Until(time.Unix(exp, 0)); d < 14*time.Minute || d > 16*time.Minute {
		t.Errorf("unexpected expiration in %s", d)
	}
}

func TestIssueTokenErrors(t *testing.T) {
	if _, err := IssueToken(&Config{}, "user123", ""); !errors.Is(err, ErrMissingSecret) {
		t.Errorf("expected ErrMissingSecret, got %v", err)
	}
	if _, err := IssueToken(&Config{JwtSecret: []byte("s")}, "", ""); err == nil {
		t.Errorf("expected error for empty subject")
	}
}

func TestParseJWTExpired(t *testing.T) {
	config := &Config{
		JwtSecret:             []byte("testsecret"),
		AccessTokenExpiration: -time.Minute,
	}
	tokens, err := IssueToken(config, "user123", "")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	if _, err := parseJWT(tokens.AccessToken, config.JwtSecret); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}
}

func TestGetTokenExpirationGarbage(t *testing.T) {
	now := time.Now().Unix()
	if exp := getTokenExpiration("not-a-token"); exp < now {
		t.Errorf("expected current time for garbage token, got %d", exp)
	}
}

func TestExtractToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "bearer abc")
	if got := extractToken(req); got != "abc" {
		t.Errorf("expected abc, got %q", got)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: accessTokenCookie, Value: "cookie-token"})
	if got := extractToken(req); got != "cookie-token" {
		t.Errorf("expected cookie-token, got %q", got)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	if got := extractToken(req); got != "" {
		t.Errorf("expected no token, got %q", got)
	}
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "10.0.0.5:4321"
	if ip := getClientIP(req); ip != "10.0.0.5" {
		t.Errorf("expected 10.0.0.5, got %s", ip)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if ip := getClientIP(req); ip != "203.0.113.9" {
		t.Errorf("expected 203.0.113.9, got %s", ip)
	}
}

func TestWriteErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorResponse(w, "Record not found", http.StatusNotFound)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("unexpected content type %q", ct)
	}
	resp := decodeResp(t, w)
	if resp.Status != "error" || resp.Message != "Record not found" {
		t.Errorf("unexpected response: %+v", resp)
	}
}
