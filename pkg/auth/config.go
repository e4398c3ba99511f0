package auth

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	AuthTypeNone = "none"
	AuthTypeJWT  = "jwt"
)

// Config holds the API authentication settings.
type Config struct {
	AuthType              string
	JwtSecret             []byte
	AccessTokenExpiration time.Duration
	SecureCookie          bool
	CookieSameSite        http.SameSite
}

// Enabled reports whether requests must carry a bearer token.
func (c *Config) Enabled() bool {
	return c != nil && c.AuthType == AuthTypeJWT
}

// NewConfig initializes the authentication configuration from environment variables.
func NewConfig() (*Config, error) {
	authConfig := &Config{
		CookieSameSite: http.SameSiteLaxMode,
	}

	authConfig.AuthType = strings.ToLower(strings.TrimSpace(getEnv("AUTH_TYPE", AuthTypeNone)))
	switch authConfig.AuthType {
	case "", AuthTypeNone:
		authConfig.AuthType = AuthTypeNone
		return authConfig, nil
	case AuthTypeJWT:
	default:
		return nil, fmt.Errorf("unsupported AUTH_TYPE: %s", authConfig.AuthType)
	}

	jwtSecret, err := getEnvBytes("JWT_SECRET")
	if err != nil {
		return nil, fmt.Errorf("error loading JWT_SECRET: %w", err)
	}
	if len(jwtSecret) == 0 {
		return nil, ErrMissingSecret
	}
	authConfig.JwtSecret = jwtSecret

	authConfig.AccessTokenExpiration, err = parseDurationString(getEnv("ACCESS_TOKEN_EXPIRATION", "hours=12"))
	if err != nil {
		return nil, fmt.Errorf("error parsing ACCESS_TOKEN_EXPIRATION: %w", err)
	}
	if authConfig.AccessTokenExpiration <= 0 {
		return nil, fmt.Errorf("ACCESS_TOKEN_EXPIRATION must be positive")
	}

	authConfig.SecureCookie, err = strconv.ParseBool(getEnv("SECURE_COOKIE", "false"))
	if err != nil {
		return nil, fmt.Errorf("error parsing SECURE_COOKIE: %w", err)
	}

	authConfig.CookieSameSite, err = parseSameSite(getEnv("COOKIE_SAMESITE", "lax"))
	if err != nil {
		return nil, fmt.Errorf("error parsing COOKIE_SAMESITE: %w", err)
	}

	return authConfig, nil
}

// getEnv retrieves the value of the environment variable named by the key.
// It returns the value, or the defaultValue if the variable is not present.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvBytes retrieves the byte slice value of the environment variable named by the key.
// It returns the byte slice, or an error if the variable is not set.
func getEnvBytes(key string) ([]byte, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return nil, fmt.Errorf("environment variable %s not set", key)
	}
	return []byte(value), nil
}

// parseDurationString parses a duration string formatted as "minutes=1, hours=2, days=3, seconds=30"
func parseDurationString(s string) (time.Duration, error) {
	parts := strings.Split(s, ",")
	var totalDuration time.Duration

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		keyValue := strings.SplitN(part, "=", 2)
		if len(keyValue) != 2 {
			return 0, fmt.Errorf("invalid format for part: '%s'", part)
		}
		key := strings.ToLower(strings.TrimSpace(keyValue[0]))
		valueStr := strings.TrimSpace(keyValue[1])
		value, err := strconv.Atoi(valueStr)
		if err != nil {
			return 0, fmt.Errorf("invalid value for %s: '%s'", key, valueStr)
		}

		switch key {
		case "minutes":
			totalDuration += time.Duration(value) * time.Minute
		case "hours":
			totalDuration += time.Duration(value) * time.Hour
		case "days":
			totalDuration += time.Duration(value) * 24 * time.Hour
		case "seconds":
			totalDuration += time.Duration(value) * time.Second
		default:
			return 0, fmt.Errorf("unknown time unit: '%s'", key)
		}
	}

	return totalDuration, nil
}

func parseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(s) {
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return http.SameSiteDefaultMode, fmt.Errorf("invalid SameSite value: '%s'", s)
	}
}
