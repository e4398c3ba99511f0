package webserver

import (
	"os"
	"path/filepath"
	"strings"
)

// WebserverConfig holds the configuration for the webserver.
type WebserverConfig struct {
	ListenTo           string
	CorsAllowedOrigins []string
	// ScanAllowedRoots bounds the paths POST /api/scans may read. Empty
	// disables remote scan requests.
	ScanAllowedRoots []string
	StaticDir        string
}

// NewWebserverConfig initializes the webserver configuration from environment variables.
func NewWebserverConfig() (*WebserverConfig, error) {
	config := &WebserverConfig{}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	config.ListenTo = ":" + port

	config.CorsAllowedOrigins = splitList(os.Getenv("CORS_ALLOWED_ORIGINS"))

	for _, root := range splitList(os.Getenv("SCAN_ALLOWED_ROOTS")) {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}
		config.ScanAllowedRoots = append(config.ScanAllowedRoots, filepath.Clean(abs))
	}

	config.StaticDir = os.Getenv("STATIC_DIR")

	return config, nil
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// allowedPath reports whether p lies inside one of roots.
func allowedPath(p string, roots []string) bool {
	abs, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	abs = filepath.Clean(abs)
	for _, root := range roots {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}
