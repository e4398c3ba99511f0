package recon

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultFileTimeout  = 60 * time.Second
	DefaultMaxInnerSize = 250 << 20
	DefaultExiftoolPath = "exiftool"
)

// Config holds the scan-specific configuration.
type Config struct {
	Workers        int
	FileTimeout    time.Duration
	MaxInnerSize   int64
	DeepScan       bool
	Exclude        []string
	HeuristicsFile string
	ExiftoolPath   string
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Workers:      runtime.NumCPU(),
		FileTimeout:  DefaultFileTimeout,
		MaxInnerSize: DefaultMaxInnerSize,
		ExiftoolPath: DefaultExiftoolPath,
	}
}

// LoadConfig loads scan configuration from environment variables.
func LoadConfig() (*Config, error) {
	config := DefaultConfig()

	workersStr := os.Getenv("RECON_WORKERS")
	workers, err := strconv.Atoi(workersStr)
	if err != nil || workers <= 0 {
		logrus.Debugf("Invalid or missing RECON_WORKERS. Defaulting to %d workers.", config.Workers)
	} else {
		config.Workers = workers
	}

	timeoutStr := os.Getenv("RECON_FILE_TIMEOUT_SECONDS")
	timeout, err := strconv.Atoi(timeoutStr)
	if err != nil || timeout <= 0 {
		logrus.Debugf("Invalid or missing RECON_FILE_TIMEOUT_SECONDS. Defaulting to %s.", config.FileTimeout)
	} else {
		config.FileTimeout = time.Duration(timeout) * time.Second
	}

	sizeStr := os.Getenv("RECON_MAX_INNER_SIZE_MB")
	size, err := strconv.ParseInt(sizeStr, 10, 64)
	if err != nil || size <= 0 {
		logrus.Debugf("Invalid or missing RECON_MAX_INNER_SIZE_MB. Defaulting to %d MB.", config.MaxInnerSize>>20)
	} else {
		config.MaxInnerSize = size << 20
	}

	if deepStr := os.Getenv("RECON_DEEP_SCAN"); deepStr != "" {
		deep, err := strconv.ParseBool(deepStr)
		if err != nil {
			return nil, fmt.Errorf("invalid RECON_DEEP_SCAN value: %v", err)
		}
		config.DeepScan = deep
	}

	config.Exclude = parseExcludes(os.Getenv("RECON_EXCLUDE"))
	config.HeuristicsFile = os.Getenv("RECON_HEURISTICS_FILE")
	if path := os.Getenv("EXIFTOOL_PATH"); path != "" {
		config.ExiftoolPath = path
	}

	return config, nil
}

// parseExcludes splits a comma-separated list of wildcard patterns.
func parseExcludes(input string) []string {
	var patterns []string
	for _, p := range strings.Split(input, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}
