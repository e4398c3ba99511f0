package recon

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/analyzers"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/container"
)

const versionCheckTimeout = 10 * time.Second

// Exiftool appends the grouped metadata dump of the external exiftool
// binary. Its output is not interpreted.
type Exiftool struct {
	Path string

	once    sync.Once
	version string
}

func NewExiftool(path string) *Exiftool {
	if path == "" {
		path = DefaultExiftoolPath
	}
	return &Exiftool{Path: path}
}

func (*Exiftool) Name() string { return "exiftool" }

func (e *Exiftool) resolve() (string, error) {
	bin, err := exec.LookPath(e.Path)
	if err != nil {
		return "", err
	}
	// The version is cached for the process, so it must not inherit a
	// per-file deadline or cancellation.
	e.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), versionCheckTimeout)
		defer cancel()
		out, err := exec.CommandContext(ctx, bin, "-ver").Output()
		if err != nil {
			e.version = "unknown"
			return
		}
		e.version = strings.TrimSpace(string(out))
	})
	return bin, nil
}

func (e *Exiftool) Analyze(ctx context.Context, c *container.Container, r *analyzers.Report) error {
	bin, err := e.resolve()
	if err != nil {
		r.Add(e.Name(), models.SeverityInfo, "exiftool not found", "path", e.Path)
		return nil
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-G", "-S", c.Path())
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || stdout.Len() == 0 {
			return fmt.Errorf("exiftool failed: %w: %s", err, strings.TrimSpace(stderr.String()))
		}
	}

	dump := strings.TrimSpace(strings.ToValidUTF8(stdout.String(), ""))
	if dump == "" {
		return nil
	}
	r.Add(e.Name(), models.SeverityInfo,
		fmt.Sprintf("ExifTool raw metadata (version %s):\n%s", e.version, dump),
		"version", e.version)
	return nil
}
