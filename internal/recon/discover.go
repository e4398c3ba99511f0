package recon

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/sirupsen/logrus"
)

// ErrInvalidRoot is returned when an input path cannot be used at all.
var ErrInvalidRoot = errors.New("invalid input path")

var documentExtensions = map[string]bool{
	".docx": true, ".docm": true, ".dotx": true, ".dotm": true,
	".xlsx": true, ".xlsm": true, ".xltx": true, ".xltm": true,
	".pptx": true, ".pptm": true, ".potx": true, ".potm": true,
	".ppsx": true, ".ppsm": true,
	".odt": true, ".ods": true, ".odp": true,
	".ott": true, ".ots": true, ".otp": true,
}

// IsDocument reports whether name carries a supported document extension.
func IsDocument(name string) bool {
	return documentExtensions[strings.ToLower(filepath.Ext(name))]
}

// IsArchive reports whether name is a zip of documents.
func IsArchive(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".zip")
}

// isLockFile matches the owner files Office leaves next to open documents.
func isLockFile(name string) bool {
	return strings.HasPrefix(filepath.Base(name), "~$")
}

// Excluded reports whether path matches one of the wildcard patterns, either
// by base name or by its slash-separated full path.
func Excluded(path string, patterns []string) bool {
	base := filepath.Base(path)
	slashed := filepath.ToSlash(path)
	for _, p := range patterns {
		if wildcard.Match(p, base) || wildcard.Match(p, slashed) {
			return true
		}
	}
	return false
}

// Accept reports whether a single file is a scan candidate.
func Accept(path string, exclude []string) bool {
	if isLockFile(path) || Excluded(path, exclude) {
		return false
	}
	return IsDocument(path) || IsArchive(path)
}

// Discover expands roots into the sorted list of candidate files. Directories
// are walked recursively. Unreadable subtrees are logged and counted as
// skipped; only a root that does not exist is a hard error.
func Discover(roots []string, exclude []string, logger *logrus.Logger) ([]string, int, error) {
	if len(roots) == 0 {
		return nil, 0, fmt.Errorf("%w: no input paths given", ErrInvalidRoot)
	}

	seen := make(map[string]bool)
	var files []string
	skipped := 0
	add := func(path string) {
		if seen[path] {
			return
		}
		seen[path] = true
		files = append(files, path)
	}

	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, skipped, fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
		}
		if !info.IsDir() {
			if Accept(root, exclude) {
				add(root)
			} else {
				skipped++
				logger.WithField("path", root).Debug("Skipping unsupported file")
			}
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				logger.WithError(err).WithField("path", path).Warn("Failed to read directory entry")
				skipped++
				if d != nil && d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path != root && Excluded(path, exclude) {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if Accept(path, exclude) {
				add(path)
			} else if IsDocument(path) || IsArchive(path) {
				skipped++
			}
			return nil
		})
		if err != nil {
			return nil, skipped, fmt.Errorf("failed to walk %s: %w", root, err)
		}
	}

	sort.Strings(files)
	return files, skipped, nil
}
