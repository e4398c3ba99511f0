package recon

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

const DefaultDebounce = 2 * time.Second

// Watcher scans documents as they appear or change under a set of
// directories. Events are debounced so a file still being copied is scanned
// once, after writes settle.
type Watcher struct {
	scanner  *Scanner
	roots    []string
	debounce time.Duration
	onBatch  func(*Batch)
	logger   *logrus.Logger
}

// NewWatcher returns a watcher over roots. onBatch receives every finished
// batch and may be nil.
func NewWatcher(scanner *Scanner, roots []string, debounce time.Duration, onBatch func(*Batch), logger *logrus.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Watcher{
		scanner:  scanner,
		roots:    roots,
		debounce: debounce,
		onBatch:  onBatch,
		logger:   logger,
	}
}

// addTree watches dir and every non-excluded directory below it.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.WithError(err).WithField("path", path).Warn("Failed to read directory")
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && Excluded(path, w.scanner.config.Exclude) {
			return filepath.SkipDir
		}
		if err := fw.Add(path); err != nil {
			w.logger.WithError(err).WithField("path", path).Warn("Failed to watch directory")
		}
		return nil
	})
}

// watchNewDir extends the watch to a directory created below a root.
func (w *Watcher) watchNewDir(fw *fsnotify.Watcher, dir string) {
	if Excluded(dir, w.scanner.config.Exclude) {
		return
	}
	if err := w.addTree(fw, dir); err != nil {
		w.logger.WithError(err).WithField("path", dir).Warn("Failed to watch new directory")
	}
}

// Run blocks until ctx is cancelled. Each root must be a directory.
func (w *Watcher) Run(ctx context.Context) error {
	for _, root := range w.roots {
		info, err := os.Stat(root)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidRoot, root, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, root)
		}
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fw.Close()

	for _, root := range w.roots {
		if err := w.addTree(fw, root); err != nil {
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
	}
	w.logger.WithField("roots", w.roots).Info("Watching for new documents")

	pending := make(map[string]bool)
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Watch stopped due to context cancellation")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					w.watchNewDir(fw, event.Name)
					continue
				}
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !Accept(event.Name, w.scanner.config.Exclude) {
				continue
			}
			pending[event.Name] = true
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(w.debounce)
			fire = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Error("Watcher error")

		case <-fire:
			fire = nil
			files := make([]string, 0, len(pending))
			for f := range pending {
				if _, err := os.Stat(f); err == nil {
					files = append(files, f)
				}
			}
			pending = make(map[string]bool)
			if len(files) == 0 {
				continue
			}
			sort.Strings(files)
			w.logger.WithField("files", len(files)).Info("Detected document changes")
			batch := w.scanner.ScanFiles(ctx, files)
			if w.onBatch != nil {
				w.onBatch(batch)
			}
		}
	}
}
