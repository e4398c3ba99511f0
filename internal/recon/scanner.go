// Package recon drives the analyzers over batches of documents: discovery,
// hashing, nested archives, the bounded worker pool, per-file timeouts and
// duplicate tracking.
package recon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/metrics"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/analyzers"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/container"
	"github.com/Rasmus-Riis/OfficeRecon/internal/report"
)

// TagTimeout marks records whose analysis was abandoned.
const TagTimeout = "TIMEOUT"

// Store persists records as they are produced.
type Store interface {
	SaveRecord(ctx context.Context, record models.FileRecord) error
}

// Notifier is told about every finished record.
type Notifier interface {
	NotifyRecord(record models.FileRecord) bool
}

// PipelineFunc selects the analyzers for a family.
type PipelineFunc func(f container.Family, h analyzers.Heuristics) []analyzers.Stage

// ScannerConfig holds the settings and collaborators of a Scanner. Store,
// Notifier and Pipeline are optional.
type ScannerConfig struct {
	Config     *Config
	Heuristics analyzers.Heuristics
	Store      Store
	Notifier   Notifier
	Pipeline   PipelineFunc
	Logger     *logrus.Logger
}

// Scanner analyzes batches of documents.
type Scanner struct {
	config     *Config
	heuristics analyzers.Heuristics
	store      Store
	notifier   Notifier
	pipeline   PipelineFunc
	exiftool   *Exiftool
	logger     *logrus.Logger
	sem        *semaphore.Weighted
}

// NewScanner initializes a new Scanner.
func NewScanner(cfg ScannerConfig) *Scanner {
	config := cfg.Config
	if config == nil {
		config = DefaultConfig()
	}
	workers := config.Workers
	if workers <= 0 {
		workers = 1
	}
	pipeline := cfg.Pipeline
	if pipeline == nil {
		pipeline = analyzers.Pipeline
	}
	heuristics := cfg.Heuristics
	if heuristics == (analyzers.Heuristics{}) {
		heuristics = analyzers.DefaultHeuristics()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scanner{
		config:     config,
		heuristics: heuristics,
		store:      cfg.Store,
		notifier:   cfg.Notifier,
		pipeline:   pipeline,
		exiftool:   NewExiftool(config.ExiftoolPath),
		logger:     logger,
		sem:        semaphore.NewWeighted(int64(workers)),
	}
}

// Batch is the result of one scan run.
type Batch struct {
	RunID     string
	Records   []*models.FileRecord
	Relations []models.Relation
	Summary   models.BatchSummary
}

// job is one document to analyze: a file on disk or an entry of a zip input.
type job struct {
	source   string
	inner    string
	modified time.Time
}

func (j job) display() string {
	if j.inner == "" {
		return j.source
	}
	return CompositePath(j.source, j.inner)
}

func (j job) filename() string {
	if j.inner == "" {
		return filepath.Base(j.source)
	}
	return path.Base(strings.ReplaceAll(j.inner, "\\", "/"))
}

func jobFor(recordPath string) job {
	if archive, inner, ok := SplitCompositePath(recordPath); ok {
		return job{source: archive, inner: inner}
	}
	return job{source: recordPath}
}

// Scan discovers the documents under roots and analyzes them. Only an
// invalid root is returned as an error; every other failure ends up in the
// record of the file concerned.
func (s *Scanner) Scan(ctx context.Context, roots []string) (*Batch, error) {
	files, skipped, err := Discover(roots, s.config.Exclude, s.logger)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		metrics.SkippedEntries.WithLabelValues("discovery").Add(float64(skipped))
	}
	return s.run(ctx, files, skipped), nil
}

// ScanFiles analyzes an explicit list of files, skipping unsupported ones.
func (s *Scanner) ScanFiles(ctx context.Context, files []string) *Batch {
	var accepted []string
	skipped := 0
	for _, f := range files {
		if Accept(f, s.config.Exclude) {
			accepted = append(accepted, f)
		} else {
			skipped++
		}
	}
	return s.run(ctx, accepted, skipped)
}

func (s *Scanner) run(ctx context.Context, files []string, skipped int) *Batch {
	start := time.Now()
	metrics.ActiveScans.Inc()
	defer metrics.ActiveScans.Dec()

	batch := &Batch{RunID: uuid.NewString()}
	batch.Summary.RunID = batch.RunID
	batch.Summary.Skipped = skipped

	logger := s.logger.WithField("run_id", batch.RunID)
	logger.WithField("inputs", len(files)).Info("Starting batch scan")

	jobs, early := s.expand(files, batch)

	registry := NewRegistry()
	results := make([]*models.FileRecord, len(jobs))
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		retro []*models.FileRecord
	)

	finish := func(rec *models.FileRecord) {
		snapshot, flagged := registry.Register(rec)
		s.persist(ctx, snapshot)
		s.notify(snapshot)
		if len(flagged) > 0 {
			mu.Lock()
			retro = append(retro, flagged...)
			mu.Unlock()
		}
	}

	for _, rec := range early {
		finish(rec)
	}

	for i, j := range jobs {
		if ctx.Err() != nil {
			logger.Info("Batch scan cancelled; no further files scheduled")
			break
		}
		if err := s.sem.Acquire(ctx, 1); err != nil {
			logger.WithError(err).Info("Batch scan cancelled while waiting for a worker")
			break
		}

		wg.Add(1)
		go func(i int, j job) {
			defer wg.Done()
			defer s.sem.Release(1)
			rec := s.processJob(ctx, j, batch.RunID)
			results[i] = rec
			finish(rec)
		}(i, j)
	}
	wg.Wait()

	// Earlier records were stored before a later copy flagged them.
	for _, rec := range retro {
		s.persist(ctx, *rec)
	}

	batch.Records = append(batch.Records, early...)
	for _, rec := range results {
		if rec != nil {
			batch.Records = append(batch.Records, rec)
		}
	}
	batch.Relations = Genealogy(batch.Records)

	sum := &batch.Summary
	for _, rec := range batch.Records {
		sum.Processed++
		switch rec.Status {
		case models.StatusTimeout:
			sum.TimedOut++
		case models.StatusError:
			sum.Errors++
		case models.StatusLocked:
			sum.Locked++
		}
		if rec.Duplicate {
			sum.Duplicates++
		}
	}
	sum.Duration = time.Since(start)
	if sum.Duplicates > 0 {
		metrics.Duplicates.Add(float64(sum.Duplicates))
	}

	logger.WithFields(logrus.Fields{
		"processed":  sum.Processed,
		"skipped":    sum.Skipped,
		"timed_out":  sum.TimedOut,
		"errors":     sum.Errors,
		"locked":     sum.Locked,
		"duplicates": sum.Duplicates,
		"duration":   sum.Duration,
	}).Info("Batch scan complete")
	return batch
}

// expand turns the input files into jobs. Zip inputs contribute one job per
// document entry; an unreadable archive yields a locked record right away.
func (s *Scanner) expand(files []string, batch *Batch) ([]job, []*models.FileRecord) {
	var jobs []job
	var early []*models.FileRecord
	for _, f := range files {
		if !IsArchive(f) {
			jobs = append(jobs, job{source: f})
			continue
		}

		entries, oversized, err := ListArchive(f, s.config.MaxInnerSize)
		if err != nil {
			s.logger.WithError(err).WithField("path", f).Warn("Failed to read archive")
			rec := s.newRecord(job{source: f}, batch.RunID)
			rec.FSModified = container.FileModTime(f)
			if d, herr := HashFile(f); herr == nil {
				rec.Size, rec.MD5, rec.SHA256 = d.Size, d.MD5, d.SHA256
			}
			s.markLocked(rec, err)
			s.observe(rec, 0)
			early = append(early, rec)
			continue
		}
		if oversized > 0 {
			s.logger.WithFields(logrus.Fields{
				"path":    f,
				"skipped": oversized,
				"limit":   s.config.MaxInnerSize,
			}).Warn("Skipped oversized archive entries")
			metrics.SkippedEntries.WithLabelValues("oversize").Add(float64(oversized))
			batch.Summary.Skipped += oversized
		}
		if len(entries) == 0 && oversized == 0 {
			s.logger.WithField("path", f).Info("Archive holds no indexable documents")
			metrics.SkippedEntries.WithLabelValues("empty_archive").Inc()
			batch.Summary.Skipped++
			continue
		}
		for _, e := range entries {
			jobs = append(jobs, job{source: f, inner: e.Name, modified: e.Modified})
		}
	}
	return jobs, early
}

func (s *Scanner) newRecord(j job, runID string) *models.FileRecord {
	return &models.FileRecord{
		ID:        uuid.NewString(),
		RunID:     runID,
		Filename:  j.filename(),
		FullPath:  j.display(),
		Family:    container.Unknown.String(),
		Verdict:   models.VerdictUnknown,
		Status:    models.StatusOK,
		ScannedAt: time.Now().UTC(),
	}
}

// materialize returns a disk path for j and the function that removes any
// temporary copy.
func (s *Scanner) materialize(j job) (string, func(), error) {
	if j.inner == "" {
		return j.source, func() {}, nil
	}
	dir, err := os.MkdirTemp("", "officerecon-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	cleanup := func() { os.RemoveAll(dir) }
	p, err := extractEntry(j.source, j.inner, dir, s.config.MaxInnerSize)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	return p, cleanup, nil
}

// processJob hashes and analyzes one document.
func (s *Scanner) processJob(ctx context.Context, j job, runID string) *models.FileRecord {
	start := time.Now()
	rec := s.newRecord(j, runID)
	logger := s.logger.WithField("path", rec.FullPath)

	if j.inner != "" {
		rec.FSModified = j.modified
	} else {
		rec.FSModified = container.FileModTime(j.source)
	}

	diskPath, cleanup, err := s.materialize(j)
	if err != nil {
		logger.WithError(err).Warn("Failed to extract archive entry")
		s.markFailed(rec, err)
		s.observe(rec, time.Since(start))
		return rec
	}

	digest, err := HashFile(diskPath)
	if err != nil {
		cleanup()
		logger.WithError(err).Warn("Failed to hash file")
		s.markFailed(rec, err)
		s.observe(rec, time.Since(start))
		return rec
	}
	rec.Size, rec.MD5, rec.SHA256 = digest.Size, digest.MD5, digest.SHA256

	s.analyzeBounded(ctx, rec, diskPath, cleanup, s.config.DeepScan)
	s.observe(rec, time.Since(start))
	logger.WithFields(logrus.Fields{
		"verdict": rec.Verdict,
		"status":  rec.Status,
		"threats": strings.Join(rec.Threats, ","),
	}).Debug("File analyzed")
	return rec
}

type outcome struct {
	report      *analyzers.Report
	zipModified time.Time
	openErr     error
	deep        bool
}

// analyzeBounded runs the pipeline under the per-file timeout. The analysis
// goroutine owns the container and the temporary copy; when the timeout wins
// it finishes on its own and its result is discarded.
func (s *Scanner) analyzeBounded(ctx context.Context, rec *models.FileRecord, diskPath string, cleanup func(), deep bool) {
	var (
		fctx   context.Context
		cancel context.CancelFunc
	)
	if s.config.FileTimeout > 0 {
		fctx, cancel = context.WithTimeout(ctx, s.config.FileTimeout)
	} else {
		fctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer cleanup()
		done <- s.analyze(fctx, diskPath, deep)
	}()

	select {
	case out := <-done:
		s.apply(rec, out)
	case <-fctx.Done():
		if ctx.Err() != nil {
			s.markFailed(rec, fmt.Errorf("scan cancelled: %w", ctx.Err()))
			return
		}
		s.markTimedOut(rec)
	}
}

func (s *Scanner) analyze(ctx context.Context, diskPath string, deep bool) outcome {
	c, err := container.Open(diskPath)
	if err != nil {
		return outcome{openErr: err, deep: deep}
	}
	defer c.Close()

	stages := s.pipeline(c.Family(), s.heuristics)
	if deep {
		stages = append(stages, analyzers.Stage{Analyzer: s.exiftool, Deep: true})
	}
	rep := analyzers.Run(ctx, c, stages, deep, s.logger)
	return outcome{report: rep, zipModified: latestEntry(c), deep: deep}
}

func latestEntry(c *container.Container) time.Time {
	var latest time.Time
	for _, name := range c.Entries() {
		if t, ok := c.Modified(name); ok && t.After(latest) {
			latest = t
		}
	}
	return latest
}

// apply copies an analysis outcome onto rec. Identity fields and the
// duplicate flag are left alone.
func (s *Scanner) apply(rec *models.FileRecord, out outcome) {
	if out.openErr != nil {
		s.markLocked(rec, out.openErr)
		return
	}
	rep := out.report
	rec.Family = rep.Family.String()
	rec.Verdict = rep.Verdict
	rec.Status = models.StatusOK
	rec.Error = ""
	rec.Threats = nil
	for _, tag := range rep.Tags {
		rec.AddThreat(tag)
	}
	rec.LeakedIdentity = rep.LeakedIdentity
	rec.HiddenText = rep.HiddenSample
	rec.Findings = rep.Findings
	rec.Report = report.Text(rep.Findings)
	rec.Properties = nil
	if rep.Properties != nil {
		rec.Properties = rep.Properties.Map()
	}
	rec.SessionTokens = nil
	for _, sess := range rep.Sessions {
		rec.SessionTokens = append(rec.SessionTokens, sess.Token)
	}
	rec.ZipModified = out.zipModified
	rec.DeepScanCompleted = out.deep
	for _, f := range rep.Failures {
		metrics.AnalyzerFailures.WithLabelValues(f.Analyzer).Inc()
	}
}

func (s *Scanner) markLocked(rec *models.FileRecord, err error) {
	rec.Verdict = models.VerdictLocked
	rec.Status = models.StatusLocked
	rec.Error = err.Error()
	msg := "Container could not be opened (encrypted or corrupt)"
	if errors.Is(err, container.ErrNotAContainer) {
		msg = "File is not a valid document container (encrypted or corrupt)"
	}
	rec.Findings = []models.Finding{{
		Severity: models.SeverityDanger,
		Analyzer: "container",
		Message:  fmt.Sprintf("%s: %v", msg, err),
	}}
	rec.Report = report.Text(rec.Findings)
}

func (s *Scanner) markFailed(rec *models.FileRecord, err error) {
	rec.Verdict = models.VerdictUnknown
	rec.Status = models.StatusError
	rec.Error = err.Error()
	rec.Findings = []models.Finding{{
		Severity: models.SeverityWarning,
		Analyzer: "scanner",
		Message:  fmt.Sprintf("File could not be analyzed: %v", err),
	}}
	rec.Report = report.Text(rec.Findings)
}

// markTimedOut discards any partial findings.
func (s *Scanner) markTimedOut(rec *models.FileRecord) {
	rec.Verdict = models.VerdictUnknown
	rec.Status = models.StatusTimeout
	rec.Threats = nil
	rec.AddThreat(TagTimeout)
	rec.Error = fmt.Sprintf("analysis exceeded %s", s.config.FileTimeout)
	rec.Findings = []models.Finding{{
		Severity: models.SeverityWarning,
		Analyzer: "scanner",
		Message:  fmt.Sprintf("Analysis abandoned after %s", s.config.FileTimeout),
		Tag:      TagTimeout,
	}}
	rec.Report = report.Text(rec.Findings)
	rec.DeepScanCompleted = false
}

func (s *Scanner) observe(rec *models.FileRecord, d time.Duration) {
	metrics.FilesScanned.WithLabelValues(rec.Family, string(rec.Status)).Inc()
	metrics.Verdicts.WithLabelValues(string(rec.Verdict)).Inc()
	for _, tag := range rec.Threats {
		metrics.ThreatTags.WithLabelValues(tag).Inc()
	}
	metrics.FileDuration.WithLabelValues(rec.Family).Observe(d.Seconds())
}

func (s *Scanner) persist(ctx context.Context, rec models.FileRecord) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveRecord(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.WithError(err).WithField("path", rec.FullPath).Error("Failed to store record")
	}
}

func (s *Scanner) notify(rec models.FileRecord) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyRecord(rec)
}

// CompleteDeepScans re-runs the full pipeline, deep analyzers included, for
// every analyzed record that has not been deep scanned. Archive entries are
// extracted again from their composite path. A record whose deep pass fails
// keeps its earlier results. It returns the number of records completed.
func (s *Scanner) CompleteDeepScans(ctx context.Context, records []*models.FileRecord) int {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
	)
	for _, rec := range records {
		if rec.DeepScanCompleted || rec.Status != models.StatusOK {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		if err := s.sem.Acquire(ctx, 1); err != nil {
			break
		}

		wg.Add(1)
		go func(rec *models.FileRecord) {
			defer wg.Done()
			defer s.sem.Release(1)

			logger := s.logger.WithField("path", rec.FullPath)
			diskPath, cleanup, err := s.materialize(jobFor(rec.FullPath))
			if err != nil {
				logger.WithError(err).Warn("Deep scan could not reach the file")
				return
			}
			updated := *rec
			s.analyzeBounded(ctx, &updated, diskPath, cleanup, true)
			if !updated.DeepScanCompleted {
				logger.WithField("status", updated.Status).Warn("Deep scan did not complete")
				return
			}
			*rec = updated
			s.persist(ctx, updated)
			mu.Lock()
			completed++
			mu.Unlock()
		}(rec)
	}
	wg.Wait()
	return completed
}
