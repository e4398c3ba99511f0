package recon

import (
	"bytes"
	"context"
	"crypto/rand"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/analyzers"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/container"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/testdocs"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return logger
}

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.Workers = 3
	cfg.FileTimeout = 10 * time.Second
	cfg.ExiftoolPath = "/nonexistent/exiftool"
	return cfg
}

type fakeStore struct {
	mu    sync.Mutex
	saves int
	byID  map[string]models.FileRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: make(map[string]models.FileRecord)}
}

func (f *fakeStore) SaveRecord(ctx context.Context, rec models.FileRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	f.byID[rec.ID] = rec
	return nil
}

func (f *fakeStore) get(id string) models.FileRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byID[id]
}

type fakeNotifier struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeNotifier) NotifyRecord(rec models.FileRecord) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, rec.FullPath)
	return true
}

// memo returns a small word document whose body text makes its bytes unique.
func memo(text string) testdocs.Parts {
	parts := testdocs.DOCX(
		testdocs.Paragraph("00A1B2C3", text) +
			testdocs.Paragraph("00D4E5F6", "second paragraph"))
	parts["word/settings.xml"] = testdocs.Settings([]string{"00A1B2C3", "00D4E5F6", "00778899"}, "")
	parts["docProps/core.xml"] = testdocs.Core("Alice", "Bob", "2024-01-01T10:00:00Z", "2024-01-02T10:00:00Z")
	return parts
}

func byPath(records []*models.FileRecord) map[string]*models.FileRecord {
	out := make(map[string]*models.FileRecord, len(records))
	for _, r := range records {
		out[r.FullPath] = r
	}
	return out
}

func TestScanTwoOfFiveDuplicates(t *testing.T) {
	dir := t.TempDir()
	orig := testdocs.Write(t, dir, "a.docx", memo("shared text"))
	copied := testdocs.Write(t, dir, "copy of a.docx", memo("shared text"))
	for _, name := range []string{"c.docx", "d.docx", "e.docx"} {
		testdocs.Write(t, dir, name, memo("unique "+name))
	}

	store := newFakeStore()
	s := NewScanner(ScannerConfig{Config: testConfig(), Store: store, Logger: quietLogger()})
	batch, err := s.Scan(context.Background(), []string{dir})
	require.NoError(t, err)
	require.Len(t, batch.Records, 5)

	var dups []string
	for _, rec := range batch.Records {
		if rec.Duplicate {
			dups = append(dups, rec.FullPath)
		}
		assert.True(t, store.get(rec.ID).Duplicate == rec.Duplicate, "stored copy of %s is current", rec.FullPath)
	}
	sort.Strings(dups)
	assert.Equal(t, []string{orig, copied}, dups)
	assert.Equal(t, 5, batch.Summary.Processed)
	assert.Equal(t, 2, batch.Summary.Duplicates)

	recs := byPath(batch.Records)
	assert.Equal(t, recs[orig].SHA256, recs[copied].SHA256)
}

func TestScanRecordFields(t *testing.T) {
	dir := t.TempDir()
	path := testdocs.Write(t, dir, "memo.docx", memo("hello"))

	notifier := &fakeNotifier{}
	s := NewScanner(ScannerConfig{Config: testConfig(), Notifier: notifier, Logger: quietLogger()})
	batch, err := s.Scan(context.Background(), []string{path})
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)

	rec := batch.Records[0]
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, batch.RunID, rec.RunID)
	assert.Equal(t, "memo.docx", rec.Filename)
	assert.Equal(t, "DOCX", rec.Family)
	assert.Equal(t, models.StatusOK, rec.Status)
	assert.Equal(t, models.VerdictOrganic, rec.Verdict)
	assert.Len(t, rec.MD5, 32)
	assert.Len(t, rec.SHA256, 64)
	assert.Positive(t, rec.Size)
	assert.Equal(t, "Alice", rec.Properties["creator"])
	assert.Equal(t, []string{"00A1B2C3", "00D4E5F6", "00778899"}, rec.SessionTokens)
	assert.NotEmpty(t, rec.Report)
	assert.False(t, rec.DeepScanCompleted)
	assert.False(t, rec.FSModified.IsZero())
	assert.Equal(t, []string{path}, notifier.paths)
}

func TestScanLockedFile(t *testing.T) {
	dir := t.TempDir()
	path := testdocs.WriteRaw(t, dir, "encrypted.docx", []byte("\xd0\xcf\x11\xe0 not a zip at all"))

	s := NewScanner(ScannerConfig{Config: testConfig(), Logger: quietLogger()})
	batch, err := s.Scan(context.Background(), []string{dir})
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)

	rec := batch.Records[0]
	assert.Equal(t, path, rec.FullPath)
	assert.Equal(t, models.VerdictLocked, rec.Verdict)
	assert.Equal(t, models.StatusLocked, rec.Status)
	assert.NotEmpty(t, rec.SHA256, "hash is taken before parsing")
	assert.NotEmpty(t, rec.Error)
	assert.Contains(t, rec.Report, "[ALERT]")
	assert.Equal(t, 1, batch.Summary.Locked)
}

type blockingAnalyzer struct {
	release chan struct{}
}

func (blockingAnalyzer) Name() string { return "blocking" }

func (b blockingAnalyzer) Analyze(ctx context.Context, c *container.Container, r *analyzers.Report) error {
	r.Add("blocking", models.SeverityDanger, "partial finding")
	select {
	case <-b.release:
	case <-time.After(5 * time.Second):
	}
	return nil
}

func TestScanTimeoutBound(t *testing.T) {
	dir := t.TempDir()
	testdocs.Write(t, dir, "slow1.docx", memo("one"))
	testdocs.Write(t, dir, "slow2.docx", memo("two"))

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	cfg := testConfig()
	cfg.Workers = 1
	cfg.FileTimeout = 100 * time.Millisecond
	s := NewScanner(ScannerConfig{
		Config: cfg,
		Logger: quietLogger(),
		Pipeline: func(container.Family, analyzers.Heuristics) []analyzers.Stage {
			return []analyzers.Stage{{Analyzer: blockingAnalyzer{release: release}}}
		},
	})

	start := time.Now()
	batch, err := s.Scan(context.Background(), []string{dir})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second, "a hung file must not stall the batch")

	require.Len(t, batch.Records, 2)
	for _, rec := range batch.Records {
		assert.Equal(t, models.StatusTimeout, rec.Status)
		assert.Equal(t, models.VerdictUnknown, rec.Verdict)
		assert.Equal(t, []string{TagTimeout}, rec.Threats)
		assert.NotContains(t, rec.Report, "partial finding")
		assert.NotEmpty(t, rec.SHA256)
	}
	assert.Equal(t, 2, batch.Summary.TimedOut)
}

func TestScanArchive(t *testing.T) {
	dir := t.TempDir()
	noise := make([]byte, 8192)
	_, err := rand.Read(noise)
	require.NoError(t, err)

	inner := testdocs.Zip(t, memo("inside the bundle"))
	archive := testdocs.Write(t, dir, "bundle.zip", testdocs.Parts{
		"docs/memo.docx": string(inner),
		"docs/huge.docx": string(noise),
		"readme.txt":     "not a document",
	})

	cfg := testConfig()
	cfg.MaxInnerSize = 4096
	require.Less(t, len(inner), 4096)

	store := newFakeStore()
	s := NewScanner(ScannerConfig{Config: cfg, Store: store, Logger: quietLogger()})
	batch, err := s.Scan(context.Background(), []string{dir})
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)

	rec := batch.Records[0]
	assert.Equal(t, archive+"::docs/memo.docx", rec.FullPath)
	assert.Equal(t, "memo.docx", rec.Filename)
	assert.Equal(t, "DOCX", rec.Family)
	assert.Equal(t, int64(len(inner)), rec.Size)
	assert.Equal(t, 1, batch.Summary.Skipped, "oversized entry is counted")

	n := s.CompleteDeepScans(context.Background(), batch.Records)
	assert.Equal(t, 1, n)
	assert.True(t, rec.DeepScanCompleted)
	assert.True(t, store.get(rec.ID).DeepScanCompleted)
	assert.Contains(t, rec.Report, "exiftool not found")
}

func TestScanUnreadableArchive(t *testing.T) {
	dir := t.TempDir()
	path := testdocs.WriteRaw(t, dir, "broken.zip", []byte("PK\x03\x04 truncated"))

	s := NewScanner(ScannerConfig{Config: testConfig(), Logger: quietLogger()})
	batch, err := s.Scan(context.Background(), []string{dir})
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	assert.Equal(t, path, batch.Records[0].FullPath)
	assert.Equal(t, models.VerdictLocked, batch.Records[0].Verdict)
}

func TestCompleteDeepScans(t *testing.T) {
	dir := t.TempDir()
	testdocs.Write(t, dir, "a.docx", memo("contact alice@example.com"))
	testdocs.WriteRaw(t, dir, "locked.docx", []byte("garbage"))

	s := NewScanner(ScannerConfig{Config: testConfig(), Logger: quietLogger()})
	batch, err := s.Scan(context.Background(), []string{dir})
	require.NoError(t, err)
	require.Len(t, batch.Records, 2)

	n := s.CompleteDeepScans(context.Background(), batch.Records)
	assert.Equal(t, 1, n, "locked records are not deep scanned")

	recs := byPath(batch.Records)
	deep := recs[filepath.Join(dir, "a.docx")]
	assert.True(t, deep.DeepScanCompleted)
	assert.Contains(t, deep.Report, "alice@example.com")
	assert.False(t, recs[filepath.Join(dir, "locked.docx")].DeepScanCompleted)

	assert.Zero(t, s.CompleteDeepScans(context.Background(), batch.Records), "nothing left to complete")
}

func TestScanDeepMode(t *testing.T) {
	dir := t.TempDir()
	testdocs.Write(t, dir, "a.docx", memo("deep"))

	cfg := testConfig()
	cfg.DeepScan = true
	s := NewScanner(ScannerConfig{Config: cfg, Logger: quietLogger()})
	batch, err := s.Scan(context.Background(), []string{dir})
	require.NoError(t, err)
	require.Len(t, batch.Records, 1)
	assert.True(t, batch.Records[0].DeepScanCompleted)
}

func TestScanInvalidRoot(t *testing.T) {
	s := NewScanner(ScannerConfig{Config: testConfig(), Logger: quietLogger()})
	_, err := s.Scan(context.Background(), []string{filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, ErrInvalidRoot)
}

func TestScanCancelled(t *testing.T) {
	dir := t.TempDir()
	testdocs.Write(t, dir, "a.docx", memo("a"))
	testdocs.Write(t, dir, "b.docx", memo("b"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewScanner(ScannerConfig{Config: testConfig(), Logger: quietLogger()})
	batch, err := s.Scan(ctx, []string{dir})
	require.NoError(t, err)
	assert.Empty(t, batch.Records)
}

func TestScanFilesFiltersUnsupported(t *testing.T) {
	dir := t.TempDir()
	doc := testdocs.Write(t, dir, "a.docx", memo("a"))
	txt := testdocs.WriteRaw(t, dir, "notes.txt", []byte("plain"))

	s := NewScanner(ScannerConfig{Config: testConfig(), Logger: quietLogger()})
	batch := s.ScanFiles(context.Background(), []string{doc, txt})
	require.Len(t, batch.Records, 1)
	assert.Equal(t, 1, batch.Summary.Skipped)
}

func TestScanGenealogy(t *testing.T) {
	dir := t.TempDir()
	testdocs.Write(t, dir, "a.docx", memo("first"))
	testdocs.Write(t, dir, "b.docx", memo("second"))

	s := NewScanner(ScannerConfig{Config: testConfig(), Logger: quietLogger()})
	batch, err := s.Scan(context.Background(), []string{dir})
	require.NoError(t, err)
	require.Len(t, batch.Relations, 1)
	assert.InDelta(t, 1.0, batch.Relations[0].Similarity, 1e-9)
	assert.Len(t, batch.Relations[0].Shared, 3)
}
