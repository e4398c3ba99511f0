package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
)

func sampleRecords() []models.FileRecord {
	scanned := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	return []models.FileRecord{
		{
			ID:                "11111111-1111-1111-1111-111111111111",
			Filename:          "memo.docx",
			FullPath:          "/cases/42/memo.docx",
			Size:              48213,
			MD5:               strings.Repeat("a", 32),
			SHA256:            strings.Repeat("b", 64),
			Family:            "DOCX",
			Verdict:           models.VerdictSynthetic,
			Status:            models.StatusOK,
			Threats:           []string{"SYNTHETIC", "HIDDEN TEXT", "INJECTION"},
			LeakedIdentity:    "jdoe",
			HiddenText:        "SECRET\x07 plan",
			Report:            "[ALERT] Template injection\n[INFO] Author: jdoe\n",
			Duplicate:         true,
			DeepScanCompleted: true,
			Properties:        map[string]string{"creator": "jdoe", "words": "800"},
			SessionTokens:     []string{"00A1B2C3", "00D4E5F6"},
			FSModified:        scanned.Add(-time.Hour),
			ScannedAt:         scanned,
		},
		{
			ID:       "22222222-2222-2222-2222-222222222222",
			Filename: "locked.xlsx",
			FullPath: "/cases/42/bundle.zip::locked.xlsx",
			SHA256:   strings.Repeat("c", 64),
			Family:   "UNKNOWN",
			Verdict:  models.VerdictLocked,
			Status:   models.StatusLocked,
			Error:    "not a document container",
		},
	}
}

func TestText(t *testing.T) {
	out := Text([]models.Finding{
		{Severity: models.SeverityDanger, Message: "Template injection"},
		{Severity: models.SeverityInfo, Message: "Sessions:\n00A1B2C3\n00D4E5F6"},
		{Severity: models.SeveritySuccess, Message: "No macros"},
		{Severity: models.SeverityWarning, Message: "Future timestamp"},
	})
	assert.Equal(t, "[ALERT] Template injection\n"+
		"[INFO] Sessions:\n"+
		"       00A1B2C3\n"+
		"       00D4E5F6\n"+
		"[PASS] No macros\n"+
		"[WARN] Future timestamp\n", out)
}

func TestCSVRoundTrip(t *testing.T) {
	in := sampleRecords()
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, Columns, in))

	out, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, out, 2)

	for i := range in {
		assert.Equal(t, in[i].ID, out[i].ID)
		assert.Equal(t, in[i].Verdict, out[i].Verdict)
		assert.Equal(t, in[i].SHA256, out[i].SHA256)
		assert.Equal(t, in[i].Threats, out[i].Threats)
		assert.Equal(t, in[i].Duplicate, out[i].Duplicate)
		assert.Equal(t, in[i].Status, out[i].Status)
		assert.Equal(t, in[i].FullPath, out[i].FullPath)
	}
	assert.Equal(t, "SECRET plan", out[0].HiddenText, "control characters are stripped")
	assert.Equal(t, "jdoe", out[0].Properties["creator"])
	assert.True(t, in[0].ScannedAt.Equal(out[0].ScannedAt))
	assert.Equal(t, in[0].Report, out[0].Report)
}

func TestCSVHeaderFollowsSchema(t *testing.T) {
	var buf bytes.Buffer
	cols := []Column{{"sha256", "Hash"}, {"verdict", "Remarks"}}
	require.NoError(t, WriteCSV(&buf, cols, sampleRecords()[:1]))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "sha256,verdict", lines[0])
	assert.Equal(t, strings.Repeat("b", 64)+",SYNTHETIC", lines[1])
}

func TestReadCSVUnknownColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("sha256,colour\nabc,red\n"))
	assert.ErrorIs(t, err, ErrUnknownColumn)
}

func TestJSONRoundTrip(t *testing.T) {
	in := sampleRecords()
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, Columns, in))
	assert.NotContains(t, buf.String(), `\u0007`)

	out, err := ReadJSON(&buf)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in[0].Verdict, out[0].Verdict)
	assert.Equal(t, in[0].SHA256, out[0].SHA256)
	assert.Equal(t, in[0].Threats, out[0].Threats)
	assert.Equal(t, in[0].SessionTokens, out[0].SessionTokens)
	assert.Equal(t, in[1].Error, out[1].Error)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a\tb\nc", Sanitize("a\x00\tb\n\x1fc"))
	assert.Equal(t, "plain", Sanitize("plain"))
}

func TestSafeFilename(t *testing.T) {
	assert.Equal(t, "report_2026_04_02_.csv", SafeFilename("report/2026:04:02?.csv"))
	assert.Equal(t, "_", SafeFilename("..."))
	assert.Equal(t, "memo", SafeFilename("memo. "))
}

func TestRendererDossier(t *testing.T) {
	rec := sampleRecords()[0]
	rec.Findings = []models.Finding{
		{Severity: models.SeverityDanger, Message: "Template injection"},
	}
	var buf bytes.Buffer
	r := NewRenderer(&buf, false)
	r.Dossier(rec)

	out := buf.String()
	assert.Contains(t, out, "=== DOSSIER: memo.docx ===")
	assert.Contains(t, out, "Verdict: SYNTHETIC | Threats: SYNTHETIC, HIDDEN TEXT, INJECTION")
	assert.Contains(t, out, "Size: 48 kB")
	assert.Contains(t, out, "[ALERT] Template injection")
	assert.Contains(t, out, "Duplicate:")
	assert.NotContains(t, out, "\x1b[", "no escape codes when color is off")
}

func TestRendererSummaryAndRelations(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(&buf, false)
	r.Summary(models.BatchSummary{Processed: 1200, Skipped: 3, TimedOut: 1, Duplicates: 2, Duration: 1500 * time.Millisecond})
	r.Relations(nil)
	r.Relations([]models.Relation{
		{Left: "a.docx", Right: "b.docx", Shared: []string{"00A1"}, Similarity: 0.5},
		{Left: "a.docx", Right: "c.docx", Shared: []string{"00A1", "00B2"}, Similarity: 1},
	})

	out := buf.String()
	assert.Contains(t, out, "Scan complete in 1.5s.")
	assert.Contains(t, out, "1,200 indexed, 3 skipped, 1 timed out, 0 errors, 0 locked, 2 duplicates.")
	assert.Contains(t, out, "No shared editing history")
	assert.Less(t, strings.Index(out, "c.docx"), strings.Index(out, "b.docx"), "strongest match first")
	assert.Contains(t, out, "100.0% likelihood")
}
