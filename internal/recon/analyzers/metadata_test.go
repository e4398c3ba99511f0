package analyzers

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/testdocs"
)

func TestMetadataVelocity(t *testing.T) {
	m := Metadata{H: DefaultHeuristics()}

	tests := []struct {
		name    string
		minutes string
		words   string
		flagged bool
	}{
		{"pasted in one minute", "1", "800", true},
		{"typed over an hour", "60", "800", false},
		{"short note", "0", "120", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := testdocs.DOCX(testdocs.Paragraph("", "x"))
			parts["docProps/app.xml"] = testdocs.App("<TotalTime>" + tt.minutes + "</TotalTime><Words>" + tt.words + "</Words>")
			r := analyze(t, m, parts)
			assert.Equal(t, tt.flagged, r.HasTag("HIGH VELOCITY"))
			require.NotNil(t, r.Properties)
			assert.True(t, r.Properties.HasEditTime)
		})
	}

	t.Run("missing edit time never flags", func(t *testing.T) {
		parts := testdocs.DOCX(testdocs.Paragraph("", "x"))
		parts["docProps/app.xml"] = testdocs.App("<Words>5000</Words>")
		r := analyze(t, m, parts)
		assert.False(t, r.HasTag("HIGH VELOCITY"))
		assert.False(t, r.Properties.HasEditTime)
		_, ok := r.Properties.Map()["edit_minutes"]
		assert.False(t, ok)
	})
}

func TestMetadataCoreAndCustom(t *testing.T) {
	parts := testdocs.DOCX(testdocs.Paragraph("", "x"))
	parts["docProps/core.xml"] = testdocs.Core("Alice", "Bob", "2023-03-01T08:00:00Z", "2023-03-02T09:30:00Z")
	parts["docProps/app.xml"] = testdocs.App("<Company>ACME</Company><TotalTime>42</TotalTime>")
	parts["docProps/custom.xml"] = `<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/custom-properties" ` +
		`xmlns:vt="http://schemas.openxmlformats.org/officeDocument/2006/docPropsVTypes">` +
		`<property fmtid="{D5CDD505-2E9C-101B-9397-08002B2CF9AE}" pid="2" name="Project"><vt:lpwstr>Falcon</vt:lpwstr></property></Properties>`

	r := analyze(t, Metadata{H: DefaultHeuristics()}, parts)
	p := r.Properties
	assert.Equal(t, "Alice", p.Creator)
	assert.Equal(t, "Bob", p.LastModifiedBy)
	assert.Equal(t, "ACME", p.Company)
	assert.Equal(t, "Falcon", p.Custom["Project"])

	m := p.Map()
	assert.Equal(t, "42", m["edit_minutes"])
	assert.Equal(t, "Falcon", m["custom:Project"])
	assert.Equal(t, "3", m["revision"])

	all := strings.Join(messages(r, "metadata"), "\n")
	assert.Contains(t, all, "Created: 01/03/2023 08:00:00 +0000")
	assert.Contains(t, all, "Application version 16.0000 (Office 2016/2019/365)")
	assert.Contains(t, all, "Custom property Project: Falcon")
}

func TestMetadataODF(t *testing.T) {
	parts := testdocs.ODF("application/vnd.oasis.opendocument.text", `<office:body><office:text/></office:body>`)
	parts["meta.xml"] = `<office:document-meta ` + testdocs.NSOffice + `><office:meta>` +
		`<meta:generator>LibreOffice/7.5</meta:generator><meta:initial-creator>Eve</meta:initial-creator>` +
		`<dc:creator>Frank</dc:creator><meta:creation-date>2024-05-01T10:00:00</meta:creation-date>` +
		`<meta:editing-duration>PT1H30M</meta:editing-duration><meta:editing-cycles>7</meta:editing-cycles>` +
		`<meta:document-statistic meta:word-count="321" meta:page-count="2"/>` +
		`<meta:user-defined meta:name="Case">42-A</meta:user-defined></office:meta></office:document-meta>`

	r := analyze(t, Metadata{H: DefaultHeuristics()}, parts)
	p := r.Properties
	assert.Equal(t, "Eve", p.Creator)
	assert.Equal(t, "Frank", p.LastModifiedBy)
	assert.Equal(t, "LibreOffice/7.5", p.Application)
	assert.Equal(t, 90, p.EditMinutes)
	assert.Equal(t, 321, p.Words)
	assert.Equal(t, "7", p.EditingCycles)
	assert.Equal(t, "42-A", p.Custom["Case"])
	assert.Contains(t, messages(r, "metadata"), "Created: 01/05/2024 10:00:00")
}

func TestTemporal(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tmp := Temporal{H: DefaultHeuristics(), Now: func() time.Time { return now }}

	run := func(p *Properties) *Report {
		c := openParts(t, testdocs.DOCX(testdocs.Paragraph("", "x")))
		r := NewReport(c.Family())
		r.Properties = p
		require.NoError(t, tmp.Analyze(context.Background(), c, r))
		return r
	}

	r := run(&Properties{Created: "2024-01-01T10:00:00Z", Modified: "2030-01-01T10:00:00Z"})
	assert.True(t, r.HasTag("TEMPORAL ANOMALY"))
	assert.Equal(t, 1, r.Count(models.SeverityDanger))

	r = run(&Properties{Created: "2024-02-01T10:00:00Z", Modified: "2024-01-01T10:00:00Z"})
	assert.True(t, r.HasTag("TEMPORAL ANOMALY"))
	assert.Equal(t, 1, r.Count(models.SeverityWarning))

	r = run(&Properties{Created: "2024-01-01T10:00:00+02:00", Modified: "2024-01-02T10:00:00-05:00"})
	assert.Contains(t, messages(r, "temporal"), "Timestamps carry different time zones: +0200, -0500")

	// Within the skew tolerance.
	r = run(&Properties{Modified: now.Add(2 * time.Hour).Format(time.RFC3339)})
	assert.False(t, r.HasTag("TEMPORAL ANOMALY"))
}

func TestFormatTimestamp(t *testing.T) {
	assert.Equal(t, "15/03/2024 14:05:09 +0000", FormatTimestamp("2024-03-15T14:05:09Z"))
	assert.Equal(t, "15/03/2024 14:05:09 +0100", FormatTimestamp("2024-03-15T14:05:09+01:00"))
	assert.Equal(t, "15/03/2024 14:05:09", FormatTimestamp("2024-03-15T14:05:09"))
	assert.Equal(t, "not a date", FormatTimestamp("not a date"))
	assert.Equal(t, "", FormatTimestamp(""))
}

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"PT1H30M", 90, true},
		{"P1DT2H", 1560, true},
		{"PT45S", 0, true},
		{"PT2M30.5S", 2, true},
		{" PT10M ", 10, true},
		{"P1W", 10080, true},
		{"P1M", 43200, true},
		{"P1Y2DT3M", 525600 + 2880 + 3, true},
		{"P", 0, false},
		{" P ", 0, false},
		{"PT", 0, false},
		{"P1DT", 0, false},
		{"90 minutes", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseISODuration(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestLoadHeuristics(t *testing.T) {
	h, err := LoadHeuristics("")
	require.NoError(t, err)
	assert.Equal(t, DefaultHeuristics(), h)

	path := filepath.Join(t.TempDir(), "heuristics.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sequential_ratio: 0.7\nvelocity_min_words: 800\n"), 0o644))
	h, err = LoadHeuristics(path)
	require.NoError(t, err)
	assert.Equal(t, 0.7, h.SequentialRatio)
	assert.Equal(t, 800, h.VelocityMinWords)
	assert.Equal(t, 5, h.SequentialMinSamples)

	require.NoError(t, os.WriteFile(path, []byte("sequential_ratio: 2\n"), 0o644))
	_, err = LoadHeuristics(path)
	assert.Error(t, err)
}
