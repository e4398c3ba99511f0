package analyzers

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/container"
)

// Stage is one analyzer in a family pipeline. Deep stages only run when a
// deep scan is requested.
type Stage struct {
	Analyzer Analyzer
	Deep     bool
}

// Pipeline returns the ordered analyzers for a family. Metadata runs first so
// later stages can read the normalized properties.
func Pipeline(f container.Family, h Heuristics) []Stage {
	common := []Stage{
		{Analyzer: Metadata{H: h}},
		{Analyzer: Temporal{H: h}},
	}

	var specific []Stage
	switch f {
	case container.DOCX:
		specific = []Stage{
			{Analyzer: Origin{H: h}},
			{Analyzer: Sessions{}},
			{Analyzer: Revisions{}},
			{Analyzer: HiddenContent{H: h}},
			{Analyzer: Threats{}},
			{Analyzer: Leaks{}},
		}
	case container.XLSX:
		specific = []Stage{
			{Analyzer: Workbook{}},
			{Analyzer: Threats{}},
			{Analyzer: Leaks{}},
		}
	case container.PPTX:
		specific = []Stage{
			{Analyzer: Presentation{}},
			{Analyzer: Threats{}},
			{Analyzer: Leaks{}},
		}
	case container.ODT, container.ODS, container.ODP:
		specific = []Stage{
			{Analyzer: OpenDocument{}},
			{Analyzer: Threats{}},
			{Analyzer: Leaks{}},
		}
	default:
		// No family-specific analyzer runs on an unknown package.
		return []Stage{{Analyzer: Threats{}}}
	}

	deep := []Stage{
		{Analyzer: ForensicText{}, Deep: true},
		{Analyzer: Artifacts{}, Deep: true},
	}

	out := append(common, specific...)
	return append(out, deep...)
}

// Run executes stages against c. Every analyzer is isolated: an error or a
// panic is recorded on the report and the next analyzer still runs.
func Run(ctx context.Context, c *container.Container, stages []Stage, deep bool, logger *logrus.Logger) *Report {
	r := NewReport(c.Family())
	for _, st := range stages {
		if st.Deep && !deep {
			continue
		}
		if err := ctx.Err(); err != nil {
			r.Failures = append(r.Failures, AnalyzerError{Analyzer: st.Analyzer.Name(), Err: err})
			break
		}
		if err := runIsolated(ctx, st.Analyzer, c, r); err != nil {
			r.Failures = append(r.Failures, AnalyzerError{Analyzer: st.Analyzer.Name(), Err: err})
			r.Add(st.Analyzer.Name(), models.SeverityInfo, fmt.Sprintf("Analyzer %s failed: %v", st.Analyzer.Name(), err))
			if logger != nil {
				logger.WithError(err).WithFields(logrus.Fields{
					"analyzer": st.Analyzer.Name(),
					"path":     c.Path(),
				}).Warn("Analyzer failed")
			}
		}
	}

	malformed := c.MalformedParts()
	parts := make([]string, 0, len(malformed))
	for part := range malformed {
		parts = append(parts, part)
	}
	sort.Strings(parts)
	for _, part := range parts {
		r.Add("container", models.SeverityInfo, fmt.Sprintf("Part %s could not be parsed: %v", part, malformed[part]), "part", part)
	}
	return r
}

func runIsolated(ctx context.Context, a Analyzer, c *container.Container, r *Report) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return a.Analyze(ctx, c, r)
}
