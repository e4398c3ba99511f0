package analyzers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/container"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/testdocs"
)

func openParts(t *testing.T, parts testdocs.Parts) *container.Container {
	t.Helper()
	c, err := container.OpenBytes(testdocs.Zip(t, parts), "test")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// analyze runs a single analyzer over parts and returns its report.
func analyze(t *testing.T, a Analyzer, parts testdocs.Parts) *Report {
	t.Helper()
	c := openParts(t, parts)
	r := NewReport(c.Family())
	require.NoError(t, a.Analyze(context.Background(), c, r))
	return r
}

func messages(r *Report, analyzer string) []string {
	var out []string
	for _, f := range r.ByAnalyzer(analyzer) {
		out = append(out, f.Message)
	}
	return out
}
