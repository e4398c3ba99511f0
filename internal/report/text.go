// Package report renders scan records for people and serializes them for
// other tools.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
)

// Label returns the bracketed prefix used for a severity.
func Label(sev models.Severity) string {
	switch sev {
	case models.SeveritySuccess:
		return "[PASS]"
	case models.SeverityWarning:
		return "[WARN]"
	case models.SeverityDanger:
		return "[ALERT]"
	default:
		return "[INFO]"
	}
}

// Text concatenates findings into the plain report stored on a record.
// Continuation lines of multi-line messages are indented under the label.
func Text(findings []models.Finding) string {
	var sb strings.Builder
	for _, f := range findings {
		label := Label(f.Severity)
		lines := strings.Split(strings.TrimRight(f.Message, "\n"), "\n")
		fmt.Fprintf(&sb, "%s %s\n", label, lines[0])
		pad := strings.Repeat(" ", len(label)+1)
		for _, l := range lines[1:] {
			sb.WriteString(pad)
			sb.WriteString(l)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Renderer writes human-readable output, optionally colored.
type Renderer struct {
	out io.Writer

	info, pass, warn, alert, head *color.Color
}

// NewRenderer returns a renderer writing to w.
func NewRenderer(w io.Writer, useColor bool) *Renderer {
	r := &Renderer{
		out:   w,
		info:  color.New(color.FgCyan),
		pass:  color.New(color.FgGreen),
		warn:  color.New(color.FgYellow),
		alert: color.New(color.FgRed, color.Bold),
		head:  color.New(color.Bold),
	}
	for _, c := range []*color.Color{r.info, r.pass, r.warn, r.alert, r.head} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

func (r *Renderer) severity(sev models.Severity) *color.Color {
	switch sev {
	case models.SeveritySuccess:
		return r.pass
	case models.SeverityWarning:
		return r.warn
	case models.SeverityDanger:
		return r.alert
	default:
		return r.info
	}
}

func (r *Renderer) verdict(v models.Verdict) string {
	switch v {
	case models.VerdictSynthetic, models.VerdictLocked:
		return r.alert.Sprint(v)
	case models.VerdictMixed:
		return r.warn.Sprint(v)
	case models.VerdictOrganic:
		return r.pass.Sprint(v)
	default:
		return string(v)
	}
}

// Dossier writes the full report of one record.
func (r *Renderer) Dossier(rec models.FileRecord) {
	rule := strings.Repeat("=", 60)
	r.head.Fprintf(r.out, "=== DOSSIER: %s ===\n", rec.Filename)
	threats := "-"
	if len(rec.Threats) > 0 {
		threats = r.alert.Sprint(strings.Join(rec.Threats, ", "))
	}
	fmt.Fprintf(r.out, "Verdict: %s | Threats: %s\n", r.verdict(rec.Verdict), threats)
	fmt.Fprintf(r.out, "Family: %s | Status: %s | Size: %s\n", rec.Family, rec.Status, humanize.Bytes(uint64(rec.Size)))
	fmt.Fprintf(r.out, "MD5: %s\nSHA256: %s\n", rec.MD5, rec.SHA256)
	fmt.Fprintf(r.out, "Path: %s\n", rec.FullPath)
	if rec.Duplicate {
		r.warn.Fprintln(r.out, "Duplicate: byte-identical to another file in this batch")
	}
	if rec.Error != "" {
		r.alert.Fprintf(r.out, "Error: %s\n", rec.Error)
	}
	fmt.Fprintln(r.out, rule)

	for _, f := range rec.Findings {
		label := Label(f.Severity)
		lines := strings.Split(strings.TrimRight(f.Message, "\n"), "\n")
		fmt.Fprintf(r.out, "%s %s\n", r.severity(f.Severity).Sprint(label), lines[0])
		pad := strings.Repeat(" ", len(label)+1)
		for _, l := range lines[1:] {
			fmt.Fprintf(r.out, "%s%s\n", pad, l)
		}
	}
	fmt.Fprintln(r.out)
}

// Line writes a one-line summary of a record.
func (r *Renderer) Line(rec models.FileRecord) {
	dup := ""
	if rec.Duplicate {
		dup = r.warn.Sprint(" [DUP]")
	}
	threats := ""
	if len(rec.Threats) > 0 {
		threats = " " + r.alert.Sprint(strings.Join(rec.Threats, ", "))
	}
	fmt.Fprintf(r.out, "%-9s %s%s%s\n", r.verdict(rec.Verdict), rec.FullPath, dup, threats)
}

// Summary writes the batch counters.
func (r *Renderer) Summary(s models.BatchSummary) {
	r.head.Fprintf(r.out, "Scan complete in %s.\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(r.out, "%s indexed, %s skipped, %d timed out, %d errors, %d locked, %d duplicates.\n",
		humanize.Comma(int64(s.Processed)), humanize.Comma(int64(s.Skipped)),
		s.TimedOut, s.Errors, s.Locked, s.Duplicates)
}

// Relations writes genealogy matches, strongest first.
func (r *Renderer) Relations(rels []models.Relation) {
	if len(rels) == 0 {
		r.info.Fprintln(r.out, "[INFO] No shared editing history found between documents.")
		return
	}
	sorted := append([]models.Relation(nil), rels...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Similarity > sorted[j].Similarity })

	r.head.Fprintln(r.out, "--- Session Genealogy ---")
	for _, rel := range sorted {
		fmt.Fprintf(r.out, "MATCH: %s <--> %s\n", rel.Left, rel.Right)
		fmt.Fprintf(r.out, "   Shared sessions: %d\n", len(rel.Shared))
		fmt.Fprintf(r.out, "   Genealogy score: %.1f%% likelihood of shared origin\n", rel.Similarity*100)
	}
}
