// Package analyzers holds the independent forensic checks that run over an
// open document container. Each analyzer appends findings to a Report owned
// by the caller; analyzers never print and never share state.
package analyzers

import (
	"context"
	"fmt"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
	"github.com/Rasmus-Riis/OfficeRecon/internal/recon/container"
)

// Analyzer is a single forensic check.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, c *container.Container, r *Report) error
}

// AnalyzerError records an analyzer that failed or panicked.
type AnalyzerError struct {
	Analyzer string
	Err      error
}

func (e AnalyzerError) Error() string {
	return fmt.Sprintf("%s: %v", e.Analyzer, e.Err)
}

func (e AnalyzerError) Unwrap() error { return e.Err }

// Report is the findings buffer for one file.
type Report struct {
	Family         container.Family
	Verdict        models.Verdict
	Findings       []models.Finding
	Tags           []string
	LeakedIdentity string
	HiddenSample   string

	Origin       OriginResult
	Properties   *Properties
	Sessions     []Session
	Authorship   []ParagraphOwner
	SpeakerNotes []string
	Failures     []AnalyzerError
}

// NewReport returns an empty report for a container of family f.
func NewReport(f container.Family) *Report {
	return &Report{
		Family:  f,
		Verdict: models.VerdictUnknown,
	}
}

// Add appends a finding. kv holds evidence as alternating keys and values.
func (r *Report) Add(analyzer string, sev models.Severity, message string, kv ...string) {
	r.Findings = append(r.Findings, models.Finding{
		Severity: sev,
		Analyzer: analyzer,
		Message:  message,
		Evidence: evidence(kv),
	})
}

// Flag appends a finding that also contributes tag to the file's threat tags.
func (r *Report) Flag(analyzer string, sev models.Severity, tag, message string, kv ...string) {
	r.Findings = append(r.Findings, models.Finding{
		Severity: sev,
		Analyzer: analyzer,
		Message:  message,
		Tag:      tag,
		Evidence: evidence(kv),
	})
	r.AddTag(tag)
}

// AddTag records tag once, preserving first-seen order.
func (r *Report) AddTag(tag string) {
	if tag == "" || r.HasTag(tag) {
		return
	}
	r.Tags = append(r.Tags, tag)
}

func (r *Report) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Count returns the number of findings with severity sev.
func (r *Report) Count(sev models.Severity) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == sev {
			n++
		}
	}
	return n
}

// ByAnalyzer returns the findings produced by one analyzer.
func (r *Report) ByAnalyzer(name string) []models.Finding {
	var out []models.Finding
	for _, f := range r.Findings {
		if f.Analyzer == name {
			out = append(out, f)
		}
	}
	return out
}

func evidence(kv []string) map[string]string {
	if len(kv) < 2 {
		return nil
	}
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		m[kv[i]] = kv[i+1]
	}
	return m
}
