package models

import (
	"errors"
	"regexp"
	"time"
)

// Severity ranks a finding.
type Severity string

const (
	SeverityInfo    Severity = "INFO"
	SeveritySuccess Severity = "SUCCESS"
	SeverityWarning Severity = "WARNING"
	SeverityDanger  Severity = "DANGER"
)

// Verdict is the provenance classification of a scanned file.
type Verdict string

const (
	VerdictOrganic   Verdict = "ORGANIC"
	VerdictSynthetic Verdict = "SYNTHETIC"
	VerdictMixed     Verdict = "MIXED"
	VerdictLocked    Verdict = "LOCKED"
	VerdictUnknown   Verdict = "UNKNOWN"
)

// Status describes how the scan of a file ended.
type Status string

const (
	StatusOK      Status = "ok"
	StatusLocked  Status = "locked"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Finding is a single analyzer observation. Findings are append-only.
type Finding struct {
	Severity Severity          `json:"severity"`
	Analyzer string            `json:"analyzer"`
	Message  string            `json:"message"`
	Tag      string            `json:"tag,omitempty"`
	Evidence map[string]string `json:"evidence,omitempty"`
}

// FileRecord is the per-file result of a scan.
type FileRecord struct {
	ID                string            `json:"id"`
	RunID             string            `json:"run_id,omitempty"`
	Filename          string            `json:"filename"`
	FullPath          string            `json:"full_path"`
	Size              int64             `json:"size"`
	MD5               string            `json:"md5"`
	SHA256            string            `json:"sha256"`
	Family            string            `json:"family"`
	Verdict           Verdict           `json:"verdict"`
	Status            Status            `json:"status"`
	Threats           []string          `json:"threats"`
	LeakedIdentity    string            `json:"leaked_identity,omitempty"`
	HiddenText        string            `json:"hidden_text,omitempty"`
	Report            string            `json:"report"`
	Findings          []Finding         `json:"findings,omitempty"`
	Duplicate         bool              `json:"duplicate"`
	DeepScanCompleted bool              `json:"deep_scan_completed"`
	Properties        map[string]string `json:"properties,omitempty"`
	SessionTokens     []string          `json:"session_tokens,omitempty"`
	FSModified        time.Time         `json:"fs_modified"`
	ZipModified       time.Time         `json:"zip_modified"`
	ScannedAt         time.Time         `json:"scanned_at"`
	Error             string            `json:"error,omitempty"`
}

// AddThreat appends tag unless the record already carries it.
func (r *FileRecord) AddThreat(tag string) {
	if tag == "" || r.HasThreat(tag) {
		return
	}
	r.Threats = append(r.Threats, tag)
}

// HasThreat reports whether the record carries tag.
func (r *FileRecord) HasThreat(tag string) bool {
	for _, t := range r.Threats {
		if t == tag {
			return true
		}
	}
	return false
}

// CountSeverity returns the number of findings with severity s.
func (r *FileRecord) CountSeverity(s Severity) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == s {
			n++
		}
	}
	return n
}

// Relation links two files of one batch that share revision session tokens.
type Relation struct {
	Left       string   `json:"left"`
	Right      string   `json:"right"`
	Shared     []string `json:"shared"`
	Similarity float64  `json:"similarity"`
}

// BatchSummary counts the outcome of a batch scan.
type BatchSummary struct {
	RunID      string        `json:"run_id"`
	Processed  int           `json:"processed"`
	Skipped    int           `json:"skipped"`
	TimedOut   int           `json:"timed_out"`
	Errors     int           `json:"errors"`
	Locked     int           `json:"locked"`
	Duplicates int           `json:"duplicates"`
	Duration   time.Duration `json:"duration"`
}

// RecordFilter narrows a paginated record listing. Zero values mean no filter.
type RecordFilter struct {
	Page      int
	PerPage   int
	Verdict   string
	Threat    string
	Duplicate *bool
}

// RecordsResponse includes pagination metadata.
type RecordsResponse struct {
	Records    []FileRecord `json:"records"`
	Page       int          `json:"page"`
	PerPage    int          `json:"per_page"`
	Total      int          `json:"total"`
	TotalPages int          `json:"total_pages"`
}

type RecordDetailResponse struct {
	Record FileRecord `json:"record"`
}

// StatsResponse represents the structure of the /stats API response.
type StatsResponse struct {
	TotalRecords int            `json:"total_records"`
	Duplicates   int            `json:"duplicates"`
	WithThreats  int            `json:"with_threats"`
	ByVerdict    map[string]int `json:"by_verdict"`
	LastScanAt   time.Time      `json:"last_scan_at"`
}

var sha256Pattern = regexp.MustCompile("^[a-fA-F0-9]{64}$")

// ValidateSHA256 checks that hash looks like a hex SHA-256 digest.
func ValidateSHA256(hash string) error {
	if len(hash) != 64 {
		return errors.New("invalid hash length; must be SHA256")
	}
	if !sha256Pattern.MatchString(hash) {
		return errors.New("hash must contain only hexadecimal characters")
	}
	return nil
}
