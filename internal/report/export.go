package report

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
)

// Column is one field of the export schema.
type Column struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Columns is the ordered export schema. Keys starting with "prop:" read the
// normalized document property of the same name.
var Columns = []Column{
	{"filename", "File Name"},
	{"verdict", "Remarks"},
	{"threats", "Attention"},
	{"deep_scan_completed", "Deep Scan"},
	{"md5", "MD5 Hash"},
	{"sha256", "SHA256 Hash"},
	{"duplicate", "Duplicate"},
	{"full_path", "Full Path"},
	{"hidden_text", "Hidden"},
	{"prop:creator", "Creator"},
	{"prop:last_modified_by", "Last Mod By"},
	{"prop:last_printed", "Last Printed"},
	{"prop:created", "Meta Created"},
	{"prop:modified", "Meta Mod"},
	{"prop:title", "Title"},
	{"leaked_identity", "Leaked User"},
	{"fs_modified", "FS Modified"},
	{"zip_modified", "Zip Date"},
	{"prop:edit_minutes", "Edit Time"},
	{"status", "Status"},
	{"prop:category", "Category"},
	{"session_count", "RSIDs"},
	{"prop:template", "Template"},
	{"prop:application", "Software"},
	{"prop:revision", "Rev"},
	{"prop:pages", "Pg"},
	{"prop:slides", "Sld"},
	{"prop:words", "Words"},
	{"size", "Size"},
	{"family", "Type"},
	{"id", "Record ID"},
	{"scanned_at", "Scanned At"},
	{"error", "Error"},
	{"report", "Report"},
}

const (
	threatSeparator = ", "
	propPrefix      = "prop:"
)

// ErrUnknownColumn is returned by ReadCSV for header cells outside the schema.
var ErrUnknownColumn = errors.New("unknown column")

// Sanitize strips control characters that spreadsheet and XML consumers
// reject. Tab, newline and carriage return are kept.
func Sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		if r < 0x20 || r == 0x7f || r == 0xfffe || r == 0xffff {
			return -1
		}
		return r
	}, s)
}

// SafeFilename replaces characters that are not allowed in file names on
// common filesystems.
func SafeFilename(name string) string {
	out := strings.Map(func(r rune) rune {
		switch {
		case r < 0x20:
			return -1
		case strings.ContainsRune(`<>:"/\|?*`, r):
			return '_'
		}
		return r
	}, name)
	out = strings.TrimRight(out, ". ")
	if out == "" {
		return "_"
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

// Value returns the export cell of rec for key.
func Value(rec models.FileRecord, key string) string {
	if strings.HasPrefix(key, propPrefix) {
		return Sanitize(rec.Properties[strings.TrimPrefix(key, propPrefix)])
	}
	var v string
	switch key {
	case "id":
		v = rec.ID
	case "filename":
		v = rec.Filename
	case "full_path":
		v = rec.FullPath
	case "size":
		v = strconv.FormatInt(rec.Size, 10)
	case "md5":
		v = rec.MD5
	case "sha256":
		v = rec.SHA256
	case "family":
		v = rec.Family
	case "verdict":
		v = string(rec.Verdict)
	case "status":
		v = string(rec.Status)
	case "threats":
		v = strings.Join(rec.Threats, threatSeparator)
	case "leaked_identity":
		v = rec.LeakedIdentity
	case "hidden_text":
		v = rec.HiddenText
	case "duplicate":
		v = strconv.FormatBool(rec.Duplicate)
	case "deep_scan_completed":
		v = strconv.FormatBool(rec.DeepScanCompleted)
	case "session_count":
		v = strconv.Itoa(len(rec.SessionTokens))
	case "fs_modified":
		v = formatTime(rec.FSModified)
	case "zip_modified":
		v = formatTime(rec.ZipModified)
	case "scanned_at":
		v = formatTime(rec.ScannedAt)
	case "error":
		v = rec.Error
	case "report":
		v = rec.Report
	}
	return Sanitize(v)
}

func setValue(rec *models.FileRecord, key, v string) error {
	if strings.HasPrefix(key, propPrefix) {
		if v != "" {
			if rec.Properties == nil {
				rec.Properties = make(map[string]string)
			}
			rec.Properties[strings.TrimPrefix(key, propPrefix)] = v
		}
		return nil
	}

	var err error
	switch key {
	case "id":
		rec.ID = v
	case "filename":
		rec.Filename = v
	case "full_path":
		rec.FullPath = v
	case "size":
		if v != "" {
			rec.Size, err = strconv.ParseInt(v, 10, 64)
		}
	case "md5":
		rec.MD5 = v
	case "sha256":
		rec.SHA256 = v
	case "family":
		rec.Family = v
	case "verdict":
		rec.Verdict = models.Verdict(v)
	case "status":
		rec.Status = models.Status(v)
	case "threats":
		rec.Threats = nil
		for _, t := range strings.Split(v, threatSeparator) {
			rec.AddThreat(strings.TrimSpace(t))
		}
	case "leaked_identity":
		rec.LeakedIdentity = v
	case "hidden_text":
		rec.HiddenText = v
	case "duplicate":
		rec.Duplicate, err = parseBool(v)
	case "deep_scan_completed":
		rec.DeepScanCompleted, err = parseBool(v)
	case "session_count":
		// Derived from the session tokens, which are not exported.
	case "fs_modified":
		rec.FSModified, err = parseTime(v)
	case "zip_modified":
		rec.ZipModified, err = parseTime(v)
	case "scanned_at":
		rec.ScannedAt, err = parseTime(v)
	case "error":
		rec.Error = v
	case "report":
		rec.Report = v
	default:
		return fmt.Errorf("%w: %s", ErrUnknownColumn, key)
	}
	if err != nil {
		return fmt.Errorf("column %s: %w", key, err)
	}
	return nil
}

func parseBool(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

// WriteCSV writes a header of column keys followed by one row per record.
func WriteCSV(w io.Writer, columns []Column, records []models.FileRecord) error {
	cw := csv.NewWriter(w)
	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = c.Key
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	row := make([]string, len(columns))
	for _, rec := range records {
		for i, c := range columns {
			row[i] = Value(rec, c.Key)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row for %s: %w", rec.FullPath, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a file written by WriteCSV.
func ReadCSV(r io.Reader) ([]models.FileRecord, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	cr.FieldsPerRecord = len(header)

	var records []models.FileRecord
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %w", err)
		}
		var rec models.FileRecord
		for i, key := range header {
			if err := setValue(&rec, key, row[i]); err != nil {
				return nil, fmt.Errorf("row %d: %w", len(records)+1, err)
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

// Export is the JSON export document.
type Export struct {
	GeneratedAt time.Time           `json:"generated_at"`
	Columns     []Column            `json:"columns"`
	Records     []models.FileRecord `json:"records"`
}

// WriteJSON writes records with their column schema.
func WriteJSON(w io.Writer, columns []Column, records []models.FileRecord) error {
	clean := make([]models.FileRecord, len(records))
	for i, rec := range records {
		clean[i] = sanitizeRecord(rec)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Export{
		GeneratedAt: time.Now().UTC(),
		Columns:     columns,
		Records:     clean,
	})
}

// ReadJSON parses a document written by WriteJSON.
func ReadJSON(r io.Reader) ([]models.FileRecord, error) {
	var doc Export
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode JSON export: %w", err)
	}
	return doc.Records, nil
}

func sanitizeRecord(rec models.FileRecord) models.FileRecord {
	rec.Filename = Sanitize(rec.Filename)
	rec.FullPath = Sanitize(rec.FullPath)
	rec.HiddenText = Sanitize(rec.HiddenText)
	rec.LeakedIdentity = Sanitize(rec.LeakedIdentity)
	rec.Report = Sanitize(rec.Report)
	rec.Error = Sanitize(rec.Error)
	if rec.Properties != nil {
		props := make(map[string]string, len(rec.Properties))
		for k, v := range rec.Properties {
			props[k] = Sanitize(v)
		}
		rec.Properties = props
	}
	if rec.Findings != nil {
		findings := make([]models.Finding, len(rec.Findings))
		for i, f := range rec.Findings {
			f.Message = Sanitize(f.Message)
			findings[i] = f
		}
		rec.Findings = findings
	}
	return rec
}
