package database

import (
	"sort"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
)

const (
	defaultPerPage = 20
	maxPerPage     = 500
)

// normalizeFilter clamps the paging fields of f.
func normalizeFilter(f models.RecordFilter) models.RecordFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = defaultPerPage
	}
	if f.PerPage > maxPerPage {
		f.PerPage = maxPerPage
	}
	return f
}

// matchFilter reports whether r passes the non-paging fields of f.
func matchFilter(r models.FileRecord, f models.RecordFilter) bool {
	if f.Verdict != "" && string(r.Verdict) != f.Verdict {
		return false
	}
	if f.Threat != "" && !r.HasThreat(f.Threat) {
		return false
	}
	if f.Duplicate != nil && r.Duplicate != *f.Duplicate {
		return false
	}
	return true
}

// sortRecords orders records newest scan first, then by ID.
func sortRecords(records []models.FileRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].ScannedAt.Equal(records[j].ScannedAt) {
			return records[i].ScannedAt.After(records[j].ScannedAt)
		}
		return records[i].ID < records[j].ID
	})
}

// paginate filters, sorts and slices records for backends without a query
// language.
func paginate(records []models.FileRecord, f models.RecordFilter) ([]models.FileRecord, int) {
	f = normalizeFilter(f)
	matched := make([]models.FileRecord, 0, len(records))
	for _, r := range records {
		if matchFilter(r, f) {
			matched = append(matched, r)
		}
	}
	sortRecords(matched)

	total := len(matched)
	start := (f.Page - 1) * f.PerPage
	if start >= total {
		return []models.FileRecord{}, total
	}
	end := start + f.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total
}

// computeStats aggregates the stats response over records.
func computeStats(records []models.FileRecord) models.StatsResponse {
	stats := models.StatsResponse{ByVerdict: make(map[string]int)}
	for _, r := range records {
		stats.TotalRecords++
		if r.Duplicate {
			stats.Duplicates++
		}
		if len(r.Threats) > 0 {
			stats.WithThreats++
		}
		stats.ByVerdict[string(r.Verdict)]++
		if r.ScannedAt.After(stats.LastScanAt) {
			stats.LastScanAt = r.ScannedAt
		}
	}
	return stats
}
