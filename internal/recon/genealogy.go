package recon

import (
	"sort"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
)

// Genealogy relates records that share revision session tokens. Similarity
// is measured against the smaller token set, so a document copied into a
// larger one still scores 1.
func Genealogy(records []*models.FileRecord) []models.Relation {
	type entry struct {
		path   string
		tokens map[string]bool
	}
	var entries []entry
	for _, rec := range records {
		if len(rec.SessionTokens) == 0 {
			continue
		}
		set := make(map[string]bool, len(rec.SessionTokens))
		for _, t := range rec.SessionTokens {
			set[t] = true
		}
		entries = append(entries, entry{path: rec.FullPath, tokens: set})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].path < entries[j].path })

	var out []models.Relation
	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			a, b := entries[i], entries[j]
			var shared []string
			for t := range a.tokens {
				if b.tokens[t] {
					shared = append(shared, t)
				}
			}
			if len(shared) == 0 {
				continue
			}
			sort.Strings(shared)
			smaller := len(a.tokens)
			if len(b.tokens) < smaller {
				smaller = len(b.tokens)
			}
			out = append(out, models.Relation{
				Left:       a.path,
				Right:      b.path,
				Shared:     shared,
				Similarity: float64(len(shared)) / float64(smaller),
			})
		}
	}
	return out
}
