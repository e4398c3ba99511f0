package recon

import (
	"sort"
	"sync"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
)

// Registry maps content hashes to the records of one batch. It is the only
// state shared between workers.
type Registry struct {
	mu     sync.Mutex
	byHash map[string][]*models.FileRecord
}

func NewRegistry() *Registry {
	return &Registry{byHash: make(map[string][]*models.FileRecord)}
}

// Register adds rec. When its hash was seen before, rec and every earlier
// record with that hash are flagged as duplicates. It returns a copy of rec
// taken under the lock and the earlier records this call newly flagged.
func (r *Registry) Register(rec *models.FileRecord) (models.FileRecord, []*models.FileRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec.SHA256 == "" {
		return *rec, nil
	}

	var flagged []*models.FileRecord
	prior := r.byHash[rec.SHA256]
	if len(prior) > 0 {
		rec.Duplicate = true
		for _, p := range prior {
			if !p.Duplicate {
				p.Duplicate = true
				flagged = append(flagged, p)
			}
		}
	}
	r.byHash[rec.SHA256] = append(prior, rec)
	return *rec, flagged
}

// Groups returns the paths of every hash seen more than once.
func (r *Registry) Groups() map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string][]string)
	for hash, recs := range r.byHash {
		if len(recs) < 2 {
			continue
		}
		paths := make([]string, len(recs))
		for i, rec := range recs {
			paths[i] = rec.FullPath
		}
		sort.Strings(paths)
		out[hash] = paths
	}
	return out
}
