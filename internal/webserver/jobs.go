package webserver

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Rasmus-Riis/OfficeRecon/internal/database/models"
)

type JobStatus string

const (
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// ScanJob tracks one batch requested through the API.
type ScanJob struct {
	ID         string               `json:"id"`
	Status     JobStatus            `json:"status"`
	Paths      []string             `json:"paths"`
	DeepScan   bool                 `json:"deep_scan"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt *time.Time           `json:"finished_at,omitempty"`
	Summary    *models.BatchSummary `json:"summary,omitempty"`
	Relations  []models.Relation    `json:"relations,omitempty"`
	Error      string               `json:"error,omitempty"`
}

// jobStore keeps scan jobs in memory for the life of the process.
type jobStore struct {
	mu   sync.RWMutex
	jobs map[string]*ScanJob
}

func newJobStore() *jobStore {
	return &jobStore{jobs: make(map[string]*ScanJob)}
}

func (s *jobStore) start(paths []string, deep bool) ScanJob {
	job := &ScanJob{
		ID:        uuid.NewString(),
		Status:    JobRunning,
		Paths:     paths,
		DeepScan:  deep,
		StartedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return *job
}

func (s *jobStore) finish(id string, summary *models.BatchSummary, relations []models.Relation, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	now := time.Now().UTC()
	job.FinishedAt = &now
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
		return
	}
	job.Status = JobDone
	job.Summary = summary
	job.Relations = relations
}

func (s *jobStore) get(id string) (ScanJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return ScanJob{}, false
	}
	return *job, true
}
