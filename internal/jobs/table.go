// Package jobs runs generation jobs through the pipeline state machine and
// keeps their state in a job table.
package jobs

import (
	"context"
	"sort"
	"sync"

	"exampaper-rag/internal/apperr"
	"exampaper-rag/internal/models"
)

// Table is a keyed store of jobs safe for concurrent use. Update is an
// atomic read-modify-write of one job: fn sees the current state and the
// result is stored only if fn returns nil.
type Table interface {
	Insert(ctx context.Context, job *models.GenerationJob) error
	Get(ctx context.Context, id string) (*models.GenerationJob, error)
	Update(ctx context.Context, id string, fn func(*models.GenerationJob) error) (*models.GenerationJob, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.GenerationJob, error)
}

// MemoryTable is an in-process Table
type MemoryTable struct {
	mu   sync.Mutex
	jobs map[string]*models.GenerationJob
}

// NewMemoryTable creates an empty table
func NewMemoryTable() *MemoryTable {
	return &MemoryTable{jobs: make(map[string]*models.GenerationJob)}
}

func (t *MemoryTable) Insert(_ context.Context, job *models.GenerationJob) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.jobs[job.ID]; ok {
		return apperr.Errorf(apperr.InvalidRequest, "job %s already exists", job.ID)
	}
	t.jobs[job.ID] = job.Clone()
	return nil
}

func (t *MemoryTable) Get(_ context.Context, id string) (*models.GenerationJob, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return nil, apperr.Errorf(apperr.JobNotFound, "job %s not found", id)
	}
	return job.Clone(), nil
}

func (t *MemoryTable) Update(_ context.Context, id string, fn func(*models.GenerationJob) error) (*models.GenerationJob, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return nil, apperr.Errorf(apperr.JobNotFound, "job %s not found", id)
	}
	next := job.Clone()
	if err := fn(next); err != nil {
		return job.Clone(), err
	}
	t.jobs[id] = next
	return next.Clone(), nil
}

func (t *MemoryTable) Delete(_ context.Context, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.jobs[id]; !ok {
		return apperr.Errorf(apperr.JobNotFound, "job %s not found", id)
	}
	delete(t.jobs, id)
	return nil
}

func (t *MemoryTable) List(_ context.Context) ([]*models.GenerationJob, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*models.GenerationJob, 0, len(t.jobs))
	for _, j := range t.jobs {
		out = append(out, j.Clone())
	}
	sortJobs(out)
	return out, nil
}

func sortJobs(jobs []*models.GenerationJob) {
	sort.Slice(jobs, func(i, k int) bool {
		if jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].ID < jobs[k].ID
		}
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
}
