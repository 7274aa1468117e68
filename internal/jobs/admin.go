package jobs

import (
	"context"
	"errors"
	"os"
	"time"

	"exampaper-rag/internal/apperr"
	"exampaper-rag/internal/logger"
	"exampaper-rag/internal/models"
)

// errNoChange tells a Table that an update function decided not to write
var errNoChange = errors.New("no change")

// Admin holds the job operations that only need the job table, so a
// process that does not run the pipeline can still inspect, cancel and
// clean up jobs.
type Admin struct {
	table Table
	now   func() time.Time
	log   *logger.Logger
}

// NewAdmin creates an Admin over table
func NewAdmin(table Table, log *logger.Logger) *Admin {
	if log == nil {
		log = logger.NewNop()
	}
	return &Admin{table: table, now: time.Now, log: log.With("component", "jobs")}
}

// Status returns a snapshot of the job
func (a *Admin) Status(ctx context.Context, id string) (*models.GenerationJob, error) {
	return a.table.Get(ctx, id)
}

// Cancel stops a job that has not started parsing. Jobs already past
// synthesis fail with CancellationTooLate; terminal jobs are left alone.
func (a *Admin) Cancel(ctx context.Context, id string) (*models.GenerationJob, error) {
	job, err := a.table.Update(ctx, id, func(j *models.GenerationJob) error {
		switch j.Status {
		case models.JobPending, models.JobRetrieving, models.JobSynthesizing:
			j.Error = &models.JobError{
				Kind:    string(apperr.Cancelled),
				Stage:   j.Status,
				Message: "cancelled by request",
			}
			j.Status = models.JobFailed
			j.UpdatedAt = a.now().UTC()
			return nil
		case models.JobCompleted, models.JobFailed:
			return errNoChange
		default:
			return apperr.Errorf(apperr.CancellationTooLate, "job %s is already %s", j.ID, j.Status)
		}
	})
	if errors.Is(err, errNoChange) {
		return job, nil
	}
	if err == nil {
		a.log.Info("Job cancelled", "job_id", id)
	}
	return job, err
}

// Artifact returns the exported paper of a completed job
func (a *Admin) Artifact(ctx context.Context, id string) (*models.ArtifactRef, error) {
	job, err := a.table.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobCompleted || job.Artifact == nil {
		if job.Error != nil {
			return nil, apperr.Errorf(apperr.NotReady, "job %s is %s: %s", id, job.Status, job.Error.Kind)
		}
		return nil, apperr.Errorf(apperr.NotReady, "job %s is %s", id, job.Status)
	}
	return job.Artifact, nil
}

// Wait polls until the job is terminal or ctx ends
func (a *Admin) Wait(ctx context.Context, id string, poll time.Duration) (*models.GenerationJob, error) {
	if poll <= 0 {
		poll = time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		job, err := a.table.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cleanup removes a terminal job and its exported files
func (a *Admin) Cleanup(ctx context.Context, id string) error {
	job, err := a.table.Get(ctx, id)
	if err != nil {
		return err
	}
	if !job.Status.Terminal() {
		return apperr.Errorf(apperr.InvalidRequest, "job %s is still %s", id, job.Status)
	}
	if job.Artifact != nil {
		for _, p := range []string{job.Artifact.TextPath, job.Artifact.PDFPath, job.Artifact.JSONPath} {
			if p == "" {
				continue
			}
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				a.log.Warn("Failed to remove artifact", "job_id", id, "path", p, "error", err)
			}
		}
	}
	return a.table.Delete(ctx, id)
}

// Purge cleans up terminal jobs last updated more than olderThan ago and
// returns how many were removed.
func (a *Admin) Purge(ctx context.Context, olderThan time.Duration) (int, error) {
	jobs, err := a.table.List(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := a.now().UTC().Add(-olderThan)
	removed := 0
	for _, j := range jobs {
		if !j.Status.Terminal() || !j.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := a.Cleanup(ctx, j.ID); err != nil {
			if apperr.Is(err, apperr.JobNotFound) {
				continue
			}
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		a.log.Info("Purged old jobs", "count", removed)
	}
	return removed, nil
}
