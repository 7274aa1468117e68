package jobs

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"exampaper-rag/internal/apperr"
	"exampaper-rag/internal/models"
)

func newJob(status models.JobStatus, updated time.Time) *models.GenerationJob {
	return &models.GenerationJob{
		ID:        uuid.NewString(),
		Status:    status,
		Params:    models.JobParams{TemplateID: "sample-80", Budget: 40, Sources: []models.SourceWeighting{{DocumentID: "T1", Weight: 100}}},
		CreatedAt: updated,
		UpdatedAt: updated,
	}
}

// exerciseTable runs the behaviour every Table must share
func exerciseTable(t *testing.T, table Table) {
	ctx := context.Background()
	job := newJob(models.JobPending, time.Now().UTC().Truncate(time.Second))

	require.NoError(t, table.Insert(ctx, job))
	assert.True(t, apperr.Is(table.Insert(ctx, job), apperr.InvalidRequest))

	got, err := table.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, got.Status)
	assert.Equal(t, "T1", got.Params.Sources[0].DocumentID)

	_, err = table.Get(ctx, "missing")
	assert.True(t, apperr.Is(err, apperr.JobNotFound))

	updated, err := table.Update(ctx, job.ID, func(j *models.GenerationJob) error {
		j.Status = models.JobRetrieving
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, models.JobRetrieving, updated.Status)

	current, err := table.Update(ctx, job.ID, func(j *models.GenerationJob) error {
		j.Status = models.JobFailed
		return errNoChange
	})
	assert.ErrorIs(t, err, errNoChange)
	assert.Equal(t, models.JobRetrieving, current.Status)
	got, err = table.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobRetrieving, got.Status, "a rejected update must not be stored")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := table.Update(ctx, job.ID, func(j *models.GenerationJob) error {
				j.Params.Instructions += "x"
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	got, err = table.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Len(t, got.Params.Instructions, 20)

	list, err := table.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, job.ID, list[0].ID)

	require.NoError(t, table.Delete(ctx, job.ID))
	assert.True(t, apperr.Is(table.Delete(ctx, job.ID), apperr.JobNotFound))
	_, err = table.Update(ctx, job.ID, func(*models.GenerationJob) error { return nil })
	assert.True(t, apperr.Is(err, apperr.JobNotFound))
}

func TestMemoryTable(t *testing.T) {
	exerciseTable(t, NewMemoryTable())
}

func TestMemoryTableReturnsCopies(t *testing.T) {
	ctx := context.Background()
	table := NewMemoryTable()
	job := newJob(models.JobPending, time.Now())
	require.NoError(t, table.Insert(ctx, job))

	got, err := table.Get(ctx, job.ID)
	require.NoError(t, err)
	got.Params.Sources[0].DocumentID = "changed"

	again, err := table.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "T1", again.Params.Sources[0].DocumentID)
}

func TestRedisTable(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	table, err := NewRedisTable(context.Background(), addr, "papergen:test:"+uuid.NewString()+":")
	require.NoError(t, err)
	defer table.Close()

	exerciseTable(t, table)
}
