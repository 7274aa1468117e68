package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"exampaper-rag/internal/apperr"
	"exampaper-rag/internal/models"
)

// maxTxRetries bounds optimistic-lock retries in Update
const maxTxRetries = 16

// RedisTable stores each job as a JSON string under prefix+id
type RedisTable struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisTable connects to addr and verifies the connection
func NewRedisTable(ctx context.Context, addr, prefix string) (*RedisTable, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisTable{rdb: rdb, prefix: prefix}, nil
}

func (t *RedisTable) key(id string) string {
	return t.prefix + id
}

func (t *RedisTable) Insert(ctx context.Context, job *models.GenerationJob) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	ok, err := t.rdb.SetNX(ctx, t.key(job.ID), raw, 0).Result()
	if err != nil {
		return fmt.Errorf("redis insert job %s: %w", job.ID, err)
	}
	if !ok {
		return apperr.Errorf(apperr.InvalidRequest, "job %s already exists", job.ID)
	}
	return nil
}

func (t *RedisTable) Get(ctx context.Context, id string) (*models.GenerationJob, error) {
	raw, err := t.rdb.Get(ctx, t.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperr.Errorf(apperr.JobNotFound, "job %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get job %s: %w", id, err)
	}
	return decodeJob(raw)
}

// Update uses WATCH/MULTI so concurrent writers to the same job never
// overwrite each other; a conflicting write makes the transaction retry.
func (t *RedisTable) Update(ctx context.Context, id string, fn func(*models.GenerationJob) error) (*models.GenerationJob, error) {
	key := t.key(id)
	var (
		result *models.GenerationJob
		fnErr  error
	)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return apperr.Errorf(apperr.JobNotFound, "job %s not found", id)
		}
		if err != nil {
			return err
		}
		job, err := decodeJob(raw)
		if err != nil {
			return err
		}
		current := job.Clone()
		if fnErr = fn(job); fnErr != nil {
			result = current
			return nil
		}
		next, err := json.Marshal(job)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		result = job
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		fnErr = nil
		err := t.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if apperr.Is(err, apperr.JobNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("redis update job %s: %w", id, err)
		}
		return result, fnErr
	}
	return nil, fmt.Errorf("redis update job %s: too many concurrent writers", id)
}

func (t *RedisTable) Delete(ctx context.Context, id string) error {
	n, err := t.rdb.Del(ctx, t.key(id)).Result()
	if err != nil {
		return fmt.Errorf("redis delete job %s: %w", id, err)
	}
	if n == 0 {
		return apperr.Errorf(apperr.JobNotFound, "job %s not found", id)
	}
	return nil
}

func (t *RedisTable) List(ctx context.Context) ([]*models.GenerationJob, error) {
	var out []*models.GenerationJob
	iter := t.rdb.Scan(ctx, 0, t.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		raw, err := t.rdb.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			// deleted between SCAN and GET
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("redis get %s: %w", iter.Val(), err)
		}
		job, err := decodeJob(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	sortJobs(out)
	return out, nil
}

// Close releases the connection pool
func (t *RedisTable) Close() error {
	return t.rdb.Close()
}

func decodeJob(raw []byte) (*models.GenerationJob, error) {
	var job models.GenerationJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}
