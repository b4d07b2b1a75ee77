package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"freightflow/internal/apperrors"
	"freightflow/internal/model"
)

// Redis key layout. The status zsets are scored so ZREVRANGE yields the
// (priority desc, created_at asc) index order; the processing zset is
// scored by the last progress update for stall scans.
const (
	keyJob        = "ff:job:"          // + id → JSON record
	keyJobsAll    = "ff:jobs:all"      // zset, score = created ms
	keyJobsStatus = "ff:jobs:status:"  // + status → zset, score = rank
	keyProcessing = "ff:jobs:progress" // zset, score = last progress ms
)

// txRetries bounds the optimistic-lock retry loop around transitions.
const txRetries = 5

// RedisStore is the Redis-backed Store: one JSON record per job plus
// status/created/progress indexes kept in step transactionally.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// rank orders a status zset by priority descending then created_at
// ascending under ZREVRANGE. Priority dominates; an earlier creation
// raises the score within one priority band. Millisecond timestamps stay
// below the band width, and the whole range is exact in a float64.
func rank(j model.Job) float64 {
	return float64(j.Priority)*1e13 - float64(j.CreatedAt.UnixMilli())
}

func (s *RedisStore) jobKey(id string) string { return keyJob + id }

func statusKey(st model.JobStatus) string { return keyJobsStatus + string(st) }

// Create persists a new PENDING job.
func (s *RedisStore) Create(ctx context.Context, j model.Job) (model.Job, error) {
	if !model.ValidJobKind(j.Kind) {
		return model.Job{}, apperrors.Validation("JOB_KIND", fmt.Sprintf("unknown job kind %q", j.Kind))
	}
	if err := j.Params.Validate(); err != nil {
		return model.Job{}, apperrors.Validation("JOB_PARAMS", err.Error())
	}
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	j.Priority = model.ClampPriority(j.Priority)
	j.Status = model.JobPending
	j.Progress = 0
	if j.CreatedAt.IsZero() {
		j.CreatedAt = s.now()
	}

	blob, err := json.Marshal(j)
	if err != nil {
		return model.Job{}, apperrors.Internal("JOB_ENCODE", "failed to encode job", err)
	}

	ok, err := s.client.SetNX(ctx, s.jobKey(j.ID), blob, 0).Result()
	if err != nil {
		return model.Job{}, apperrors.Database("REDIS_WRITE", "failed to store job", err)
	}
	if !ok {
		return model.Job{}, apperrors.Conflict("JOB_EXISTS", "job id already in use")
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, keyJobsAll, redis.Z{Score: float64(j.CreatedAt.UnixMilli()), Member: j.ID})
		pipe.ZAdd(ctx, statusKey(j.Status), redis.Z{Score: rank(j), Member: j.ID})
		return nil
	})
	if err != nil {
		return model.Job{}, apperrors.Database("REDIS_INDEX", "failed to index job", err)
	}
	return j, nil
}

// Get returns the job by id.
func (s *RedisStore) Get(ctx context.Context, id string) (model.Job, error) {
	blob, err := s.client.Get(ctx, s.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Job{}, apperrors.NotFound("job", id)
	}
	if err != nil {
		return model.Job{}, apperrors.Database("REDIS_READ", "failed to read job", err)
	}
	var j model.Job
	if err := json.Unmarshal(blob, &j); err != nil {
		return model.Job{}, apperrors.Internal("JOB_DECODE", "failed to decode job", err)
	}
	return j, nil
}

// List returns jobs matching the filter, priority desc then created asc.
// The status zset narrows the scan when a status is given; other filters
// apply in process.
func (s *RedisStore) List(ctx context.Context, f Filter) ([]model.Job, error) {
	var (
		ids []string
		err error
	)
	if f.Status != "" {
		ids, err = s.client.ZRevRange(ctx, statusKey(f.Status), 0, -1).Result()
	} else {
		ids, err = s.client.ZRange(ctx, keyJobsAll, 0, -1).Result()
	}
	if err != nil {
		return nil, apperrors.Database("REDIS_READ", "failed to scan job index", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	jobs, err := s.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := jobs[:0]
	for _, j := range jobs {
		if f.Kind != "" && j.Kind != f.Kind {
			continue
		}
		if f.Region != "" && j.Params.Region != f.Region {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// fetch MGETs job records, skipping ids whose record vanished between the
// index scan and the read.
func (s *RedisStore) fetch(ctx context.Context, ids []string) ([]model.Job, error) {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.jobKey(id)
	}
	blobs, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, apperrors.Database("REDIS_READ", "failed to read jobs", err)
	}
	out := make([]model.Job, 0, len(blobs))
	for _, raw := range blobs {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var j model.Job
		if err := json.Unmarshal([]byte(str), &j); err != nil {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

// transition applies fn to the job under an optimistic WATCH transaction,
// reindexing on status change. fn mirrors the memory store's mutate
// closures.
func (s *RedisStore) transition(ctx context.Context, id string, fn func(model.Job) (model.Job, error)) (model.Job, error) {
	key := s.jobKey(id)
	var updated model.Job

	txn := func(tx *redis.Tx) error {
		blob, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return apperrors.NotFound("job", id)
		}
		if err != nil {
			return apperrors.Database("REDIS_READ", "failed to read job", err)
		}
		var j model.Job
		if err := json.Unmarshal(blob, &j); err != nil {
			return apperrors.Internal("JOB_DECODE", "failed to decode job", err)
		}
		prevStatus := j.Status

		updated, err = fn(j)
		if err != nil {
			return err
		}
		next, err := json.Marshal(updated)
		if err != nil {
			return apperrors.Internal("JOB_ENCODE", "failed to encode job", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			if prevStatus != updated.Status {
				pipe.ZRem(ctx, statusKey(prevStatus), id)
				pipe.ZAdd(ctx, statusKey(updated.Status), redis.Z{Score: rank(updated), Member: id})
			}
			if updated.Status == model.JobProcessing {
				pipe.ZAdd(ctx, keyProcessing, redis.Z{Score: float64(updated.LastProgressAt.UnixMilli()), Member: id})
			} else if prevStatus == model.JobProcessing {
				pipe.ZRem(ctx, keyProcessing, id)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < txRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue // concurrent writer moved the job, re-read and retry
		}
		if classified, ok := apperrors.As(err); ok {
			return model.Job{}, classified
		}
		return model.Job{}, apperrors.Database("REDIS_TX", "job transition failed", err)
	}
	return model.Job{}, apperrors.Conflict("JOB_CONTENTION", "job transition lost the optimistic lock repeatedly")
}

// Claim moves PENDING → PROCESSING.
func (s *RedisStore) Claim(ctx context.Context, id string) (model.Job, error) {
	return s.transition(ctx, id, func(j model.Job) (model.Job, error) {
		if !j.Status.CanTransition(model.JobProcessing) {
			return model.Job{}, apperrors.Conflict("JOB_NOT_PENDING",
				fmt.Sprintf("job is %s, not claimable", j.Status))
		}
		now := s.now()
		j.Status = model.JobProcessing
		j.StartedAt = &now
		j.LastProgressAt = now
		j.Attempts++
		return j, nil
	})
}

// Progress records forward progress on a PROCESSING job.
func (s *RedisStore) Progress(ctx context.Context, id string, pct float64) (model.Job, error) {
	return s.transition(ctx, id, func(j model.Job) (model.Job, error) {
		if j.Status != model.JobProcessing {
			return model.Job{}, apperrors.Conflict("JOB_NOT_PROCESSING",
				fmt.Sprintf("job is %s, progress not recordable", j.Status))
		}
		j.Progress = clampPct(pct)
		j.LastProgressAt = s.now()
		return j, nil
	})
}

// Complete moves PROCESSING → COMPLETED with the result reference.
func (s *RedisStore) Complete(ctx context.Context, id, resultID string) (model.Job, error) {
	if resultID == "" {
		return model.Job{}, apperrors.Validation("JOB_RESULT_ID", "completed job requires a result id")
	}
	return s.transition(ctx, id, func(j model.Job) (model.Job, error) {
		if !j.Status.CanTransition(model.JobCompleted) {
			return model.Job{}, apperrors.Conflict("JOB_NOT_PROCESSING",
				fmt.Sprintf("job is %s, cannot complete", j.Status))
		}
		now := s.now()
		j.Status = model.JobCompleted
		j.Progress = 100
		j.ResultID = resultID
		j.CompletedAt = &now
		j.ProcessingTimeMS = processingMS(j.StartedAt, now)
		return j, nil
	})
}

// Fail moves PROCESSING → FAILED recording the error.
func (s *RedisStore) Fail(ctx context.Context, id string, jobErr model.JobError) (model.Job, error) {
	if jobErr.Message == "" {
		return model.Job{}, apperrors.Validation("JOB_ERROR", "failed job requires an error message")
	}
	return s.transition(ctx, id, func(j model.Job) (model.Job, error) {
		if !j.Status.CanTransition(model.JobFailed) {
			return model.Job{}, apperrors.Conflict("JOB_NOT_PROCESSING",
				fmt.Sprintf("job is %s, cannot fail", j.Status))
		}
		now := s.now()
		j.Status = model.JobFailed
		j.Error = &jobErr
		j.CompletedAt = &now
		j.ProcessingTimeMS = processingMS(j.StartedAt, now)
		return j, nil
	})
}

// Cancel moves PENDING or PROCESSING → CANCELLED.
func (s *RedisStore) Cancel(ctx context.Context, id string) (model.Job, error) {
	return s.transition(ctx, id, func(j model.Job) (model.Job, error) {
		if !j.Status.CanTransition(model.JobCancelled) {
			return model.Job{}, apperrors.Conflict("JOB_TERMINAL",
				fmt.Sprintf("job is %s, cannot cancel", j.Status))
		}
		now := s.now()
		j.Status = model.JobCancelled
		j.CompletedAt = &now
		j.ProcessingTimeMS = processingMS(j.StartedAt, now)
		return j, nil
	})
}

// Requeue returns a PROCESSING job to PENDING after a retryable failure.
func (s *RedisStore) Requeue(ctx context.Context, id string, jobErr model.JobError) (model.Job, error) {
	return s.transition(ctx, id, func(j model.Job) (model.Job, error) {
		if j.Status != model.JobProcessing {
			return model.Job{}, apperrors.Conflict("JOB_NOT_PROCESSING",
				fmt.Sprintf("job is %s, cannot requeue", j.Status))
		}
		j.Status = model.JobPending
		j.Progress = 0
		j.Error = &jobErr
		j.StartedAt = nil
		return j, nil
	})
}

// Stalled returns PROCESSING jobs without progress since the cutoff.
func (s *RedisStore) Stalled(ctx context.Context, cutoff time.Time) ([]model.Job, error) {
	ids, err := s.client.ZRangeByScore(ctx, keyProcessing, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, apperrors.Database("REDIS_READ", "failed to scan progress index", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	jobs, err := s.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := jobs[:0]
	for _, j := range jobs {
		if j.Status == model.JobProcessing {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
