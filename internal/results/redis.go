package results

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"freightflow/internal/apperrors"
	"freightflow/internal/model"
)

// Redis key layout. The job index key holds the owning result id so the
// write-once guarantee reduces to two SETNX calls.
const (
	keyResult    = "ff:result:"     // + id → JSON record
	keyResultJob = "ff:result:job:" // + job id → result id
)

// RedisStore is the Redis-backed Store.
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

func (s *RedisStore) resultKey(id string) string { return keyResult + id }

func (s *RedisStore) jobKey(jobID string) string { return keyResultJob + jobID }

// Create persists a result exactly once. The job index is claimed first so
// a duplicate completion loses before the record is written.
func (s *RedisStore) Create(ctx context.Context, r model.Result) (model.Result, error) {
	if r.JobID == "" {
		return model.Result{}, apperrors.Validation("RESULT_JOB_ID", "result requires a job id")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}

	blob, err := json.Marshal(r)
	if err != nil {
		return model.Result{}, apperrors.Internal("RESULT_ENCODE", "failed to encode result", err)
	}

	claimed, err := s.client.SetNX(ctx, s.jobKey(r.JobID), r.ID, 0).Result()
	if err != nil {
		return model.Result{}, apperrors.Database("REDIS_WRITE", "failed to claim job index", err)
	}
	if !claimed {
		other, _ := s.client.Get(ctx, s.jobKey(r.JobID)).Result()
		return model.Result{}, apperrors.Conflict("RESULT_JOB_TAKEN",
			fmt.Sprintf("job already has result %s", other))
	}

	stored, err := s.client.SetNX(ctx, s.resultKey(r.ID), blob, 0).Result()
	if err != nil {
		return model.Result{}, apperrors.Database("REDIS_WRITE", "failed to store result", err)
	}
	if !stored {
		s.client.Del(ctx, s.jobKey(r.JobID))
		return model.Result{}, apperrors.Conflict("RESULT_EXISTS", "result id already in use")
	}
	return r, nil
}

// Get returns the result by id.
func (s *RedisStore) Get(ctx context.Context, id string) (model.Result, error) {
	blob, err := s.client.Get(ctx, s.resultKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Result{}, apperrors.NotFound("result", id)
	}
	if err != nil {
		return model.Result{}, apperrors.Database("REDIS_READ", "failed to read result", err)
	}
	var r model.Result
	if err := json.Unmarshal(blob, &r); err != nil {
		return model.Result{}, apperrors.Internal("RESULT_DECODE", "failed to decode result", err)
	}
	return r, nil
}

// GetByJob returns the result owned by the job.
func (s *RedisStore) GetByJob(ctx context.Context, jobID string) (model.Result, error) {
	id, err := s.client.Get(ctx, s.jobKey(jobID)).Result()
	if errors.Is(err, redis.Nil) {
		return model.Result{}, apperrors.NotFound("result for job", jobID)
	}
	if err != nil {
		return model.Result{}, apperrors.Database("REDIS_READ", "failed to read job index", err)
	}
	return s.Get(ctx, id)
}
