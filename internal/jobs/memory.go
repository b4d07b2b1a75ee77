package jobs

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"freightflow/internal/apperrors"
	"freightflow/internal/model"
)

const snapshotFile = "jobs.jsonl"

// MemoryStore is the in-memory Store with JSONL snapshot persistence.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]model.Job
	now  func() time.Time
}

// NewMemoryStore returns an empty job store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]model.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a new PENDING job.
func (s *MemoryStore) Create(_ context.Context, j model.Job) (model.Job, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[j.ID]; exists {
		return model.Job{}, apperrors.Conflict("JOB_EXISTS", "job id already in use")
	}
	s.jobs[j.ID] = j
	return j, nil
}

// Get returns the job by id.
func (s *MemoryStore) Get(_ context.Context, id string) (model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return model.Job{}, apperrors.NotFound("job", id)
	}
	return j, nil
}

// List returns jobs matching the filter, priority desc then created asc.
func (s *MemoryStore) List(_ context.Context, f Filter) ([]model.Job, error) {
	s.mu.RLock()
	out := make([]model.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if f.Status != "" && j.Status != f.Status {
			continue
		}
		if f.Kind != "" && j.Kind != f.Kind {
			continue
		}
		if f.Region != "" && j.Params.Region != f.Region {
			continue
		}
		out = append(out, j)
	}
	s.mu.RUnlock()

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

// mutate runs fn on the job under the write lock. fn returns the updated
// record or an error; the swap is atomic with the status checks inside fn.
func (s *MemoryStore) mutate(id string, fn func(model.Job) (model.Job, error)) (model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return model.Job{}, apperrors.NotFound("job", id)
	}
	updated, err := fn(j)
	if err != nil {
		return model.Job{}, err
	}
	s.jobs[id] = updated
	return updated, nil
}

// Claim moves PENDING → PROCESSING.
func (s *MemoryStore) Claim(_ context.Context, id string) (model.Job, error) {
	return s.mutate(id, func(j model.Job) (model.Job, error) {
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
func (s *MemoryStore) Progress(_ context.Context, id string, pct float64) (model.Job, error) {
	return s.mutate(id, func(j model.Job) (model.Job, error) {
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
func (s *MemoryStore) Complete(_ context.Context, id, resultID string) (model.Job, error) {
	if resultID == "" {
		return model.Job{}, apperrors.Validation("JOB_RESULT_ID", "completed job requires a result id")
	}
	return s.mutate(id, func(j model.Job) (model.Job, error) {
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
func (s *MemoryStore) Fail(_ context.Context, id string, jobErr model.JobError) (model.Job, error) {
	if jobErr.Message == "" {
		return model.Job{}, apperrors.Validation("JOB_ERROR", "failed job requires an error message")
	}
	return s.mutate(id, func(j model.Job) (model.Job, error) {
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
func (s *MemoryStore) Cancel(_ context.Context, id string) (model.Job, error) {
	return s.mutate(id, func(j model.Job) (model.Job, error) {
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
func (s *MemoryStore) Requeue(_ context.Context, id string, jobErr model.JobError) (model.Job, error) {
	return s.mutate(id, func(j model.Job) (model.Job, error) {
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
func (s *MemoryStore) Stalled(_ context.Context, cutoff time.Time) ([]model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Job
	for _, j := range s.jobs {
		if j.Status == model.JobProcessing && !j.LastProgressAt.After(cutoff) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveSnapshot persists every job to <dir>/jobs.jsonl via tmp+rename.
func (s *MemoryStore) SaveSnapshot(dir string) error {
	s.mu.RLock()
	jobs := make([]model.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.RUnlock()

	if len(jobs) == 0 {
		return nil
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})

	path := filepath.Join(dir, snapshotFile)
	tmpPath := path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}

	writer := bufio.NewWriter(file)
	encoder := json.NewEncoder(writer)
	for _, j := range jobs {
		if err := encoder.Encode(j); err != nil {
			file.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to encode job: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename snapshot: %w", err)
	}

	log.Info().Int("count", len(jobs)).Str("path", path).Msg("Job snapshot saved")
	return nil
}

// LoadSnapshot restores jobs from <dir>/jobs.jsonl. A missing file is not
// an error; malformed lines are skipped.
func (s *MemoryStore) LoadSnapshot(dir string) error {
	path := filepath.Join(dir, snapshotFile)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer file.Close()

	count := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var j model.Job
		if err := json.Unmarshal(scanner.Bytes(), &j); err != nil {
			log.Warn().Err(err).Msg("Skipping invalid JSON line in job snapshot")
			continue
		}
		s.mu.Lock()
		s.jobs[j.ID] = j
		s.mu.Unlock()
		count++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading snapshot: %w", err)
	}

	log.Info().Int("count", count).Str("path", path).Msg("Job snapshot loaded")
	return nil
}

func clampPct(pct float64) float64 {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func processingMS(started *time.Time, done time.Time) int64 {
	if started == nil {
		return 0
	}
	return done.Sub(*started).Milliseconds()
}
