package results

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

const snapshotFile = "results.jsonl"

// MemoryStore is the in-memory Store with JSONL snapshot persistence.
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]model.Result
	byJob   map[string]string
	now     func() time.Time
}

// NewMemoryStore returns an empty result store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results: make(map[string]model.Result),
		byJob:   make(map[string]string),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create persists a result exactly once. A second result for the same job
// or a reused result id is a conflict.
func (s *MemoryStore) Create(_ context.Context, r model.Result) (model.Result, error) {
	if r.JobID == "" {
		return model.Result{}, apperrors.Validation("RESULT_JOB_ID", "result requires a job id")
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[r.ID]; exists {
		return model.Result{}, apperrors.Conflict("RESULT_EXISTS", "result id already in use")
	}
	if other, exists := s.byJob[r.JobID]; exists {
		return model.Result{}, apperrors.Conflict("RESULT_JOB_TAKEN",
			fmt.Sprintf("job already has result %s", other))
	}
	s.results[r.ID] = r
	s.byJob[r.JobID] = r.ID
	return r, nil
}

// Get returns the result by id.
func (s *MemoryStore) Get(_ context.Context, id string) (model.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	if !ok {
		return model.Result{}, apperrors.NotFound("result", id)
	}
	return r, nil
}

// GetByJob returns the result owned by the job.
func (s *MemoryStore) GetByJob(_ context.Context, jobID string) (model.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byJob[jobID]
	if !ok {
		return model.Result{}, apperrors.NotFound("result for job", jobID)
	}
	return s.results[id], nil
}

// SaveSnapshot persists every result to <dir>/results.jsonl via tmp+rename.
func (s *MemoryStore) SaveSnapshot(dir string) error {
	s.mu.RLock()
	results := make([]model.Result, 0, len(s.results))
	for _, r := range s.results {
		results = append(results, r)
	}
	s.mu.RUnlock()

	if len(results) == 0 {
		return nil
	}
	sort.Slice(results, func(i, j int) bool {
		if !results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].CreatedAt.Before(results[j].CreatedAt)
		}
		return results[i].ID < results[j].ID
	})

	path := filepath.Join(dir, snapshotFile)
	tmpPath := path + ".tmp"

	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}

	writer := bufio.NewWriter(file)
	encoder := json.NewEncoder(writer)
	for _, r := range results {
		if err := encoder.Encode(r); err != nil {
			file.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to encode result: %w", err)
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

	log.Info().Int("count", len(results)).Str("path", path).Msg("Result snapshot saved")
	return nil
}

// LoadSnapshot restores results from <dir>/results.jsonl. A missing file is
// not an error; malformed lines are skipped.
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
	scanner.Buffer(make([]byte, 0, 1024*1024), 8*1024*1024)
	for scanner.Scan() {
		var r model.Result
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			log.Warn().Err(err).Msg("Skipping invalid JSON line in result snapshot")
			continue
		}
		s.mu.Lock()
		s.results[r.ID] = r
		s.byJob[r.JobID] = r.ID
		s.mu.Unlock()
		count++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading snapshot: %w", err)
	}

	log.Info().Int("count", count).Str("path", path).Msg("Result snapshot loaded")
	return nil
}
