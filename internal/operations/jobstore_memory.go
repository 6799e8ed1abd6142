package operations

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryJobStore is an in-memory implementation of JobStore. Jobs are
// copied on the way in and out so callers never share a job with the store.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryJobStore creates a new in-memory job store
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]*Job),
	}
}

func copyJob(job *Job) *Job {
	c := *job
	if job.Summaries != nil {
		c.Summaries = append(c.Summaries[:0:0], job.Summaries...)
	}
	return &c
}

// CreateJob creates a new job
func (s *MemoryJobStore) CreateJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

// GetJob retrieves a job by ID
func (s *MemoryJobStore) GetJob(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, fmt.Errorf("job %s not found", id)
	}
	return copyJob(job), nil
}

// UpdateJob updates an existing job
func (s *MemoryJobStore) UpdateJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; !exists {
		return fmt.Errorf("job %s not found", job.ID)
	}
	s.jobs[job.ID] = copyJob(job)
	return nil
}

// ListJobs returns jobs matching the filter, newest first
func (s *MemoryJobStore) ListJobs(filter JobFilter) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Job, 0)
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.OperationID != "" && job.OperationID != filter.OperationID {
			continue
		}
		if filter.StepID != "" && job.StepID != filter.StepID {
			continue
		}
		if !filter.Since.IsZero() && job.CreatedAt.Before(filter.Since) {
			continue
		}
		result = append(result, copyJob(job))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

// DeleteJob removes a job from the store
func (s *MemoryJobStore) DeleteJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; !exists {
		return fmt.Errorf("job %s not found", id)
	}
	delete(s.jobs, id)
	return nil
}

// CleanupOldJobs removes finished jobs created before the cutoff
func (s *MemoryJobStore) CleanupOldJobs(olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	deleted := 0
	for id, job := range s.jobs {
		if job.Status.IsTerminal() && job.CreatedAt.Before(cutoff) {
			delete(s.jobs, id)
			deleted++
		}
	}
	return deleted, nil
}

// GetStats returns job counts by status
func (s *MemoryJobStore) GetStats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]int{
		"total_jobs": len(s.jobs),
		"pending":    0,
		"running":    0,
		"completed":  0,
		"failed":     0,
		"cancelled":  0,
	}
	for _, job := range s.jobs {
		stats[string(job.Status)]++
	}
	return stats
}
