package jobs

import (
	"errors"
	"fmt"
	"sync"

	"sra-fetch/internal/domain"
)

// ErrUnknownJob is returned for an index outside the batch.
var ErrUnknownJob = errors.New("unknown job")

// ErrInvalidTransition is returned when a status change breaks the job state machine.
var ErrInvalidTransition = errors.New("invalid job transition")

// Manager tracks every job of one batch and its transitions.
type Manager struct {
	mu   sync.RWMutex
	jobs []domain.Job
}

// NewManager creates one queued job per accession, keeping input order.
func NewManager(accessions []string) *Manager {
	jobs := make([]domain.Job, len(accessions))
	for i, acc := range accessions {
		jobs[i] = domain.Job{
			ID:        fmt.Sprintf("job-%d", i+1),
			Index:     i,
			Accession: acc,
			Status:    domain.JobStatusQueued,
		}
	}
	return &Manager{jobs: jobs}
}

// Transition validates and applies a state transition for one job.
func (m *Manager) Transition(index int, status domain.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.job(index)
	if err != nil {
		return err
	}
	if status == job.Status {
		return nil
	}
	if !isValidTransition(job.Status, status) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, job.ID, job.Status, status)
	}

	job.Status = status
	return nil
}

// Fail moves a running job to failed and records the failing step.
func (m *Manager) Fail(index int, step domain.Step, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.job(index)
	if err != nil {
		return err
	}
	if !isValidTransition(job.Status, domain.JobStatusFailed) {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, job.ID, job.Status, domain.JobStatusFailed)
	}

	job.Status = domain.JobStatusFailed
	job.FailedStep = step
	if cause != nil {
		job.Error = cause.Error()
	}
	return nil
}

// Get returns a snapshot of one job.
func (m *Manager) Get(index int) (domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if index < 0 || index >= len(m.jobs) {
		return domain.Job{}, fmt.Errorf("%w: index %d", ErrUnknownJob, index)
	}
	return m.jobs[index], nil
}

// Snapshot returns a copy of every job in input order.
func (m *Manager) Snapshot() []domain.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Job(nil), m.jobs...)
}

// Counts tallies jobs by status.
func (m *Manager) Counts() map[domain.JobStatus]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[domain.JobStatus]int)
	for _, job := range m.jobs {
		counts[job.Status]++
	}
	return counts
}

// CancelQueued moves every still-queued job to cancelled and returns how many moved.
func (m *Manager) CancelQueued() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for i := range m.jobs {
		if m.jobs[i].Status == domain.JobStatusQueued {
			m.jobs[i].Status = domain.JobStatusCancelled
			n++
		}
	}
	return n
}

// job returns a pointer into the batch; callers hold the lock.
func (m *Manager) job(index int) (*domain.Job, error) {
	if index < 0 || index >= len(m.jobs) {
		return nil, fmt.Errorf("%w: index %d", ErrUnknownJob, index)
	}
	return &m.jobs[index], nil
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to domain.JobStatus) bool {
	switch from {
	case domain.JobStatusQueued:
		return to == domain.JobStatusPrefetching || to == domain.JobStatusCancelled
	case domain.JobStatusPrefetching:
		return to == domain.JobStatusConverting || to == domain.JobStatusFailed || to == domain.JobStatusCancelled
	case domain.JobStatusConverting:
		return to == domain.JobStatusDone || to == domain.JobStatusFailed || to == domain.JobStatusCancelled
	default:
		return false
	}
}
