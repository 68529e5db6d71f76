package job

import (
	"errors"
	"sync"
)

var (
	// ErrNotFound indicates no job with the given id exists.
	ErrNotFound = errors.New("job not found")
	// ErrNotOwner indicates the job belongs to a different caller.
	ErrNotOwner = errors.New("job owned by another user")
)

// Store is the in-process job registry. Reads copy the record out so
// callers never observe a partial transition.
type Store struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewStore creates an empty registry.
func NewStore() *Store {
	return &Store{jobs: make(map[string]*Job)}
}

// Put registers a job.
func (s *Store) Put(j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
}

// Get returns a copy of the job.
func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return *j, nil
}

// GetOwned returns a copy of the job after checking ownership.
func (s *Store) GetOwned(id, owner string) (Job, error) {
	j, err := s.Get(id)
	if err != nil {
		return Job{}, err
	}
	if j.Owner != owner {
		return Job{}, ErrNotOwner
	}
	return j, nil
}

// Update applies fn to the job under the write lock, so a transition
// and its associated fields land atomically.
func (s *Store) Update(id string, fn func(*Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	fn(j)
	return nil
}

// Delete removes the job from the registry.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
}

// List returns copies of all registered jobs.
func (s *Store) List() []Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	return out
}
