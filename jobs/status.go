package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"tourdoc/apperr"
)

type State string

const (
	StateQueued  State = "queued"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Status is what callers see of a job. PDF and Docx are file names under the
// output directory, set once the job is done.
type Status struct {
	JobID       string    `json:"jobId"`
	ItineraryID string    `json:"itineraryId"`
	UserID      string    `json:"userId,omitempty"`
	State       State     `json:"state"`
	Stage       string    `json:"stage,omitempty"`
	Error       string    `json:"error,omitempty"`
	PDF         string    `json:"pdf,omitempty"`
	Docx        string    `json:"docx,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type StatusStore interface {
	Put(ctx context.Context, s Status) error
	Get(ctx context.Context, jobID string) (Status, error)
}

func statusNotFound(jobID string) error {
	return apperr.NotFound("jobs.Status", "job %q not found", jobID)
}

type MemoryStatusStore struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{statuses: make(map[string]Status)}
}

func (m *MemoryStatusStore) Put(_ context.Context, s Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[s.JobID] = s
	return nil
}

func (m *MemoryStatusStore) Get(_ context.Context, jobID string) (Status, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[jobID]
	if !ok {
		return Status{}, statusNotFound(jobID)
	}
	return s, nil
}

// RedisStatusStore keeps statuses as JSON under job:<id> so every instance
// behind a load balancer can answer status queries.
type RedisStatusStore struct {
	client *redis.Client
	ttl    time.Duration
}

const DefaultStatusTTL = 24 * time.Hour

func NewRedisStatusStore(client *redis.Client, ttl time.Duration) *RedisStatusStore {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	return &RedisStatusStore{client: client, ttl: ttl}
}

func statusKey(jobID string) string {
	return "job:" + jobID
}

func (r *RedisStatusStore) Put(ctx context.Context, s Status) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, statusKey(s.JobID), data, r.ttl).Err()
}

func (r *RedisStatusStore) Get(ctx context.Context, jobID string) (Status, error) {
	data, err := r.client.Get(ctx, statusKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Status{}, statusNotFound(jobID)
	}
	if err != nil {
		return Status{}, err
	}
	var s Status
	if err := json.Unmarshal(data, &s); err != nil {
		return Status{}, err
	}
	return s, nil
}
