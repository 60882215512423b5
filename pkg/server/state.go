package server

import (
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marshallshelly/pebble-api/pkg/logging"
)

// State is the observable runtime state of a server. It is safe for
// concurrent use.
type State struct {
	runID   string
	started atomic.Int64
	running atomic.Bool

	requests atomic.Int64
	failures atomic.Int64

	mu       sync.Mutex
	statuses map[int]int64
	health   map[string]string
	checked  time.Time

	logs *logging.Buffer
}

// Snapshot is a point-in-time copy of State.
type Snapshot struct {
	RunID     string            `json:"run_id"`
	Running   bool              `json:"running"`
	StartedAt time.Time         `json:"started_at,omitzero"`
	Uptime    string            `json:"uptime,omitempty"`
	Requests  int64             `json:"requests"`
	Errors    int64             `json:"errors"`
	Statuses  map[int]int64     `json:"statuses"`
	Health    map[string]string `json:"datasources"`
	CheckedAt time.Time         `json:"checked_at,omitzero"`
}

// NewState creates a stopped state. logs may be nil.
func NewState(logs *logging.Buffer) *State {
	if logs == nil {
		logs = logging.NewBuffer(0)
	}
	return &State{
		runID:    uuid.NewString(),
		statuses: make(map[int]int64),
		health:   make(map[string]string),
		logs:     logs,
	}
}

// RunID identifies this server process.
func (s *State) RunID() string { return s.runID }

// Logs returns the recent log buffer.
func (s *State) Logs() *logging.Buffer { return s.logs }

// Running reports whether the listener is serving.
func (s *State) Running() bool { return s.running.Load() }

func (s *State) setRunning(v bool) {
	if v {
		s.started.Store(time.Now().UnixNano())
	}
	s.running.Store(v)
}

// Record counts one served request.
func (s *State) Record(status int) {
	s.requests.Add(1)
	if status >= 400 {
		s.failures.Add(1)
	}
	s.mu.Lock()
	s.statuses[status]++
	s.mu.Unlock()
}

// SetHealth replaces the datasource health table. Healthy backends map to "ok".
func (s *State) SetHealth(health map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health = maps.Clone(health)
	s.checked = time.Now()
}

// Healthy reports whether every known datasource is healthy.
func (s *State) Healthy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range s.health {
		if v != "ok" {
			return false
		}
	}
	return true
}

// Snapshot copies the current state.
func (s *State) Snapshot() Snapshot {
	snap := Snapshot{
		RunID:    s.runID,
		Running:  s.running.Load(),
		Requests: s.requests.Load(),
		Errors:   s.failures.Load(),
	}
	if ns := s.started.Load(); ns != 0 {
		snap.StartedAt = time.Unix(0, ns)
		if snap.Running {
			snap.Uptime = time.Since(snap.StartedAt).Round(time.Second).String()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	snap.Statuses = maps.Clone(s.statuses)
	snap.Health = maps.Clone(s.health)
	snap.CheckedAt = s.checked
	return snap
}
