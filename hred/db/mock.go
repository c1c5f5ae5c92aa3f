package db

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockRunRegistry is an in-memory RunRegistry.
type MockRunRegistry struct {
	mu    sync.Mutex
	runs  map[string][]Checkpoint
	clock func() time.Time
}

func NewMockRunRegistry() *MockRunRegistry {
	return &MockRunRegistry{
		runs:  make(map[string][]Checkpoint),
		clock: time.Now,
	}
}

func (m *MockRunRegistry) RecordCheckpoint(c *Checkpoint) (uuid.UUID, error) {
	if err := c.validate(); err != nil {
		return uuid.Nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.SavedAt.IsZero() {
		c.SavedAt = m.clock().UTC()
	}
	for _, existing := range m.runs[c.RunID] {
		if existing.ID == c.ID {
			return uuid.Nil, fmt.Errorf("checkpoint %s already exists", c.ID)
		}
	}
	m.runs[c.RunID] = append(m.runs[c.RunID], *c)
	return c.ID, nil
}

func (m *MockRunRegistry) Checkpoints(runID string) ([]Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]Checkpoint(nil), m.runs[runID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	return out, nil
}

func (m *MockRunRegistry) Best(runID string) (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cps := m.runs[runID]
	if len(cps) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCheckpoints, runID)
	}
	best := cps[0]
	for i := 1; i < len(cps); i++ {
		if lessCost(&cps[i], &best) {
			best = cps[i]
		}
	}
	return &best, nil
}

func (m *MockRunRegistry) Close() error {
	return nil
}
