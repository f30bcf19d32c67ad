package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store used by tests and local runs without a
// database.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	meetings map[string]Meeting
	agents   map[string]Agent
	users    map[string]User
}

func NewMemory() *Memory {
	return &Memory{
		now:      time.Now,
		meetings: make(map[string]Meeting),
		agents:   make(map[string]Agent),
		users:    make(map[string]User),
	}
}

func (m *Memory) GetAgent(_ context.Context, id string) (Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return Agent{}, ErrNotFound
	}
	return a, nil
}

func (m *Memory) GetMeeting(_ context.Context, id string) (Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, ok := m.meetings[id]
	if !ok {
		return Meeting{}, ErrNotFound
	}
	return mt, nil
}

func (m *Memory) GetCompletedMeeting(_ context.Context, id string) (Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, ok := m.meetings[id]
	if !ok || mt.Status != StatusCompleted {
		return Meeting{}, ErrNotFound
	}
	return mt, nil
}

func (m *Memory) ActivateMeeting(_ context.Context, id string, at time.Time) (Meeting, error) {
	return m.update(id, func(mt *Meeting) bool {
		if !mt.Status.CanActivate() {
			return false
		}
		mt.Status = StatusActive
		mt.StartedAt = &at
		return true
	})
}

func (m *Memory) EndMeeting(_ context.Context, id string, at time.Time) (Meeting, error) {
	return m.update(id, func(mt *Meeting) bool {
		if mt.Status != StatusActive {
			return false
		}
		mt.Status = StatusProcessing
		mt.EndedAt = &at
		return true
	})
}

func (m *Memory) SetTranscriptURL(_ context.Context, id, url string) (Meeting, error) {
	return m.update(id, func(mt *Meeting) bool {
		mt.TranscriptURL = url
		return true
	})
}

func (m *Memory) SetRecordingURL(_ context.Context, id, url string) (Meeting, error) {
	return m.update(id, func(mt *Meeting) bool {
		mt.RecordingURL = url
		return true
	})
}

func (m *Memory) CompleteMeeting(_ context.Context, id, summary string) (Meeting, error) {
	return m.update(id, func(mt *Meeting) bool {
		if mt.Status != StatusProcessing {
			return false
		}
		mt.Status = StatusCompleted
		mt.Summary = summary
		return true
	})
}

func (m *Memory) CreateAgent(_ context.Context, a Agent) (Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := m.now()
	a.CreatedAt, a.UpdatedAt = now, now
	m.agents[a.ID] = a
	return a, nil
}

func (m *Memory) CreateMeeting(_ context.Context, mt Meeting) (Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mt.ID == "" {
		mt.ID = uuid.NewString()
	}
	if mt.Status == "" {
		mt.Status = StatusUpcoming
	}
	now := m.now()
	mt.CreatedAt, mt.UpdatedAt = now, now
	m.meetings[mt.ID] = mt
	return mt, nil
}

func (m *Memory) UpsertUser(_ context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *Memory) GetUserName(_ context.Context, id string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return "", ErrNotFound
	}
	return u.Name, nil
}

func (m *Memory) Close() {}

func (m *Memory) update(id string, apply func(*Meeting) bool) (Meeting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mt, ok := m.meetings[id]
	if !ok {
		return Meeting{}, ErrNotFound
	}
	if !apply(&mt) {
		return Meeting{}, ErrNotFound
	}
	mt.UpdatedAt = m.now()
	m.meetings[id] = mt
	return mt, nil
}
