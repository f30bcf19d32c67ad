// Package store persists meetings, agents and the users that own them.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a row is missing or a conditional update
// matched nothing.
var ErrNotFound = errors.New("store: not found")

type MeetingStatus string

const (
	StatusUpcoming   MeetingStatus = "upcoming"
	StatusActive     MeetingStatus = "active"
	StatusProcessing MeetingStatus = "processing"
	StatusCompleted  MeetingStatus = "completed"
	StatusCancelled  MeetingStatus = "cancelled"
)

// CanActivate reports whether a meeting in status s may move to active.
func (s MeetingStatus) CanActivate() bool {
	switch s {
	case StatusCompleted, StatusActive, StatusCancelled, StatusProcessing:
		return false
	default:
		return true
	}
}

type Meeting struct {
	ID            string
	Name          string
	UserID        string
	AgentID       string
	Status        MeetingStatus
	StartedAt     *time.Time
	EndedAt       *time.Time
	TranscriptURL string
	RecordingURL  string
	Summary       string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Agent struct {
	ID           string
	Name         string
	UserID       string
	Instructions string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type User struct {
	ID   string
	Name string
}

// Store is implemented by Postgres and Memory.
//
// The status-changing methods are compare-and-swap updates: they only touch
// a row whose current status allows the transition and report ErrNotFound
// otherwise.
type Store interface {
	GetAgent(ctx context.Context, id string) (Agent, error)
	GetMeeting(ctx context.Context, id string) (Meeting, error)
	// GetCompletedMeeting returns the meeting only if its status is completed.
	GetCompletedMeeting(ctx context.Context, id string) (Meeting, error)
	// ActivateMeeting moves an eligible meeting to active and stamps StartedAt.
	ActivateMeeting(ctx context.Context, id string, at time.Time) (Meeting, error)
	// EndMeeting moves an active meeting to processing and stamps EndedAt.
	EndMeeting(ctx context.Context, id string, at time.Time) (Meeting, error)
	SetTranscriptURL(ctx context.Context, id, url string) (Meeting, error)
	SetRecordingURL(ctx context.Context, id, url string) (Meeting, error)
	// CompleteMeeting stores the summary and moves a processing meeting to completed.
	CompleteMeeting(ctx context.Context, id, summary string) (Meeting, error)

	CreateAgent(ctx context.Context, a Agent) (Agent, error)
	CreateMeeting(ctx context.Context, m Meeting) (Meeting, error)
	UpsertUser(ctx context.Context, u User) error
	GetUserName(ctx context.Context, id string) (string, error)

	Close()
}
