package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const meetingColumns = `id, name, user_id, agent_id, status, started_at, ended_at,
	transcript_url, recording_url, summary, created_at, updated_at`

const agentColumns = `id, name, user_id, instructions, created_at, updated_at`

// Postgres is the pgx-backed Store.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and verifies the connection.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Pool() *pgxpool.Pool { return p.pool }

func (p *Postgres) Close() { p.pool.Close() }

func (p *Postgres) GetAgent(ctx context.Context, id string) (Agent, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+agentColumns+` FROM agents WHERE id = $1`, id)
	return scanAgent(row)
}

func (p *Postgres) GetMeeting(ctx context.Context, id string) (Meeting, error) {
	row := p.pool.QueryRow(ctx, `SELECT `+meetingColumns+` FROM meetings WHERE id = $1`, id)
	return scanMeeting(row)
}

func (p *Postgres) GetCompletedMeeting(ctx context.Context, id string) (Meeting, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+meetingColumns+` FROM meetings WHERE id = $1 AND status = $2`,
		id, string(StatusCompleted))
	return scanMeeting(row)
}

func (p *Postgres) ActivateMeeting(ctx context.Context, id string, at time.Time) (Meeting, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE meetings SET status = $2, started_at = $3, updated_at = now()
		WHERE id = $1 AND status NOT IN ('completed', 'active', 'cancelled', 'processing')
		RETURNING `+meetingColumns,
		id, string(StatusActive), at)
	return scanMeeting(row)
}

func (p *Postgres) EndMeeting(ctx context.Context, id string, at time.Time) (Meeting, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE meetings SET status = $2, ended_at = $3, updated_at = now()
		WHERE id = $1 AND status = $4
		RETURNING `+meetingColumns,
		id, string(StatusProcessing), at, string(StatusActive))
	return scanMeeting(row)
}

func (p *Postgres) SetTranscriptURL(ctx context.Context, id, url string) (Meeting, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE meetings SET transcript_url = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+meetingColumns,
		id, url)
	return scanMeeting(row)
}

func (p *Postgres) SetRecordingURL(ctx context.Context, id, url string) (Meeting, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE meetings SET recording_url = $2, updated_at = now()
		WHERE id = $1
		RETURNING `+meetingColumns,
		id, url)
	return scanMeeting(row)
}

func (p *Postgres) CompleteMeeting(ctx context.Context, id, summary string) (Meeting, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE meetings SET status = $2, summary = $3, updated_at = now()
		WHERE id = $1 AND status = $4
		RETURNING `+meetingColumns,
		id, string(StatusCompleted), summary, string(StatusProcessing))
	return scanMeeting(row)
}

func (p *Postgres) CreateAgent(ctx context.Context, a Agent) (Agent, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	row := p.pool.QueryRow(ctx, `
		INSERT INTO agents (id, name, user_id, instructions)
		VALUES ($1, $2, $3, $4)
		RETURNING `+agentColumns,
		a.ID, a.Name, a.UserID, a.Instructions)
	return scanAgent(row)
}

func (p *Postgres) CreateMeeting(ctx context.Context, m Meeting) (Meeting, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Status == "" {
		m.Status = StatusUpcoming
	}
	row := p.pool.QueryRow(ctx, `
		INSERT INTO meetings (id, name, user_id, agent_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+meetingColumns,
		m.ID, m.Name, m.UserID, m.AgentID, string(m.Status))
	return scanMeeting(row)
}

func (p *Postgres) UpsertUser(ctx context.Context, u User) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO users (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`,
		u.ID, u.Name)
	return err
}

func (p *Postgres) GetUserName(ctx context.Context, id string) (string, error) {
	var name string
	err := p.pool.QueryRow(ctx, `SELECT name FROM users WHERE id = $1`, id).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return name, err
}

func scanMeeting(row pgx.Row) (Meeting, error) {
	var m Meeting
	var status string
	err := row.Scan(
		&m.ID, &m.Name, &m.UserID, &m.AgentID, &status, &m.StartedAt, &m.EndedAt,
		&m.TranscriptURL, &m.RecordingURL, &m.Summary, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Meeting{}, ErrNotFound
	}
	if err != nil {
		return Meeting{}, err
	}
	m.Status = MeetingStatus(status)
	return m, nil
}

func scanAgent(row pgx.Row) (Agent, error) {
	var a Agent
	err := row.Scan(&a.ID, &a.Name, &a.UserID, &a.Instructions, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Agent{}, ErrNotFound
	}
	return a, err
}
