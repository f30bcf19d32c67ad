// Package call connects AI agents to live meeting calls and ends calls. The
// calls live on the same video service that sends the webhooks.
package call

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vango-go/meetai/pkg/core"
)

// AgentSession seeds the realtime agent joining a call.
type AgentSession struct {
	AgentID      string `json:"agent_id"`
	AgentName    string `json:"agent_name"`
	Instructions string `json:"instructions"`
	MeetingID    string `json:"meeting_id"`
}

type Service interface {
	ConnectAgent(ctx context.Context, callType, callID string, s AgentSession) error
	EndCall(ctx context.Context, callType, callID string) error
}

// QuotaMessage is returned when the realtime agent backend is out of quota.
const QuotaMessage = "OpenAI API quota exceeded or no credit. Please check your OpenAI account."

// VideoCalls is the part of the video API the agent flow uses.
type VideoCalls interface {
	AddMember(ctx context.Context, callType, callID, userID string) error
	End(ctx context.Context, callType, callID string) error
}

// AgentBridge attaches a realtime model to a call as a participant. The
// returned Closer detaches it.
type AgentBridge interface {
	Connect(ctx context.Context, callType, callID string, s AgentSession) (io.Closer, error)
}

// Calls adds the agent user to the call, attaches the realtime model through
// the bridge and keeps one attachment per call until the call ends.
type Calls struct {
	video  VideoCalls
	bridge AgentBridge
	logger *slog.Logger

	mu     sync.Mutex
	agents map[string]io.Closer
}

func New(video VideoCalls, bridge AgentBridge, logger *slog.Logger) *Calls {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calls{
		video:  video,
		bridge: bridge,
		logger: logger,
		agents: make(map[string]io.Closer),
	}
}

// CID is the call id the video service uses in events: "<type>:<id>".
func CID(callType, callID string) string {
	return callType + ":" + callID
}

func (c *Calls) ConnectAgent(ctx context.Context, callType, callID string, s AgentSession) error {
	if err := c.video.AddMember(ctx, callType, callID, s.AgentID); err != nil {
		return classify("add agent", err)
	}
	conn, err := c.bridge.Connect(ctx, callType, callID, s)
	if err != nil {
		return classify("connect agent", err)
	}

	cid := CID(callType, callID)
	c.mu.Lock()
	prev := c.agents[cid]
	c.agents[cid] = conn
	c.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}
	c.logger.Info("agent connected", "call_cid", cid, "agent_id", s.AgentID)
	return nil
}

func (c *Calls) EndCall(ctx context.Context, callType, callID string) error {
	c.detach(CID(callType, callID))
	if err := c.video.End(ctx, callType, callID); err != nil {
		return classify("end call", err)
	}
	return nil
}

// Agents reports how many calls have an attached agent.
func (c *Calls) Agents() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.agents)
}

// Close detaches every agent.
func (c *Calls) Close() error {
	c.mu.Lock()
	agents := c.agents
	c.agents = make(map[string]io.Closer)
	c.mu.Unlock()

	var errs []error
	for _, conn := range agents {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (c *Calls) detach(cid string) {
	c.mu.Lock()
	conn := c.agents[cid]
	delete(c.agents, cid)
	c.mu.Unlock()
	if conn != nil {
		if err := conn.Close(); err != nil {
			c.logger.Warn("detach agent failed", "call_cid", cid, "error", err)
		}
	}
}

// StatusError is a non-2xx answer from a call backend.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("http %d", e.StatusCode)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func classify(op string, err error) error {
	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusPaymentRequired {
		return core.NewQuotaError(QuotaMessage, err)
	}
	if core.LooksLikeQuota(err.Error()) {
		return core.NewQuotaError(QuotaMessage, err)
	}
	return core.NewProviderError("video", fmt.Errorf("%s: %w", op, err))
}
