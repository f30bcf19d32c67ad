package webhook

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/vango-go/meetai/pkg/call"
	"github.com/vango-go/meetai/pkg/chat"
	"github.com/vango-go/meetai/pkg/core"
	"github.com/vango-go/meetai/pkg/jobs"
	"github.com/vango-go/meetai/pkg/llm"
	"github.com/vango-go/meetai/pkg/store"
)

const (
	DefaultCallType     = "default"
	DefaultChannelType  = "messaging"
	DefaultHistoryLimit = 5
)

// Dispatcher applies one verified event. Every returned error is a
// *core.Error or wraps one, except unexpected store failures.
type Dispatcher struct {
	Store store.Store
	Calls call.Service
	Chat  chat.Client
	LLM   llm.Client
	Jobs  jobs.Queue

	Logger *slog.Logger
	Now    func() time.Time

	CallType     string
	ChannelType  string
	HistoryLimit int
	MaxTokens    int
	Temperature  float64
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Dispatcher) callType(fromCID string) string {
	if fromCID != "" {
		return fromCID
	}
	if d.CallType != "" {
		return d.CallType
	}
	return DefaultCallType
}

func (d *Dispatcher) channelType() string {
	if d.ChannelType != "" {
		return d.ChannelType
	}
	return DefaultChannelType
}

var (
	errMissingMeetingID = core.NewInvalidRequestErrorWithParam("Missing meetingId", "meetingId")
	errMeetingNotFound  = core.NewNotFoundError("Meeting not found")
	errAgentNotFound    = core.NewNotFoundError("Agent not found")
)

// Dispatch routes p to the handler for its kind. Unknown kinds are accepted
// without side effects.
func (d *Dispatcher) Dispatch(ctx context.Context, p Payload) error {
	kind := p.Kind()
	d.logger().Debug("webhook event", "kind", string(kind), "type", p.Type)

	switch kind {
	case KindSessionStarted:
		return d.sessionStarted(ctx, p)
	case KindSessionParticipantLeft:
		return d.participantLeft(ctx, p)
	case KindSessionEnded:
		return d.sessionEnded(ctx, p)
	case KindTranscriptionReady:
		return d.transcriptionReady(ctx, p)
	case KindRecordingReady:
		return d.recordingReady(ctx, p)
	case KindMessageNew:
		return d.messageNew(ctx, p)
	default:
		return nil
	}
}

func (d *Dispatcher) sessionStarted(ctx context.Context, p Payload) error {
	meetingID := p.CustomMeetingID()
	if meetingID == "" {
		return errMissingMeetingID
	}

	meeting, err := d.Store.ActivateMeeting(ctx, meetingID, d.now())
	if errors.Is(err, store.ErrNotFound) {
		return errMeetingNotFound
	}
	if err != nil {
		return err
	}

	agent, err := d.Store.GetAgent(ctx, meeting.AgentID)
	if errors.Is(err, store.ErrNotFound) {
		return errAgentNotFound
	}
	if err != nil {
		return err
	}

	callType, _ := SplitCallCID(p.CallCID)
	err = d.Calls.ConnectAgent(ctx, d.callType(callType), meetingID, call.AgentSession{
		AgentID:      agent.ID,
		AgentName:    agent.Name,
		Instructions: agent.Instructions,
		MeetingID:    meetingID,
	})
	if err != nil {
		d.logger().Error("connect agent failed", "meeting_id", meetingID, "agent_id", agent.ID, "error", err)
		if core.IsType(err, core.ErrQuota) {
			return err
		}
		return core.NewAPIError("Agent integration failed").Wrap(err)
	}
	return nil
}

func (d *Dispatcher) participantLeft(ctx context.Context, p Payload) error {
	callType, meetingID := SplitCallCID(p.CallCID)
	if meetingID == "" {
		return errMissingMeetingID
	}
	if err := d.Calls.EndCall(ctx, d.callType(callType), meetingID); err != nil {
		d.logger().Error("end call failed", "meeting_id", meetingID, "error", err)
		return core.NewAPIError("Failed to end call").Wrap(err)
	}
	return nil
}

func (d *Dispatcher) sessionEnded(ctx context.Context, p Payload) error {
	meetingID := p.CustomMeetingID()
	if meetingID == "" {
		return errMissingMeetingID
	}
	_, err := d.Store.EndMeeting(ctx, meetingID, d.now())
	if errors.Is(err, store.ErrNotFound) {
		d.logger().Info("session ended for inactive meeting", "meeting_id", meetingID)
		return nil
	}
	return err
}

func (d *Dispatcher) transcriptionReady(ctx context.Context, p Payload) error {
	_, meetingID := SplitCallCID(p.CallCID)
	if meetingID == "" {
		return errMissingMeetingID
	}
	url := ""
	if p.CallTranscription != nil {
		url = strings.TrimSpace(p.CallTranscription.URL)
	}

	meeting, err := d.Store.SetTranscriptURL(ctx, meetingID, url)
	if errors.Is(err, store.ErrNotFound) {
		return errMeetingNotFound
	}
	if err != nil {
		return err
	}

	if err := d.Jobs.Enqueue(ctx, jobs.Job{
		Name:          jobs.ProcessingJobName,
		MeetingID:     meeting.ID,
		TranscriptURL: meeting.TranscriptURL,
	}); err != nil {
		return core.NewAPIError("Failed to enqueue meeting processing").Wrap(err)
	}
	return nil
}

func (d *Dispatcher) recordingReady(ctx context.Context, p Payload) error {
	_, meetingID := SplitCallCID(p.CallCID)
	if meetingID == "" {
		return errMissingMeetingID
	}
	url := ""
	if p.CallRecording != nil {
		url = strings.TrimSpace(p.CallRecording.URL)
	}
	_, err := d.Store.SetRecordingURL(ctx, meetingID, url)
	if errors.Is(err, store.ErrNotFound) {
		d.logger().Warn("recording for unknown meeting", "meeting_id", meetingID)
		return nil
	}
	return err
}

func (d *Dispatcher) messageNew(ctx context.Context, p Payload) error {
	userID := p.UserID()
	channelID := strings.TrimSpace(p.ChannelID)
	text := p.MessageText()
	if userID == "" || channelID == "" || strings.TrimSpace(text) == "" {
		return core.NewInvalidRequestError("Missing required fields")
	}

	meeting, err := d.Store.GetCompletedMeeting(ctx, channelID)
	if errors.Is(err, store.ErrNotFound) {
		return errMeetingNotFound
	}
	if err != nil {
		return err
	}
	agent, err := d.Store.GetAgent(ctx, meeting.AgentID)
	if errors.Is(err, store.ErrNotFound) {
		return errAgentNotFound
	}
	if err != nil {
		return err
	}
	if userID == agent.ID {
		return nil
	}

	limit := d.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	recent, err := d.Chat.WatchChannel(ctx, d.channelType(), channelID, agent.ID, limit)
	if err != nil {
		return core.NewAPIError("Failed to load channel").Wrap(err)
	}

	messages := BuildFollowUpMessages(meeting.Summary, agent, recent, text, limit)
	maxTokens := d.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	reply, err := d.LLM.Complete(ctx, llm.Request{
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: d.Temperature,
	})
	if err != nil {
		d.logger().Error("follow-up completion failed", "meeting_id", channelID, "error", err)
		return err
	}
	if strings.TrimSpace(reply) == "" {
		return core.NewInvalidRequestError("No response from GPT")
	}

	agentUser := chat.User{
		ID:    agent.ID,
		Name:  agent.Name,
		Image: chat.AvatarURI(agent.Name, chat.AvatarBotttsNeutral),
	}
	if err := d.Chat.UpsertUser(ctx, agentUser); err != nil {
		return core.NewAPIError("Failed to update agent profile").Wrap(err)
	}
	if err := d.Chat.SendMessage(ctx, d.channelType(), channelID, chat.Message{Text: reply, User: &agentUser}); err != nil {
		return core.NewAPIError("Failed to send reply").Wrap(err)
	}
	return nil
}

// BuildFollowUpMessages assembles the post-meeting chat context: system
// prompt, then the last limit non-empty channel messages, then the new user
// text.
func BuildFollowUpMessages(summary string, agent store.Agent, recent []chat.Message, text string, limit int) []llm.Message {
	if limit > 0 && len(recent) > limit {
		recent = recent[len(recent)-limit:]
	}
	out := make([]llm.Message, 0, len(recent)+2)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: FollowUpInstructions(summary, agent.Instructions)})
	for _, m := range recent {
		if strings.TrimSpace(m.Text) == "" {
			continue
		}
		role := llm.RoleUser
		if m.UserID() == agent.ID {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: m.Text})
	}
	out = append(out, llm.Message{Role: llm.RoleUser, Content: text})
	return out
}
