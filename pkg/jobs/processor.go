package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vango-go/meetai/pkg/llm"
	"github.com/vango-go/meetai/pkg/store"
)

// SummaryPrompt instructs the LLM how to summarize a transcript.
const SummaryPrompt = `You are an expert meeting summarizer. You write readable, concise, simple content. You are given a transcript of a meeting as JSON lines, one spoken segment per line with the speaker name and millisecond timestamps, and you need to summarize it.

Use the following markdown structure for every output:

### Overview
A detailed, engaging summary of the meeting's content. Focus on major features, user workflows, and any key takeaways. Write in a narrative style, using full sentences. Highlight unique or powerful aspects of the product, platform, or discussion.

### Notes
Break down key content into thematic sections with timestamp ranges. Each section should summarize key points, actions, or demos in bullet format.

Example:
#### Section Name
- Main point or demo shown here
- Another key insight or interaction

#### Next Section
- Feature X automatically does Y
- Mention of integration with Z

If the transcript is empty, say that nothing was recorded.`

const unknownSpeaker = "Unknown"

// Processor turns a ready transcript into a stored summary and completes the
// meeting.
type Processor struct {
	Store   store.Store
	LLM     llm.Client
	Fetcher Fetcher
	Logger  *slog.Logger
	// Prompt overrides SummaryPrompt when set.
	Prompt    string
	MaxTokens int
}

type speakerLine struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
	StartTS int64  `json:"start_ts"`
	StopTS  int64  `json:"stop_ts"`
}

func (p *Processor) Process(ctx context.Context, job Job) error {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if job.MeetingID == "" {
		return Permanent(errors.New("process: missing meeting id"))
	}
	if job.TranscriptURL == "" {
		return Permanent(fmt.Errorf("process %s: missing transcript url", job.MeetingID))
	}

	items, err := p.Fetcher.Fetch(ctx, job.TranscriptURL)
	if err != nil {
		return fmt.Errorf("process %s: %w", job.MeetingID, err)
	}
	lines := p.withSpeakers(ctx, items)

	var sb strings.Builder
	enc := json.NewEncoder(&sb)
	for _, l := range lines {
		if err := enc.Encode(l); err != nil {
			return err
		}
	}

	prompt := p.Prompt
	if prompt == "" {
		prompt = SummaryPrompt
	}
	maxTokens := p.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	summary, err := p.LLM.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompt},
			{Role: llm.RoleUser, Content: "Summarize the following transcript:\n" + sb.String()},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.3,
	})
	if err != nil {
		return fmt.Errorf("process %s: summarize: %w", job.MeetingID, err)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return fmt.Errorf("process %s: empty summary", job.MeetingID)
	}

	if _, err := p.Store.CompleteMeeting(ctx, job.MeetingID, summary); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Permanent(fmt.Errorf("process %s: meeting is not processing: %w", job.MeetingID, err))
		}
		return fmt.Errorf("process %s: complete: %w", job.MeetingID, err)
	}
	logger.Info("meeting processed", "meeting_id", job.MeetingID, "segments", len(lines))
	return nil
}

// withSpeakers resolves every speaker id to a user name, then an agent name.
func (p *Processor) withSpeakers(ctx context.Context, items []TranscriptItem) []speakerLine {
	names := make(map[string]string)
	lines := make([]speakerLine, 0, len(items))
	for _, it := range items {
		name, ok := names[it.SpeakerID]
		if !ok {
			name = p.speakerName(ctx, it.SpeakerID)
			names[it.SpeakerID] = name
		}
		lines = append(lines, speakerLine{Speaker: name, Text: it.Text, StartTS: it.StartTS, StopTS: it.StopTS})
	}
	return lines
}

func (p *Processor) speakerName(ctx context.Context, id string) string {
	if id == "" {
		return unknownSpeaker
	}
	if name, err := p.Store.GetUserName(ctx, id); err == nil && name != "" {
		return name
	}
	if agent, err := p.Store.GetAgent(ctx, id); err == nil && agent.Name != "" {
		return agent.Name
	}
	return unknownSpeaker
}
