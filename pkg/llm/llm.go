// Package llm wraps the hosted chat-completion backends behind a single
// Complete call.
package llm

import (
	"context"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	Messages []Message
	// MaxTokens <= 0 leaves the provider default.
	MaxTokens int
	// Temperature < 0 leaves the provider default.
	Temperature float64
}

// Client returns the text of the first choice. An empty string with a nil
// error means the provider answered without content.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// QuotaMessage is the user-facing text attached to quota errors.
const QuotaMessage = "LLM quota exceeded or no credit. Please check your provider account."

// splitSystem joins every system message into one instruction and returns
// the remaining turns in order.
func splitSystem(msgs []Message) (string, []Message) {
	var sys []string
	rest := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if m.Role == RoleSystem {
			sys = append(sys, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(sys, "\n\n"), rest
}
