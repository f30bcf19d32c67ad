// Package chat is a small server-side client for the hosted chat service
// that carries post-meeting conversations.
package chat

import (
	"context"
	"net/url"
	"strings"
)

type User struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Image string `json:"image,omitempty"`
}

type Message struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
	User *User  `json:"user,omitempty"`
}

// UserID returns the sender id, or "" when the message has no user.
func (m Message) UserID() string {
	if m.User == nil {
		return ""
	}
	return m.User.ID
}

// Client is the subset of the chat API the webhook dispatcher needs.
type Client interface {
	// WatchChannel loads the channel state as userID and returns up to limit
	// of its most recent messages, oldest first.
	WatchChannel(ctx context.Context, channelType, channelID, userID string, limit int) ([]Message, error)
	UpsertUser(ctx context.Context, u User) error
	SendMessage(ctx context.Context, channelType, channelID string, msg Message) error
}

// AvatarVariant names a generated avatar style.
type AvatarVariant string

const (
	AvatarBotttsNeutral AvatarVariant = "botttsNeutral"
	AvatarInitials      AvatarVariant = "initials"
)

const avatarBaseURL = "https://api.dicebear.com/9.x"

// AvatarURI returns a deterministic avatar image URL for seed.
func AvatarURI(seed string, variant AvatarVariant) string {
	style := "initials"
	if variant == AvatarBotttsNeutral {
		style = "bottts-neutral"
	}
	q := url.Values{}
	q.Set("seed", strings.TrimSpace(seed))
	if variant == AvatarInitials {
		q.Set("fontWeight", "500")
		q.Set("fontSize", "42")
	}
	return avatarBaseURL + "/" + style + "/svg?" + q.Encode()
}
