package chat

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	stream "github.com/GetStream/stream-chat-go/v7"

	"github.com/vango-go/meetai/pkg/core"
)

const DefaultBaseURL = "https://chat.stream-io-api.com"

// StreamClient runs the chat operations through the Stream Chat server SDK.
// It also verifies webhook signatures, which the service keys with the same
// secret.
type StreamClient struct {
	client *stream.Client
}

func NewStreamClient(apiKey, secret, baseURL string, httpClient *http.Client) (*StreamClient, error) {
	if apiKey == "" || secret == "" {
		return nil, fmt.Errorf("chat: api key and secret are required")
	}
	client, err := stream.NewClient(apiKey, secret)
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client.BaseURL = strings.TrimRight(baseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	client.HTTP = httpClient
	return &StreamClient{client: client}, nil
}

func (c *StreamClient) WatchChannel(ctx context.Context, channelType, channelID, userID string, limit int) ([]Message, error) {
	resp, err := c.client.CreateChannel(ctx, channelType, channelID, userID, &stream.ChannelRequest{})
	if err != nil {
		return nil, classify("watch channel", err)
	}
	if resp.Channel == nil {
		return nil, nil
	}
	msgs := make([]Message, 0, len(resp.Channel.Messages))
	for _, m := range resp.Channel.Messages {
		if m == nil {
			continue
		}
		msgs = append(msgs, fromStream(m))
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (c *StreamClient) UpsertUser(ctx context.Context, u User) error {
	if _, err := c.client.UpsertUser(ctx, toStreamUser(u)); err != nil {
		return classify("upsert user", err)
	}
	return nil
}

func (c *StreamClient) SendMessage(ctx context.Context, channelType, channelID string, msg Message) error {
	out := &stream.Message{Text: msg.Text}
	if msg.User != nil {
		out.User = toStreamUser(*msg.User)
	}
	if _, err := c.client.Channel(channelType, channelID).SendMessage(ctx, out, msg.UserID()); err != nil {
		return classify("send message", err)
	}
	return nil
}

// VerifyWebhook reports whether signature is the HMAC of body under the
// client's secret.
func (c *StreamClient) VerifyWebhook(body, signature []byte) bool {
	return c.client.VerifyWebhook(body, signature)
}

func toStreamUser(u User) *stream.User {
	return &stream.User{ID: u.ID, Name: u.Name, Image: u.Image}
}

func fromStream(m *stream.Message) Message {
	out := Message{ID: m.ID, Text: m.Text}
	if m.User != nil {
		out.User = &User{ID: m.User.ID, Name: m.User.Name, Image: m.User.Image}
	}
	return out
}

func classify(op string, err error) error {
	return core.NewProviderError("stream-chat", fmt.Errorf("%s: %w", op, err))
}
