package call

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

const (
	DefaultVideoBaseURL  = "https://video.stream-io-api.com"
	DefaultRealtimeModel = "gpt-4o-realtime-preview"

	agentTokenTTL      = 6 * time.Hour
	bridgeHandshakeTTL = 15 * time.Second
)

// RealtimeBridge asks the video edge to join a realtime speech model to a
// call as the agent user. The control socket stays open while the agent is
// in the call; closing it takes the agent out.
type RealtimeBridge struct {
	BaseURL   string
	APIKey    string
	APISecret string
	// ModelKey authenticates the edge against the realtime model provider.
	ModelKey string
	Model    string

	Dialer *websocket.Dialer
	Logger *slog.Logger
}

type realtimeEvent struct {
	Type  string `json:"type"`
	Error *struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Instructions string `json:"instructions"`
}

func (b *RealtimeBridge) Connect(ctx context.Context, callType, callID string, s AgentSession) (io.Closer, error) {
	if b.ModelKey == "" {
		return nil, errors.New("realtime model key not configured")
	}
	if s.AgentID == "" {
		return nil, errors.New("agent id is required")
	}
	token, err := UserToken(b.APISecret, s.AgentID, agentTokenTTL)
	if err != nil {
		return nil, err
	}

	endpoint, err := b.endpoint(callType, callID)
	if err != nil {
		return nil, err
	}
	dialer := websocket.DefaultDialer
	if b.Dialer != nil {
		dialer = b.Dialer
	}
	d := *dialer
	d.Subprotocols = []string{"realtime", "openai-insecure-api-key." + b.ModelKey, "openai-beta.realtime-v1"}

	header := http.Header{}
	header.Set("Authorization", token)
	header.Set("Stream-Auth-Type", "jwt")

	dialCtx, cancel := context.WithTimeout(ctx, bridgeHandshakeTTL)
	defer cancel()
	conn, resp, err := d.DialContext(dialCtx, endpoint, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			return nil, &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		}
		return nil, fmt.Errorf("dial realtime bridge: %w", err)
	}

	if err := b.handshake(dialCtx, conn, s); err != nil {
		_ = conn.Close()
		return nil, err
	}

	a := &agentConn{conn: conn, done: make(chan struct{})}
	go a.drain(b.logger().With("call_cid", CID(callType, callID), "agent_id", s.AgentID))
	return a, nil
}

// handshake waits for the session to open, then sends the agent
// instructions.
func (b *RealtimeBridge) handshake(ctx context.Context, conn *websocket.Conn, s AgentSession) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(bridgeHandshakeTTL)
	}
	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	for {
		var ev realtimeEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return fmt.Errorf("realtime bridge handshake: %w", err)
		}
		switch ev.Type {
		case "error":
			return bridgeError(ev)
		case "session.created":
			_ = conn.SetWriteDeadline(deadline)
			defer conn.SetWriteDeadline(time.Time{})
			return conn.WriteJSON(sessionUpdate{
				Type:    "session.update",
				Session: sessionConfig{Instructions: s.Instructions},
			})
		}
	}
}

func bridgeError(ev realtimeEvent) error {
	if ev.Error == nil {
		return errors.New("realtime bridge error")
	}
	msg := ev.Error.Message
	if ev.Error.Code != "" {
		msg = ev.Error.Code + ": " + msg
	}
	return fmt.Errorf("realtime bridge error: %s", msg)
}

func (b *RealtimeBridge) endpoint(callType, callID string) (string, error) {
	base := b.BaseURL
	if base == "" {
		base = DefaultVideoBaseURL
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + "/video/connect_agent")
	if err != nil {
		return "", fmt.Errorf("realtime bridge url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	model := b.Model
	if model == "" {
		model = DefaultRealtimeModel
	}
	q := url.Values{}
	q.Set("call_type", callType)
	q.Set("call_id", callID)
	q.Set("api_key", b.APIKey)
	q.Set("stream-auth-type", "jwt")
	q.Set("model", model)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (b *RealtimeBridge) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// UserToken signs a user JWT for the video service.
func UserToken(secret, userID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("api secret is required")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"iat":     now.Unix(),
	}
	if ttl > 0 {
		claims["exp"] = now.Add(ttl).Unix()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign user token: %w", err)
	}
	return signed, nil
}

type agentConn struct {
	conn *websocket.Conn
	once sync.Once
	done chan struct{}
}

// drain reads server events until the socket closes. Error events are
// logged; everything else belongs to the edge and the model.
func (a *agentConn) drain(logger *slog.Logger) {
	defer close(a.done)
	for {
		var ev realtimeEvent
		if err := a.conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && !errors.Is(err, net.ErrClosed) {
				logger.Debug("realtime bridge closed", "error", err)
			}
			return
		}
		if ev.Type == "error" {
			logger.Warn("realtime bridge event", "error", bridgeError(ev))
		}
	}
}

func (a *agentConn) Close() error {
	var err error
	a.once.Do(func() {
		_ = a.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "agent detached"),
			time.Now().Add(time.Second))
		err = a.conn.Close()
		<-a.done
	})
	return err
}
