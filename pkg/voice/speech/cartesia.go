package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/vango-go/meetai/pkg/voice"
)

const (
	cartesiaSTTURL  = "wss://api.cartesia.ai/stt/websocket"
	cartesiaVersion = "2025-04-16"
	// 100ms of 16 kHz mono s16le.
	cartesiaChunkBytes = 3200
)

// AudioSource opens a fresh PCM stream for each recognition session.
type AudioSource func() (io.ReadCloser, error)

type CartesiaOption func(*CartesiaRecognizer)

func WithCartesiaURL(u string) CartesiaOption {
	return func(r *CartesiaRecognizer) { r.wsURL = u }
}

func WithCartesiaLanguage(lang string) CartesiaOption {
	return func(r *CartesiaRecognizer) {
		if strings.TrimSpace(lang) != "" {
			r.language = lang
		}
	}
}

func WithCartesiaModel(model string) CartesiaOption {
	return func(r *CartesiaRecognizer) {
		if strings.TrimSpace(model) != "" {
			r.model = model
		}
	}
}

// CartesiaRecognizer streams microphone audio to Cartesia's realtime STT
// websocket and reports interim and final transcripts.
type CartesiaRecognizer struct {
	apiKey     string
	wsURL      string
	model      string
	language   string
	sampleRate int
	source     AudioSource
	dialer     websocket.Dialer

	events  chan voice.RecognitionEvent
	closing chan struct{}
	wg      sync.WaitGroup

	mu     sync.Mutex
	sess   *cartesiaSession
	closed bool
}

type cartesiaSession struct {
	conn     *websocket.Conn
	audio    io.ReadCloser
	writeMu  sync.Mutex
	stopping atomic.Bool
}

func NewCartesiaRecognizer(apiKey string, source AudioSource, opts ...CartesiaOption) *CartesiaRecognizer {
	r := &CartesiaRecognizer{
		apiKey:     strings.TrimSpace(apiKey),
		wsURL:      cartesiaSTTURL,
		model:      "ink-whisper",
		language:   "en",
		sampleRate: micSampleRateHz,
		source:     source,
		dialer:     websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		events:     make(chan voice.RecognitionEvent, 64),
		closing:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *CartesiaRecognizer) Events() <-chan voice.RecognitionEvent { return r.events }

func (r *CartesiaRecognizer) sessionURL() (string, error) {
	u, err := url.Parse(r.wsURL)
	if err != nil {
		return "", fmt.Errorf("parse websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("model", r.model)
	q.Set("language", r.language)
	q.Set("encoding", "pcm_s16le")
	q.Set("sample_rate", fmt.Sprintf("%d", r.sampleRate))
	q.Set("min_volume", "0.01")
	q.Set("api_key", r.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Start opens a recognition session. Calling Start on a running recognizer
// is a no-op.
func (r *CartesiaRecognizer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errors.New("recognizer closed")
	}
	if r.sess != nil {
		return nil
	}
	if r.apiKey == "" {
		return errors.New("CARTESIA_API_KEY is required for speech recognition")
	}
	if r.source == nil {
		return errors.New("no audio source configured")
	}

	wsURL, err := r.sessionURL()
	if err != nil {
		return err
	}
	headers := http.Header{}
	headers.Set("X-API-Key", r.apiKey)
	headers.Set("Cartesia-Version", cartesiaVersion)

	conn, resp, err := r.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			if len(body) > 0 {
				return fmt.Errorf("websocket connect (status %d): %s", resp.StatusCode, string(body))
			}
			return fmt.Errorf("websocket connect: status %d: %w", resp.StatusCode, err)
		}
		return fmt.Errorf("websocket connect: %w", err)
	}

	audio, err := r.source()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("open audio source: %w", err)
	}

	s := &cartesiaSession{conn: conn, audio: audio}
	r.sess = s
	r.wg.Add(2)
	go r.readLoop(s)
	go r.pump(s)
	return nil
}

func (r *CartesiaRecognizer) pump(s *cartesiaSession) {
	defer r.wg.Done()
	buf := make([]byte, cartesiaChunkBytes)
	for {
		n, err := s.audio.Read(buf)
		if n > 0 {
			s.writeMu.Lock()
			werr := s.conn.WriteMessage(websocket.BinaryMessage, buf[:n])
			s.writeMu.Unlock()
			if werr != nil {
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) && !s.stopping.Load() {
				s.writeMu.Lock()
				_ = s.conn.WriteMessage(websocket.TextMessage, []byte("finalize"))
				s.writeMu.Unlock()
			}
			return
		}
	}
}

type cartesiaSTTResponse struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Error   string `json:"error"`
}

func (r *CartesiaRecognizer) readLoop(s *cartesiaSession) {
	defer r.wg.Done()
	defer r.endSession(s)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if !s.stopping.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.emit(voice.RecognitionEvent{Kind: voice.RecognitionCanceled, Reason: err.Error()})
			}
			r.emit(voice.RecognitionEvent{Kind: voice.RecognitionSessionStopped})
			return
		}

		var msg cartesiaSTTResponse
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "transcript":
			text := strings.TrimSpace(msg.Text)
			if text == "" {
				continue
			}
			kind := voice.RecognitionInterim
			if msg.IsFinal {
				kind = voice.RecognitionFinal
			}
			r.emit(voice.RecognitionEvent{Kind: kind, Text: text})
		case "error":
			r.emit(voice.RecognitionEvent{Kind: voice.RecognitionCanceled, Reason: msg.Error})
		case "done":
			r.emit(voice.RecognitionEvent{Kind: voice.RecognitionSessionStopped})
			return
		}
	}
}

func (r *CartesiaRecognizer) emit(ev voice.RecognitionEvent) {
	select {
	case r.events <- ev:
	case <-r.closing:
	}
}

// endSession releases s and clears it if it is still current.
func (r *CartesiaRecognizer) endSession(s *cartesiaSession) {
	r.mu.Lock()
	if r.sess == s {
		r.sess = nil
	}
	r.mu.Unlock()
	_ = s.audio.Close()
	_ = s.conn.Close()
}

// Stop ends the running session, if any.
func (r *CartesiaRecognizer) Stop(ctx context.Context) error {
	r.mu.Lock()
	s := r.sess
	r.sess = nil
	r.mu.Unlock()
	if s == nil {
		return nil
	}

	s.stopping.Store(true)
	s.writeMu.Lock()
	_ = s.conn.WriteMessage(websocket.TextMessage, []byte("done"))
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	_ = s.audio.Close()
	return s.conn.Close()
}

func (r *CartesiaRecognizer) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	_ = r.Stop(context.Background())
	close(r.closing)
	r.wg.Wait()
	close(r.events)
	return nil
}
