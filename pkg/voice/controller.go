package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/vango-go/meetai/pkg/llm"
	"github.com/vango-go/meetai/pkg/markdown"
)

const (
	DefaultMaxTokens    = 150
	DefaultTemperature  = 0.7
	DefaultHistoryTurns = 10
)

type Config struct {
	// Instructions is the agent system prompt sent with every turn.
	Instructions string

	Recognizers RecognizerFactory
	// Primary is used when Available; Local is the fallback and must work
	// offline.
	Primary   SpeechBackend
	Local     SpeechBackend
	Player    Player
	Completer llm.Client

	Logger *slog.Logger
	// Delays nil selects DefaultDelays.
	Delays *Delays

	// Zero values select DefaultMaxTokens, DefaultTemperature and
	// DefaultHistoryTurns.
	MaxTokens    int
	Temperature  float64
	HistoryTurns int
}

// Controller owns one voice conversation. All state lives on a single
// event-loop goroutine; the exported methods post work to it.
type Controller struct {
	cfg    Config
	delays Delays
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	events chan func()
	quit   chan struct{}
	done   chan struct{}

	closeOnce sync.Once
	final     State

	// Loop-owned.
	state        State
	history      []llm.Message
	recognizer   Recognizer
	initializing bool
	pendingStart bool
	cancelSpeech bool
	// Utterances heard while a barge-in settles, replayed as one turn.
	bargePending bool
	bargeText    []string
	turn         uint64
	speechID     uint64
	speakCancel  context.CancelFunc
}

func New(cfg Config) *Controller {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = DefaultHistoryTurns
	}
	delays := DefaultDelays()
	if cfg.Delays != nil {
		delays = *cfg.Delays
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:    cfg,
		delays: delays,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		events: make(chan func(), 64),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *Controller) run() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.events:
			fn()
		case <-c.quit:
			c.shutdown()
			return
		}
	}
}

// post queues fn on the loop. It reports false once the controller is closed.
func (c *Controller) post(fn func()) bool {
	select {
	case c.events <- fn:
		return true
	case <-c.quit:
		return false
	}
}

// after runs fn on the loop once d has elapsed. Only call from the loop.
func (c *Controller) after(d time.Duration, fn func()) {
	if d <= 0 {
		fn()
		return
	}
	time.AfterFunc(d, func() { c.post(fn) })
}

// StartListening initializes the recognizer if needed and begins
// continuous recognition after the listen settle delay.
func (c *Controller) StartListening() {
	c.post(c.startListening)
}

func (c *Controller) StopListening() {
	c.post(c.stopListening)
}

// ProcessUserInput runs one conversational turn for text.
func (c *Controller) ProcessUserInput(text string) {
	c.post(func() { c.processUserInput(text) })
}

// SpeakResponse speaks text without touching the history.
func (c *Controller) SpeakResponse(text string) {
	c.post(func() { c.speakResponse(text) })
}

func (c *Controller) StopSpeaking() {
	c.post(c.stopSpeaking)
}

// ClearHistory drops the conversation and the visible transcript. The
// listening and speaking flags are left alone.
func (c *Controller) ClearHistory() {
	c.post(func() {
		c.history = nil
		c.state.Transcript = ""
		c.state.LastResponse = ""
	})
}

func (c *Controller) State() State {
	reply := make(chan State, 1)
	if !c.post(func() { reply <- c.state }) {
		<-c.done
		return c.final
	}
	select {
	case s := <-reply:
		return s
	case <-c.done:
		return c.final
	}
}

func (c *Controller) History() []llm.Message {
	reply := make(chan []llm.Message, 1)
	if !c.post(func() { reply <- append([]llm.Message(nil), c.history...) }) {
		return nil
	}
	select {
	case h := <-reply:
		return h
	case <-c.done:
		return nil
	}
}

// Close stops the loop and tears down the recognizer, speech backends and
// player. It is safe to call more than once.
func (c *Controller) Close() error {
	c.closeOnce.Do(func() {
		close(c.quit)
		<-c.done
	})
	return nil
}

func (c *Controller) startListening() {
	c.cancelSpeech = false

	if c.recognizer == nil {
		if c.cfg.Recognizers == nil {
			c.state.Error = "Speech recognition not configured"
			return
		}
		c.pendingStart = true
		if c.initializing {
			return
		}
		c.initializing = true
		go func() {
			r, err := c.cfg.Recognizers(c.ctx)
			if !c.post(func() { c.recognizerReady(r, err) }) && r != nil {
				_ = r.Close()
			}
		}()
		return
	}

	c.after(c.delays.Listen, c.beginRecognition)
}

func (c *Controller) recognizerReady(r Recognizer, err error) {
	c.initializing = false
	if err != nil {
		c.pendingStart = false
		c.state.Error = fmt.Sprintf("Failed to initialize speech services: %v", err)
		c.logger.Error("recognizer init failed", "error", err)
		return
	}
	c.recognizer = r
	go c.forward(r)

	if c.pendingStart {
		c.pendingStart = false
		c.after(c.delays.Listen, c.beginRecognition)
	}
}

func (c *Controller) forward(r Recognizer) {
	for ev := range r.Events() {
		if !c.post(func() { c.onRecognition(ev) }) {
			return
		}
	}
}

func (c *Controller) beginRecognition() {
	if c.recognizer == nil {
		return
	}
	c.state.Listening = true
	c.state.Error = ""
	r := c.recognizer
	go func() {
		if err := r.Start(c.ctx); err != nil {
			c.post(func() {
				c.state.Listening = false
				c.state.Error = fmt.Sprintf("Failed to start recognition: %v", err)
			})
		}
	}()
}

func (c *Controller) stopListening() {
	c.pendingStart = false
	c.state.Listening = false
	if c.recognizer == nil {
		return
	}
	r := c.recognizer
	go func() {
		if err := r.Stop(c.ctx); err != nil {
			c.logger.Warn("stop recognition failed", "error", err)
		}
	}()
}

func (c *Controller) onRecognition(ev RecognitionEvent) {
	switch ev.Kind {
	case RecognitionInterim:
		c.state.Transcript = ev.Text
	case RecognitionFinal:
		c.state.Transcript = ev.Text
		if c.bargePending {
			c.queueBargeText(ev.Text)
			return
		}
		if c.state.Speaking {
			c.bargeIn(ev.Text)
			return
		}
		c.processUserInput(ev.Text)
	case RecognitionCanceled:
		c.state.Error = "Recognition canceled: " + ev.Reason
	case RecognitionSessionStopped:
		c.state.Listening = false
	}
}

// bargeIn tears down the current utterance and only then dispatches text,
// together with anything else the user says before the settle delay ends.
func (c *Controller) bargeIn(text string) {
	c.logger.Debug("barge-in", "transcript", text)
	c.cancelSpeech = true
	c.bargePending = true
	c.bargeText = c.bargeText[:0]
	c.queueBargeText(text)
	c.interruptSpeech()
	c.teardown(func() {
		c.after(c.delays.Interrupt, c.releaseBargeIn)
	})
}

func (c *Controller) queueBargeText(text string) {
	if t := strings.TrimSpace(text); t != "" {
		c.bargeText = append(c.bargeText, t)
	}
}

func (c *Controller) releaseBargeIn() {
	if !c.bargePending {
		return
	}
	text := strings.Join(c.bargeText, " ")
	c.bargePending = false
	c.bargeText = c.bargeText[:0]
	c.cancelSpeech = false
	c.processUserInput(text)
}

// interruptSpeech invalidates the in-flight utterance. Its completion, when
// it arrives, is ignored.
func (c *Controller) interruptSpeech() {
	c.speechID++
	if c.speakCancel != nil {
		c.speakCancel()
		c.speakCancel = nil
	}
	c.state.Speaking = false
}

// teardown stops playback and resets every backend off the loop, then runs
// then on the loop.
func (c *Controller) teardown(then func()) {
	player := c.cfg.Player
	backends := c.backends()
	go func() {
		if player != nil {
			if err := player.Stop(); err != nil {
				c.logger.Warn("stop playback failed", "error", err)
			}
		}
		for _, b := range backends {
			if err := b.Reset(); err != nil {
				c.logger.Warn("reset speech backend failed", "backend", b.Name(), "error", err)
			}
		}
		if then != nil {
			c.post(then)
		}
	}()
}

func (c *Controller) processUserInput(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if c.bargePending {
		c.queueBargeText(text)
		return
	}
	if c.cfg.Completer == nil {
		c.state.Error = "Processing error: no completer configured"
		return
	}

	c.history = append(c.history, llm.Message{Role: llm.RoleUser, Content: text})
	req := llm.Request{
		Messages:    c.contextMessages(),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}

	c.turn++
	turn := c.turn
	c.state.Processing = true
	go func() {
		reply, err := c.cfg.Completer.Complete(c.ctx, req)
		c.post(func() { c.onCompletion(turn, reply, err) })
	}()
}

func (c *Controller) contextMessages() []llm.Message {
	recent := c.history
	if len(recent) > c.cfg.HistoryTurns {
		recent = recent[len(recent)-c.cfg.HistoryTurns:]
	}
	out := make([]llm.Message, 0, len(recent)+1)
	out = append(out, llm.Message{Role: llm.RoleSystem, Content: c.cfg.Instructions})
	return append(out, recent...)
}

func (c *Controller) onCompletion(turn uint64, reply string, err error) {
	if turn != c.turn {
		c.logger.Debug("discarding reply for superseded turn", "turn", turn, "current", c.turn)
		return
	}
	c.state.Processing = false
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errors.New("empty response")
	}
	if err != nil {
		c.state.Error = fmt.Sprintf("Processing error: %v", err)
		return
	}

	c.history = append(c.history, llm.Message{Role: llm.RoleAssistant, Content: reply})
	c.state.LastResponse = reply
	if !c.cancelSpeech {
		c.speakResponse(reply)
	}
}

func (c *Controller) speakResponse(text string) {
	cleaned := strings.TrimSpace(markdown.Clean(text))
	if cleaned == "" {
		return
	}
	if c.speakCancel != nil {
		c.interruptSpeech()
	}

	c.speechID++
	id := c.speechID
	ctx, cancel := context.WithCancel(c.ctx)
	c.speakCancel = cancel
	c.state.Speaking = true

	c.after(c.delays.Speak, func() {
		if id != c.speechID {
			return
		}
		if c.cancelSpeech {
			c.finishSpeech()
			return
		}
		backend := c.primary()
		if backend == nil || c.cfg.Player == nil {
			c.finishSpeech()
			c.state.Error = "Speech synthesis error: no speech backend available"
			return
		}
		go c.synthesizeAndPlay(ctx, id, backend, cleaned)
	})
}

func (c *Controller) synthesizeAndPlay(ctx context.Context, id uint64, backend SpeechBackend, text string) {
	var primaryErr error
	audio, err := backend.Synthesize(ctx, text)
	if err != nil && ctx.Err() == nil {
		primaryErr = err
		if local := c.cfg.Local; local != nil && local != backend && local.Available() {
			c.logger.Warn("speech synthesis failed, using local backend", "backend", backend.Name(), "error", err)
			audio, err = local.Synthesize(ctx, text)
		}
	}
	var playErr error
	if err == nil {
		playErr = c.cfg.Player.Play(ctx, audio)
	}
	c.post(func() {
		if id != c.speechID {
			return
		}
		c.finishSpeech()
		switch {
		case primaryErr != nil:
			c.state.Error = fmt.Sprintf("Speech synthesis error: %v", primaryErr)
		case err != nil && !errors.Is(err, context.Canceled):
			c.state.Error = fmt.Sprintf("Speech synthesis error: %v", err)
		case playErr != nil && !errors.Is(playErr, context.Canceled):
			c.state.Error = fmt.Sprintf("Playback error: %v", playErr)
		}
	})
}

// finishSpeech resets the speech flags on every exit path.
func (c *Controller) finishSpeech() {
	if c.speakCancel != nil {
		c.speakCancel()
		c.speakCancel = nil
	}
	c.state.Speaking = false
	c.cancelSpeech = false
}

func (c *Controller) stopSpeaking() {
	c.interruptSpeech()
	c.cancelSpeech = false
	c.teardown(nil)
}

func (c *Controller) primary() SpeechBackend {
	if c.cfg.Primary != nil && c.cfg.Primary.Available() {
		return c.cfg.Primary
	}
	if c.cfg.Local != nil && c.cfg.Local.Available() {
		return c.cfg.Local
	}
	return nil
}

func (c *Controller) backends() []SpeechBackend {
	out := make([]SpeechBackend, 0, 2)
	if c.cfg.Primary != nil {
		out = append(out, c.cfg.Primary)
	}
	if c.cfg.Local != nil && c.cfg.Local != c.cfg.Primary {
		out = append(out, c.cfg.Local)
	}
	return out
}

func (c *Controller) shutdown() {
	c.interruptSpeech()
	c.cancelSpeech = true
	c.state.Listening = false
	c.state.Processing = false
	c.final = c.state
	c.cancel()

	if c.recognizer != nil {
		if err := c.recognizer.Close(); err != nil {
			c.logger.Warn("close recognizer failed", "error", err)
		}
	}
	if c.cfg.Player != nil {
		_ = c.cfg.Player.Stop()
	}
	for _, b := range c.backends() {
		_ = b.Reset()
		if closer, ok := b.(io.Closer); ok {
			_ = closer.Close()
		}
	}
	if closer, ok := c.cfg.Player.(io.Closer); ok {
		_ = closer.Close()
	}
}
