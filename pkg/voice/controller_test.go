package voice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/meetai/pkg/llm"
)

type fakeRecognizer struct {
	mu      sync.Mutex
	events  chan RecognitionEvent
	starts  int
	stops   int
	closed  bool
	onStart error
}

func newFakeRecognizer() *fakeRecognizer {
	return &fakeRecognizer{events: make(chan RecognitionEvent, 16)}
}

func (r *fakeRecognizer) Start(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	return r.onStart
}

func (r *fakeRecognizer) Stop(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return nil
}

func (r *fakeRecognizer) Events() <-chan RecognitionEvent { return r.events }

func (r *fakeRecognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	return nil
}

func (r *fakeRecognizer) emit(kind RecognitionKind, text string) {
	r.events <- RecognitionEvent{Kind: kind, Text: text, Reason: text}
}

func (r *fakeRecognizer) counts() (starts, stops int, closed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.starts, r.stops, r.closed
}

type fakeBackend struct {
	name      string
	available bool
	err       error

	mu     sync.Mutex
	texts  []string
	resets int
}

func (b *fakeBackend) Name() string    { return b.name }
func (b *fakeBackend) Available() bool { return b.available }

func (b *fakeBackend) Synthesize(_ context.Context, text string) (*Audio, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.texts = append(b.texts, text)
	if b.err != nil {
		return nil, b.err
	}
	return &Audio{Data: []byte(b.name + ":" + text), Format: "wav"}, nil
}

func (b *fakeBackend) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resets++
	return nil
}

func (b *fakeBackend) snapshot() ([]string, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.texts...), b.resets
}

// fakePlayer returns immediately unless block is set, in which case Play
// waits for Stop or context cancellation.
type fakePlayer struct {
	block bool

	mu      sync.Mutex
	played  []string
	stops   int
	playing bool
	stopCh  chan struct{}
}

func (p *fakePlayer) Play(ctx context.Context, a *Audio) error {
	p.mu.Lock()
	p.played = append(p.played, string(a.Data))
	if !p.block {
		p.mu.Unlock()
		return nil
	}
	p.playing = true
	stop := make(chan struct{})
	p.stopCh = stop
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.playing = false
		p.mu.Unlock()
	}()
	select {
	case <-stop:
		return errors.New("playback stopped")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *fakePlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
	return nil
}

func (p *fakePlayer) snapshot() (played []string, stops int, playing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...), p.stops, p.playing
}

type completerCall struct {
	req         llm.Request
	playerStops int
	resets      int
}

// fakeCompleter answers "reply: <last user text>". With gated set, every
// call waits for a value on its own release channel.
type fakeCompleter struct {
	err    error
	gated  bool
	player *fakePlayer
	cloud  *fakeBackend

	mu      sync.Mutex
	calls   []completerCall
	release []chan string
}

func (f *fakeCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	call := completerCall{req: req}
	if f.player != nil {
		_, call.playerStops, _ = f.player.snapshot()
	}
	if f.cloud != nil {
		_, call.resets = f.cloud.snapshot()
	}
	f.calls = append(f.calls, call)
	var gate chan string
	if f.gated {
		gate = make(chan string, 1)
		f.release = append(f.release, gate)
	}
	f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}
	if gate != nil {
		select {
		case reply := <-gate:
			return reply, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "reply: " + req.Messages[len(req.Messages)-1].Content, nil
}

func (f *fakeCompleter) snapshot() []completerCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]completerCall(nil), f.calls...)
}

func (f *fakeCompleter) gate(i int) chan string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.release[i]
}

type harness struct {
	c      *Controller
	rec    *fakeRecognizer
	cloud  *fakeBackend
	local  *fakeBackend
	player *fakePlayer
	llm    *fakeCompleter
}

func newHarness(t *testing.T, mutate func(*harness, *Config)) *harness {
	t.Helper()
	h := &harness{
		rec:    newFakeRecognizer(),
		cloud:  &fakeBackend{name: "cloud", available: true},
		local:  &fakeBackend{name: "local", available: true},
		player: &fakePlayer{},
	}
	h.llm = &fakeCompleter{player: h.player, cloud: h.cloud}
	cfg := Config{
		Instructions: "You are a helpful meeting assistant.",
		Recognizers:  func(context.Context) (Recognizer, error) { return h.rec, nil },
		Player:       h.player,
		Completer:    h.llm,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Delays:       &Delays{},
	}
	if mutate != nil {
		mutate(h, &cfg)
	}
	if cfg.Primary == nil {
		cfg.Primary = h.cloud
	}
	if cfg.Local == nil {
		cfg.Local = h.local
	}
	h.c = New(cfg)
	t.Cleanup(func() { _ = h.c.Close() })
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) waitState(t *testing.T, what string, cond func(State) bool) State {
	t.Helper()
	var s State
	waitFor(t, what, func() bool {
		s = h.c.State()
		return cond(s)
	})
	return s
}

func (h *harness) listen(t *testing.T) {
	t.Helper()
	h.c.StartListening()
	h.waitState(t, "listening", func(s State) bool { return s.Listening })
	waitFor(t, "recognizer started", func() bool {
		starts, _, _ := h.rec.counts()
		return starts == 1
	})
}

func TestController_FinalRecognitionRunsTurnAndSpeaks(t *testing.T) {
	h := newHarness(t, nil)
	h.listen(t)

	h.rec.emit(RecognitionFinal, "**What** did we decide?")
	s := h.waitState(t, "reply spoken", func(s State) bool {
		played, _, _ := h.player.snapshot()
		return s.LastResponse != "" && !s.Speaking && len(played) == 1
	})

	if s.Transcript != "**What** did we decide?" || s.Error != "" || s.Phase() != PhaseListening {
		t.Fatalf("state=%+v", s)
	}
	if s.LastResponse != "reply: **What** did we decide?" {
		t.Fatalf("LastResponse=%q", s.LastResponse)
	}
	texts, _ := h.cloud.snapshot()
	if len(texts) != 1 || texts[0] != "reply: What did we decide?" {
		t.Fatalf("synthesized=%q", texts)
	}
	played, _, _ := h.player.snapshot()
	if played[0] != "cloud:reply: What did we decide?" {
		t.Fatalf("played=%q", played)
	}

	calls := h.llm.snapshot()
	if len(calls) != 1 {
		t.Fatalf("completer calls=%d", len(calls))
	}
	req := calls[0].req
	if req.MaxTokens != 150 || req.Temperature != 0.7 {
		t.Fatalf("request=%+v", req)
	}
	if req.Messages[0].Role != llm.RoleSystem || req.Messages[0].Content != "You are a helpful meeting assistant." {
		t.Fatalf("system=%+v", req.Messages[0])
	}

	hist := h.c.History()
	if len(hist) != 2 || hist[0].Role != llm.RoleUser || hist[1].Role != llm.RoleAssistant {
		t.Fatalf("history=%+v", hist)
	}
}

func TestController_InterimOnlyUpdatesTranscript(t *testing.T) {
	h := newHarness(t, nil)
	h.listen(t)

	h.rec.emit(RecognitionInterim, "what did")
	h.waitState(t, "interim transcript", func(s State) bool { return s.Transcript == "what did" })
	if n := len(h.llm.snapshot()); n != 0 {
		t.Fatalf("completer calls=%d", n)
	}
}

func TestController_CanceledAndSessionStopped(t *testing.T) {
	h := newHarness(t, nil)
	h.listen(t)

	h.rec.emit(RecognitionCanceled, "network")
	h.waitState(t, "canceled error", func(s State) bool { return s.Error == "Recognition canceled: network" })

	h.rec.emit(RecognitionSessionStopped, "")
	s := h.waitState(t, "session stopped", func(s State) bool { return !s.Listening })
	if s.Phase() != PhaseIdle {
		t.Fatalf("phase=%q", s.Phase())
	}
}

func TestController_BargeInTearsDownBeforeNextRequest(t *testing.T) {
	h := newHarness(t, func(h *harness, _ *Config) { h.player.block = true })
	h.listen(t)

	h.rec.emit(RecognitionFinal, "tell me everything")
	waitFor(t, "playback started", func() bool {
		_, _, playing := h.player.snapshot()
		return playing
	})
	if s := h.c.State(); !s.Speaking {
		t.Fatalf("expected speaking, state=%+v", s)
	}

	h.rec.emit(RecognitionFinal, "stop, next topic")
	waitFor(t, "second completion", func() bool { return len(h.llm.snapshot()) == 2 })

	second := h.llm.snapshot()[1]
	if second.playerStops < 1 || second.resets < 1 {
		t.Fatalf("request issued before teardown: stops=%d resets=%d", second.playerStops, second.resets)
	}
	if got := second.req.Messages[len(second.req.Messages)-1].Content; got != "stop, next topic" {
		t.Fatalf("last message=%q", got)
	}

	s := h.waitState(t, "second reply", func(s State) bool { return s.LastResponse == "reply: stop, next topic" })
	if strings.Contains(s.Error, "Playback error") {
		t.Fatalf("interrupted playback surfaced as error: %q", s.Error)
	}
	_, resets := h.local.snapshot()
	if resets < 1 {
		t.Fatalf("local backend not reset")
	}
}

func TestController_SpeechDuringBargeInSettleIsKept(t *testing.T) {
	h := newHarness(t, func(h *harness, cfg *Config) {
		h.player.block = true
		cfg.Delays = &Delays{Interrupt: 200 * time.Millisecond}
	})
	h.listen(t)

	h.rec.emit(RecognitionFinal, "tell me everything")
	waitFor(t, "playback started", func() bool {
		_, _, playing := h.player.snapshot()
		return playing
	})

	h.rec.emit(RecognitionFinal, "wait")
	h.waitState(t, "speech torn down", func(s State) bool { return !s.Speaking })
	h.rec.emit(RecognitionFinal, "actually, what was decided?")

	waitFor(t, "second completion", func() bool { return len(h.llm.snapshot()) == 2 })
	time.Sleep(50 * time.Millisecond)
	calls := h.llm.snapshot()
	if len(calls) != 2 {
		t.Fatalf("completions=%d, want 2", len(calls))
	}
	msgs := calls[1].req.Messages
	if got := msgs[len(msgs)-1].Content; got != "wait actually, what was decided?" {
		t.Fatalf("last message=%q", got)
	}
	h.waitState(t, "reply", func(s State) bool {
		return s.LastResponse == "reply: wait actually, what was decided?"
	})
}

func TestController_SynthesisFailureFallsBackToLocal(t *testing.T) {
	h := newHarness(t, func(h *harness, _ *Config) { h.cloud.err = errors.New("cloud down") })

	h.c.SpeakResponse("# Summary\nAll good.")
	s := h.waitState(t, "fallback playback", func(s State) bool {
		played, _, _ := h.player.snapshot()
		return len(played) == 1 && !s.Speaking
	})

	played, _, _ := h.player.snapshot()
	if played[0] != "local:Summary\nAll good." {
		t.Fatalf("played=%q", played)
	}
	if s.Error != "Speech synthesis error: cloud down" {
		t.Fatalf("Error=%q", s.Error)
	}
	if hist := h.c.History(); len(hist) != 0 {
		t.Fatalf("SpeakResponse touched history: %+v", hist)
	}
}

func TestController_UnavailablePrimaryUsesLocal(t *testing.T) {
	h := newHarness(t, func(h *harness, _ *Config) { h.cloud.available = false })

	h.c.SpeakResponse("hello")
	waitFor(t, "local playback", func() bool {
		played, _, _ := h.player.snapshot()
		return len(played) == 1
	})
	texts, _ := h.cloud.snapshot()
	if len(texts) != 0 {
		t.Fatalf("unavailable backend used: %q", texts)
	}
}

func TestController_NoBackendRecordsError(t *testing.T) {
	h := newHarness(t, func(h *harness, _ *Config) {
		h.cloud.available = false
		h.local.available = false
	})

	h.c.SpeakResponse("hello")
	s := h.waitState(t, "error", func(s State) bool { return s.Error != "" })
	if s.Speaking {
		t.Fatalf("speaking stuck on: %+v", s)
	}
}

func TestController_ProcessingErrorKeepsHistory(t *testing.T) {
	h := newHarness(t, func(h *harness, _ *Config) { h.llm.err = errors.New("boom") })

	h.c.ProcessUserInput("hi")
	s := h.waitState(t, "processing error", func(s State) bool { return s.Error != "" })
	if s.Error != "Processing error: boom" || s.Processing || s.Speaking {
		t.Fatalf("state=%+v", s)
	}
	hist := h.c.History()
	if len(hist) != 1 || hist[0].Content != "hi" {
		t.Fatalf("history=%+v", hist)
	}
}

func TestController_BlankInputIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.c.ProcessUserInput("   ")
	if s := h.c.State(); s.Processing {
		t.Fatalf("state=%+v", s)
	}
	if n := len(h.llm.snapshot()); n != 0 {
		t.Fatalf("completer calls=%d", n)
	}
}

func TestController_ContextIsLastTenTurns(t *testing.T) {
	h := newHarness(t, nil)
	for i := 0; i < 6; i++ {
		h.c.ProcessUserInput("turn " + string(rune('a'+i)))
		want := i + 1
		waitFor(t, "turn completed", func() bool { return len(h.c.History()) == 2*want })
	}

	calls := h.llm.snapshot()
	last := calls[len(calls)-1].req.Messages
	if len(last) != 11 {
		t.Fatalf("messages=%d, want system + 10", len(last))
	}
	if last[0].Role != llm.RoleSystem || last[10].Content != "turn f" {
		t.Fatalf("messages=%+v", last)
	}
	if last[1].Content != "reply: turn a" {
		t.Fatalf("oldest kept=%q", last[1].Content)
	}
}

func TestController_SupersededReplyIsDiscarded(t *testing.T) {
	h := newHarness(t, func(h *harness, _ *Config) { h.llm.gated = true })

	h.c.ProcessUserInput("first")
	waitFor(t, "first call", func() bool { return len(h.llm.snapshot()) == 1 })
	h.c.ProcessUserInput("second")
	waitFor(t, "second call", func() bool { return len(h.llm.snapshot()) == 2 })

	h.llm.gate(1) <- "answer two"
	h.waitState(t, "second reply", func(s State) bool { return s.LastResponse == "answer two" })

	h.llm.gate(0) <- "answer one"
	time.Sleep(20 * time.Millisecond)
	if s := h.c.State(); s.LastResponse != "answer two" || s.Processing {
		t.Fatalf("state=%+v", s)
	}
	for _, m := range h.c.History() {
		if m.Content == "answer one" {
			t.Fatalf("stale reply recorded: %+v", h.c.History())
		}
	}
}

func TestController_StopSpeakingIsIdempotent(t *testing.T) {
	h := newHarness(t, func(h *harness, _ *Config) { h.player.block = true })

	h.c.SpeakResponse("a long answer")
	waitFor(t, "playback started", func() bool {
		_, _, playing := h.player.snapshot()
		return playing
	})

	h.c.StopSpeaking()
	h.c.StopSpeaking()
	s := h.waitState(t, "stopped", func(s State) bool { return !s.Speaking })
	waitFor(t, "backends reset twice", func() bool {
		_, cloudResets := h.cloud.snapshot()
		_, localResets := h.local.snapshot()
		return cloudResets == 2 && localResets == 2
	})
	if s.Error != "" {
		t.Fatalf("Error=%q", s.Error)
	}
	_, stops, _ := h.player.snapshot()
	if stops != 2 {
		t.Fatalf("player stops=%d", stops)
	}
}

func TestController_ClearHistory(t *testing.T) {
	h := newHarness(t, nil)
	h.listen(t)
	h.c.ProcessUserInput("hi")
	waitFor(t, "turn", func() bool { return len(h.c.History()) == 2 })

	h.c.ClearHistory()
	s := h.c.State()
	if s.Transcript != "" || s.LastResponse != "" || !s.Listening {
		t.Fatalf("state=%+v", s)
	}
	if len(h.c.History()) != 0 {
		t.Fatalf("history not cleared")
	}
}

func TestController_InitFailureRecordsError(t *testing.T) {
	h := newHarness(t, func(_ *harness, cfg *Config) {
		cfg.Recognizers = func(context.Context) (Recognizer, error) { return nil, errors.New("no microphone") }
	})

	h.c.StartListening()
	s := h.waitState(t, "init error", func(s State) bool { return s.Error != "" })
	if s.Error != "Failed to initialize speech services: no microphone" || s.Listening {
		t.Fatalf("state=%+v", s)
	}
}

func TestController_StartFailureClearsListening(t *testing.T) {
	h := newHarness(t, func(h *harness, _ *Config) { h.rec.onStart = errors.New("device busy") })

	h.c.StartListening()
	s := h.waitState(t, "start error", func(s State) bool { return s.Error != "" })
	if s.Listening || !strings.Contains(s.Error, "device busy") {
		t.Fatalf("state=%+v", s)
	}
}

func TestController_StopListeningAndClose(t *testing.T) {
	h := newHarness(t, nil)
	h.listen(t)

	h.c.StopListening()
	h.c.StopListening()
	h.waitState(t, "not listening", func(s State) bool { return !s.Listening })
	waitFor(t, "recognizer stopped", func() bool {
		_, stops, _ := h.rec.counts()
		return stops == 2
	})

	if err := h.c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, closed := h.rec.counts(); !closed {
		t.Fatalf("recognizer not closed")
	}
	if err := h.c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if s := h.c.State(); s.Listening || s.Speaking {
		t.Fatalf("state after close=%+v", s)
	}
}
