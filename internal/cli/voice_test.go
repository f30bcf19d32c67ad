package cli

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vango-go/meetai/pkg/voice"
)

type fakeSession struct {
	mu     sync.Mutex
	state  voice.State
	inputs []string
	stops  int
	clears int
}

func (f *fakeSession) StartListening() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.Listening = true
}

func (f *fakeSession) StopSpeaking() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeSession) ClearHistory() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clears++
	f.state.Transcript = ""
	f.state.LastResponse = ""
}

func (f *fakeSession) ProcessUserInput(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, text)
	f.state.Transcript = text
	f.state.LastResponse = "reply: " + text
}

func (f *fakeSession) State() voice.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func TestRunVoiceSession_ForwardsTypedInput(t *testing.T) {
	sess := &fakeSession{}
	var out bytes.Buffer
	in := strings.NewReader("hello\n/stop\n\n  \nsecond\n")

	if err := runVoiceSession(context.Background(), sess, in, &out, true, time.Millisecond); err != nil {
		t.Fatalf("runVoiceSession: %v", err)
	}

	if len(sess.inputs) != 2 || sess.inputs[0] != "hello" || sess.inputs[1] != "second" {
		t.Fatalf("inputs=%q", sess.inputs)
	}
	if sess.stops != 1 {
		t.Fatalf("stops=%d", sess.stops)
	}
	got := out.String()
	for _, want := range []string{"[listening]", "you: second", "agent: reply: second"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output %q missing %q", got, want)
		}
	}
}

func TestRunVoiceSession_QuitAndClear(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess := &fakeSession{}
	var out bytes.Buffer
	in := strings.NewReader("/clear\n/quit\nignored\n")

	if err := runVoiceSession(ctx, sess, in, &out, false, time.Hour); err != nil {
		t.Fatalf("runVoiceSession: %v", err)
	}
	if sess.clears != 1 || len(sess.inputs) != 0 {
		t.Fatalf("clears=%d inputs=%q", sess.clears, sess.inputs)
	}
	if sess.State().Listening {
		t.Fatalf("listening started with listen=false")
	}
}

func TestRunVoiceSession_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sess := &fakeSession{}
	done := make(chan error, 1)
	pr := &blockingReader{release: make(chan struct{})}
	defer close(pr.release)

	go func() {
		done <- runVoiceSession(ctx, sess, pr, &bytes.Buffer{}, false, time.Millisecond)
	}()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runVoiceSession: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("runVoiceSession did not return after cancel")
	}
}

type blockingReader struct {
	release chan struct{}
}

func (b *blockingReader) Read(p []byte) (int, error) {
	<-b.release
	return 0, context.Canceled
}

func TestStateReporter_PrintsChanges(t *testing.T) {
	var out bytes.Buffer
	var r stateReporter

	r.report(&out, voice.State{Listening: true})
	r.report(&out, voice.State{Listening: true})
	r.report(&out, voice.State{Processing: true, Transcript: "hi"})
	r.report(&out, voice.State{Speaking: true, Transcript: "hi", LastResponse: "Hello there"})
	r.report(&out, voice.State{Listening: true, Transcript: "hi", LastResponse: "Hello there", Error: "Playback error: boom"})

	want := "[listening]\n[processing]\nyou: hi\n[speaking]\nagent: Hello there\n[listening]\nerror: Playback error: boom\n"
	if out.String() != want {
		t.Fatalf("out=%q\nwant=%q", out.String(), want)
	}
}
