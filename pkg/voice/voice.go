// Package voice runs a spoken conversation with an agent: it listens,
// recognizes, asks the LLM for a reply, speaks it and handles barge-in.
package voice

import (
	"context"
	"time"
)

// Phase is the coarse controller state derived from the State flags.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseListening  Phase = "listening"
	PhaseProcessing Phase = "processing"
	PhaseSpeaking   Phase = "speaking"
)

// State is a snapshot of the controller. It is only mutated on the
// controller's event loop.
type State struct {
	Listening    bool
	Speaking     bool
	Processing   bool
	Transcript   string
	LastResponse string
	Error        string
}

func (s State) Phase() Phase {
	switch {
	case s.Speaking:
		return PhaseSpeaking
	case s.Processing:
		return PhaseProcessing
	case s.Listening:
		return PhaseListening
	default:
		return PhaseIdle
	}
}

type RecognitionKind int

const (
	RecognitionInterim RecognitionKind = iota
	RecognitionFinal
	RecognitionCanceled
	RecognitionSessionStopped
)

func (k RecognitionKind) String() string {
	switch k {
	case RecognitionInterim:
		return "interim"
	case RecognitionFinal:
		return "final"
	case RecognitionCanceled:
		return "canceled"
	case RecognitionSessionStopped:
		return "session_stopped"
	default:
		return "unknown"
	}
}

type RecognitionEvent struct {
	Kind RecognitionKind
	Text string
	// Reason is set for RecognitionCanceled.
	Reason string
}

// Recognizer performs continuous speech recognition. Events stays open
// across Start/Stop cycles and is closed by Close.
type Recognizer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Events() <-chan RecognitionEvent
	Close() error
}

// RecognizerFactory builds the recognizer on first use.
type RecognizerFactory func(ctx context.Context) (Recognizer, error)

// Audio is a complete synthesized utterance.
type Audio struct {
	Data       []byte
	Format     string // "wav", "aiff"
	SampleRate int
}

// SpeechBackend turns text into audio.
type SpeechBackend interface {
	Name() string
	// Available reports whether the backend is configured and usable here.
	Available() bool
	Synthesize(ctx context.Context, text string) (*Audio, error)
	// Reset aborts in-flight synthesis and recreates the engine handle.
	Reset() error
}

// Player plays one utterance at a time.
type Player interface {
	// Play blocks until playback ends, fails or is stopped.
	Play(ctx context.Context, a *Audio) error
	Stop() error
}

// Delays are the settle pauses between steps of a turn.
type Delays struct {
	Listen    time.Duration
	Interrupt time.Duration
	Speak     time.Duration
}

func DefaultDelays() Delays {
	return Delays{
		Listen:    500 * time.Millisecond,
		Interrupt: 200 * time.Millisecond,
		Speak:     100 * time.Millisecond,
	}
}
