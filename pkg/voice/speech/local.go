package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/vango-go/meetai/pkg/voice"
)

// localEngines are tried in order.
var localEngines = []string{"espeak-ng", "espeak", "say"}

// LocalSynthesizer speaks through an on-device engine: espeak-ng, espeak or
// macOS say.
type LocalSynthesizer struct {
	lookPath func(string) (string, error)
	command  func(ctx context.Context, name string, args ...string) *exec.Cmd
	rate     int

	mu      sync.Mutex
	running *exec.Cmd
}

func NewLocalSynthesizer() *LocalSynthesizer {
	return &LocalSynthesizer{
		lookPath: exec.LookPath,
		command:  exec.CommandContext,
		rate:     160,
	}
}

func (l *LocalSynthesizer) Name() string { return "local" }

func (l *LocalSynthesizer) Available() bool {
	_, ok := l.engine()
	return ok
}

func (l *LocalSynthesizer) engine() (string, bool) {
	for _, name := range localEngines {
		if _, err := l.lookPath(name); err == nil {
			return name, true
		}
	}
	return "", false
}

func (l *LocalSynthesizer) Synthesize(ctx context.Context, text string) (*voice.Audio, error) {
	engine, ok := l.engine()
	if !ok {
		return nil, errors.New("no local speech engine found (install espeak-ng)")
	}

	dir, err := os.MkdirTemp("", "meetai-tts-")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)
	out := filepath.Join(dir, "speech.wav")

	cmd := l.command(ctx, engine, localSynthArgs(engine, text, out, l.rate)...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	l.mu.Lock()
	l.running = cmd
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		if l.running == cmd {
			l.running = nil
		}
		l.mu.Unlock()
	}()

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%s: %w: %s", engine, err, strings.TrimSpace(stderr.String()))
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("read %s output: %w", engine, err)
	}
	return &voice.Audio{Data: data, Format: "wav"}, nil
}

// Reset kills a running engine process.
func (l *LocalSynthesizer) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running != nil && l.running.Process != nil {
		_ = l.running.Process.Kill()
	}
	l.running = nil
	return nil
}

func localSynthArgs(engine, text, out string, rate int) []string {
	switch engine {
	case "say":
		return []string{"-r", fmt.Sprintf("%d", rate), "--file-format=WAVE", "--data-format=LEI16@22050", "-o", out, text}
	default:
		return []string{"-s", fmt.Sprintf("%d", rate), "-w", out, text}
	}
}
