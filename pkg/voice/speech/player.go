package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/vango-go/meetai/pkg/voice"
)

var errPlaybackStopped = errors.New("playback stopped")

// FFplayPlayer plays each utterance through a fresh ffplay process reading
// from stdin.
type FFplayPlayer struct {
	command func(ctx context.Context, name string, args ...string) *exec.Cmd

	mu      sync.Mutex
	cmd     *exec.Cmd
	stopped bool
}

func NewFFplayPlayer() (*FFplayPlayer, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, errors.New("ffplay is required for playback (install ffmpeg/ffplay and ensure it is in PATH)")
	}
	return &FFplayPlayer{command: exec.CommandContext}, nil
}

func ffplayArgs(a *voice.Audio) []string {
	args := []string{"-nodisp", "-autoexit", "-loglevel", "error"}
	if a.Format != "" {
		args = append(args, "-f", a.Format)
	}
	return append(args, "-i", "pipe:0")
}

func (p *FFplayPlayer) Play(ctx context.Context, a *voice.Audio) error {
	if a == nil || len(a.Data) == 0 {
		return nil
	}

	cmd := p.command(ctx, "ffplay", ffplayArgs(a)...)
	cmd.Stdin = bytes.NewReader(a.Data)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	p.mu.Lock()
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	p.stopped = false
	if err := cmd.Start(); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("start ffplay: %w", err)
	}
	p.cmd = cmd
	p.mu.Unlock()

	err := cmd.Wait()

	p.mu.Lock()
	stopped := p.stopped
	if p.cmd == cmd {
		p.cmd = nil
	}
	p.mu.Unlock()

	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case stopped:
		return errPlaybackStopped
	case err != nil:
		return fmt.Errorf("ffplay: %w", err)
	}
	return nil
}

func (p *FFplayPlayer) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil && p.cmd.Process != nil {
		p.stopped = true
		_ = p.cmd.Process.Kill()
	}
	return nil
}
