package speech

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
)

const micSampleRateHz = 16000

// FFmpegMic captures the default microphone as 16 kHz mono s16le PCM.
type FFmpegMic struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

// OpenFFmpegMic starts a capture process. It matches the AudioSource
// signature CartesiaRecognizer expects.
func OpenFFmpegMic() (io.ReadCloser, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, errors.New("ffmpeg is required for mic capture (install ffmpeg and ensure it is in PATH)")
	}
	args, err := micFFmpegArgs(runtime.GOOS)
	if err != nil {
		return nil, err
	}
	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg mic capture: %w", err)
	}
	return &FFmpegMic{cmd: cmd, stdout: stdout}, nil
}

func micFFmpegArgs(goos string) ([]string, error) {
	var input []string
	switch goos {
	case "darwin":
		input = []string{"-f", "avfoundation", "-i", ":0"}
	case "linux":
		input = []string{"-f", "pulse", "-i", "default"}
	default:
		return nil, fmt.Errorf("mic capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, input...)
	return append(args,
		"-ac", "1", "-ar", fmt.Sprintf("%d", micSampleRateHz),
		"-f", "s16le", "-",
	), nil
}

func (m *FFmpegMic) Read(p []byte) (int, error) {
	if m == nil || m.stdout == nil {
		return 0, io.EOF
	}
	return m.stdout.Read(p)
}

func (m *FFmpegMic) Close() error {
	if m == nil {
		return nil
	}
	if m.cmd != nil && m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
		_ = m.cmd.Wait()
	}
	return nil
}
