package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-go/meetai/pkg/voice"
	"github.com/vango-go/meetai/pkg/voice/speech"
)

const statePollInterval = 150 * time.Millisecond

func NewVoiceCmd(deps *Dependencies) *cobra.Command {
	var configPath string
	var noMic bool

	cmd := &cobra.Command{
		Use:   "voice",
		Short: "Talk to the meeting agent by voice",
		Long: "Start a voice conversation. Speech is recognized from the default microphone,\n" +
			"sent to the server's voice agent endpoint and the answer is spoken back.\n" +
			"Type a line to send it as text. Commands: /stop, /clear, /quit.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadVoiceConfig(configPath)
			if err != nil {
				return err
			}
			logger := deps.logger().With("component", "voice")

			ctrl, err := newVoiceController(cfg, logger)
			if err != nil {
				return err
			}
			defer ctrl.Close()

			return runVoiceSession(cmd.Context(), ctrl, cmd.InOrStdin(), cmd.OutOrStdout(), !noMic, statePollInterval)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Voice config file (defaults to ~/.config/meetai/voice.toml)")
	cmd.Flags().BoolVar(&noMic, "no-mic", false, "Do not listen; only accept typed input")

	return cmd
}

func newVoiceController(cfg VoiceConfig, logger *slog.Logger) (*voice.Controller, error) {
	player, err := speech.NewFFplayPlayer()
	if err != nil {
		return nil, err
	}

	var recognizers voice.RecognizerFactory
	if cfg.CartesiaKey != "" {
		recognizers = func(context.Context) (voice.Recognizer, error) {
			return speech.NewCartesiaRecognizer(cfg.CartesiaKey, speech.OpenFFmpegMic,
				speech.WithCartesiaLanguage(cfg.Language)), nil
		}
	} else {
		logger.Warn("CARTESIA_API_KEY not set; speech recognition disabled")
	}

	return voice.New(voice.Config{
		Instructions: cfg.Instructions,
		Recognizers:  recognizers,
		Primary:      speech.NewAzureSynthesizer(cfg.AzureKey, cfg.AzureRegion, speech.WithAzureVoice(cfg.AzureVoice)),
		Local:        speech.NewLocalSynthesizer(),
		Player:       player,
		Completer:    speech.NewHTTPCompleter(cfg.ServerURL, cfg.APIKey, nil),
		Logger:       logger,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
	}), nil
}

// voiceSession is the part of *voice.Controller the terminal loop drives.
type voiceSession interface {
	StartListening()
	StopSpeaking()
	ClearHistory()
	ProcessUserInput(text string)
	State() voice.State
}

// runVoiceSession forwards typed lines to sess and prints state changes
// until ctx is done, stdin ends or /quit is entered.
func runVoiceSession(ctx context.Context, sess voiceSession, in io.Reader, out io.Writer, listen bool, interval time.Duration) error {
	if listen {
		sess.StartListening()
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var r stateReporter
	for {
		select {
		case <-ctx.Done():
			r.report(out, sess.State())
			return nil
		case line, ok := <-lines:
			if !ok {
				waitIdle(ctx, sess, interval)
				r.report(out, sess.State())
				return nil
			}
			switch cmd := strings.TrimSpace(line); cmd {
			case "":
			case "/quit":
				return nil
			case "/stop":
				sess.StopSpeaking()
			case "/clear":
				sess.ClearHistory()
				r = stateReporter{}
			default:
				sess.ProcessUserInput(cmd)
			}
		case <-ticker.C:
			r.report(out, sess.State())
		}
	}
}

// waitIdle blocks while a turn is still being processed or spoken.
func waitIdle(ctx context.Context, sess voiceSession, interval time.Duration) {
	for {
		s := sess.State()
		if !s.Processing && !s.Speaking {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// stateReporter prints the parts of State that changed since the last call.
type stateReporter struct {
	phase      voice.Phase
	transcript string
	response   string
	err        string
}

func (r *stateReporter) report(out io.Writer, s voice.State) {
	if p := s.Phase(); p != r.phase {
		r.phase = p
		fmt.Fprintf(out, "[%s]\n", p)
	}
	if s.Transcript != r.transcript {
		r.transcript = s.Transcript
		if s.Transcript != "" {
			fmt.Fprintf(out, "you: %s\n", s.Transcript)
		}
	}
	if s.LastResponse != r.response {
		r.response = s.LastResponse
		if s.LastResponse != "" {
			fmt.Fprintf(out, "agent: %s\n", s.LastResponse)
		}
	}
	if s.Error != r.err {
		r.err = s.Error
		if s.Error != "" {
			fmt.Fprintf(out, "error: %s\n", s.Error)
		}
	}
}
