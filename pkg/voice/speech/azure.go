// Package speech provides the concrete recognizers, synthesizers, players
// and completers the voice controller runs on.
package speech

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vango-go/meetai/pkg/voice"
)

const (
	defaultAzureVoice    = "en-US-JennyNeural"
	azureOutputFormat    = "riff-24khz-16bit-mono-pcm"
	azureSampleRate      = 24000
	azureMaxRetries      = 2
	azureRetryBackoff    = 200 * time.Millisecond
	azureRequestDeadline = 20 * time.Second
)

// AzureSynthesizer calls the Azure Speech text-to-speech REST endpoint and
// returns RIFF WAV audio.
type AzureSynthesizer struct {
	key        string
	region     string
	voiceName  string
	endpoint   string
	httpClient *http.Client

	mu     sync.Mutex
	base   context.Context
	cancel context.CancelFunc
}

type AzureOption func(*AzureSynthesizer)

func WithAzureVoice(name string) AzureOption {
	return func(a *AzureSynthesizer) {
		if strings.TrimSpace(name) != "" {
			a.voiceName = name
		}
	}
}

// WithAzureEndpoint overrides the regional endpoint URL.
func WithAzureEndpoint(url string) AzureOption {
	return func(a *AzureSynthesizer) { a.endpoint = url }
}

func WithAzureHTTPClient(client *http.Client) AzureOption {
	return func(a *AzureSynthesizer) { a.httpClient = client }
}

func NewAzureSynthesizer(key, region string, opts ...AzureOption) *AzureSynthesizer {
	a := &AzureSynthesizer{
		key:        strings.TrimSpace(key),
		region:     strings.TrimSpace(region),
		voiceName:  defaultAzureVoice,
		httpClient: &http.Client{Timeout: azureRequestDeadline},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.endpoint == "" && a.region != "" {
		a.endpoint = fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", a.region)
	}
	a.base, a.cancel = context.WithCancel(context.Background())
	return a
}

func (a *AzureSynthesizer) Name() string { return "azure" }

func (a *AzureSynthesizer) Available() bool {
	return a.key != "" && a.endpoint != ""
}

func (a *AzureSynthesizer) Synthesize(ctx context.Context, text string) (*voice.Audio, error) {
	if !a.Available() {
		return nil, fmt.Errorf("azure speech credentials not configured")
	}

	a.mu.Lock()
	base := a.base
	a.mu.Unlock()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(base, cancel)
	defer stop()

	ssml := a.ssml(text)
	var data []byte
	backoff := retry.WithMaxRetries(azureMaxRetries, retry.NewConstant(azureRetryBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, strings.NewReader(ssml))
		if err != nil {
			return err
		}
		req.Header.Set("Ocp-Apim-Subscription-Key", a.key)
		req.Header.Set("Content-Type", "application/ssml+xml")
		req.Header.Set("X-Microsoft-OutputFormat", azureOutputFormat)
		req.Header.Set("User-Agent", "meetai")

		resp, err := a.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.RetryableError(fmt.Errorf("azure tts request: %w", err))
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read azure tts response: %w", err)
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("azure tts error %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("azure tts error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
		if len(body) == 0 {
			return fmt.Errorf("azure tts returned no audio")
		}
		data = body
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &voice.Audio{Data: data, Format: "wav", SampleRate: azureSampleRate}, nil
}

// Reset aborts every in-flight request and drops pooled connections.
func (a *AzureSynthesizer) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cancel()
	a.base, a.cancel = context.WithCancel(context.Background())
	a.httpClient.CloseIdleConnections()
	return nil
}

func (a *AzureSynthesizer) ssml(text string) string {
	var escaped bytes.Buffer
	_ = xml.EscapeText(&escaped, []byte(text))
	lang := "en-US"
	if parts := strings.SplitN(a.voiceName, "-", 3); len(parts) == 3 {
		lang = parts[0] + "-" + parts[1]
	}
	return fmt.Sprintf(`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="%s"><voice name="%s">%s</voice></speak>`,
		lang, a.voiceName, escaped.String())
}
