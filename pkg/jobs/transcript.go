package jobs

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// TranscriptItem is one line of the provider's JSONL transcript.
type TranscriptItem struct {
	SpeakerID string `json:"speaker_id"`
	Type      string `json:"type"`
	Text      string `json:"text"`
	StartTS   int64  `json:"start_ts"`
	StopTS    int64  `json:"stop_ts"`
}

// ParseTranscript decodes JSONL, skipping blank lines.
func ParseTranscript(r io.Reader) ([]TranscriptItem, error) {
	var items []TranscriptItem
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var item TranscriptItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("transcript line %d: %w", line, err)
		}
		items = append(items, item)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Fetcher downloads transcripts, retrying transport failures and 5xx/429.
type Fetcher struct {
	HTTPClient *http.Client
	Backoff    func() retry.Backoff
}

func defaultBackoff() retry.Backoff {
	return retry.WithMaxRetries(4, retry.WithJitterPercent(10, retry.NewExponential(250*time.Millisecond)))
}

func (f Fetcher) Fetch(ctx context.Context, url string) ([]TranscriptItem, error) {
	client := f.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	newBackoff := f.Backoff
	if newBackoff == nil {
		newBackoff = defaultBackoff
	}

	var items []TranscriptItem
	err := retry.Do(ctx, newBackoff(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return retry.RetryableError(fmt.Errorf("fetch transcript: http %d", resp.StatusCode))
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("fetch transcript: http %d", resp.StatusCode)
		}
		items, err = ParseTranscript(resp.Body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}
