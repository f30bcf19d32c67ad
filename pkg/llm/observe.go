package llm

import (
	"context"
	"time"

	"github.com/vango-go/meetai/pkg/core"
)

// Recorder receives one observation per completion call.
type Recorder interface {
	RecordLLM(provider, outcome string, duration time.Duration)
}

type observed struct {
	next     Client
	provider string
	rec      Recorder
}

// Observe wraps c so every call is reported to rec. A nil rec returns c.
func Observe(c Client, provider string, rec Recorder) Client {
	if rec == nil {
		return c
	}
	return &observed{next: c, provider: provider, rec: rec}
}

func (o *observed) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	text, err := o.next.Complete(ctx, req)
	outcome := "ok"
	switch {
	case err == nil && text == "":
		outcome = "empty"
	case core.IsType(err, core.ErrQuota):
		outcome = "quota"
	case err != nil:
		outcome = "error"
	}
	o.rec.RecordLLM(o.provider, outcome, time.Since(start))
	return text, err
}
