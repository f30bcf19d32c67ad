package llm

import (
	"context"
	"errors"
	"net/http"

	"github.com/vango-go/meetai/pkg/core"
)

// classify maps a provider failure onto the error taxonomy. Quota, billing
// and credit exhaustion become core.ErrQuota so callers can answer 402.
func classify(provider string, status int, code, message string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if status == http.StatusPaymentRequired ||
		code == "insufficient_quota" ||
		code == "RESOURCE_EXHAUSTED" ||
		core.LooksLikeQuota(code) ||
		core.LooksLikeQuota(message) {
		return core.NewQuotaError(QuotaMessage, err)
	}
	return core.NewProviderError(provider, err)
}
