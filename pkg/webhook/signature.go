package webhook

// Verifier checks the provider's x-signature header against the raw
// request body. chat.StreamClient implements it with the provider SDK.
type Verifier interface {
	VerifyWebhook(body, signature []byte) bool
}
