package api

// WebhookRequest is one webhook delivery as received by an invocation adapter.
// Body holds the raw bytes, the signature covers them exactly.
type WebhookRequest struct {
	Headers map[string]string
	Body    []byte
}

type WebhookResponse struct {
	StatusCode int
	Body       string
}
