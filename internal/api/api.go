package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"runner-hook/pkg/api"

	"github.com/go-chi/chi/v5"
)

const DefaultMaxBodyBytes = 25 * 1024 * 1024

type Dispatcher interface {
	Dispatch(ctx context.Context, req api.WebhookRequest) api.WebhookResponse
}

// WebhookService exposes the dispatcher over plain HTTP for hosts that do not
// go through the Lambda runtime.
type WebhookService struct {
	dispatcher   Dispatcher
	maxBodyBytes int64
}

func NewWebhookService(dispatcher Dispatcher, maxBodyBytes int64) *WebhookService {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &WebhookService{dispatcher: dispatcher, maxBodyBytes: maxBodyBytes}
}

func (s *WebhookService) AddRoutes(r chi.Router) {
	r.Get("/health", RestHandler(func(r *http.Request) (any, error) { return nil, nil }))
	r.Post("/webhook", s.HandleWebhook)
}

func (s *WebhookService) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	req, err := s.readRequest(w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	res := s.dispatcher.Dispatch(r.Context(), req)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(res.StatusCode)
	if _, err := io.WriteString(w, res.Body); err != nil {
		slog.Error("error writing webhook response", "error", err)
	}
}

// readRequest keeps the body byte for byte, the signature is computed over it.
func (s *WebhookService) readRequest(w http.ResponseWriter, r *http.Request) (api.WebhookRequest, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return api.WebhookRequest{}, CodedErrorf(http.StatusRequestEntityTooLarge, "request body exceeds %d bytes", tooLarge.Limit)
		}
		slog.Error("error reading webhook body", "error", err)
		return api.WebhookRequest{}, CodedErrorf(http.StatusBadRequest, "unable to read request body")
	}

	headers := make(map[string]string, len(r.Header))
	for name := range r.Header {
		headers[name] = r.Header.Get(name)
	}

	return api.WebhookRequest{Headers: headers, Body: body}, nil
}
