package gateway

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	validation "github.com/jellydator/validation"
	"github.com/rs/zerolog"

	"keybridge/internal/domain"
	"keybridge/internal/metrics"
)

// maxWebhookBody bounds the callback form.
const maxWebhookBody = 64 * 1024

// Receiver authenticates and decrypts a webhook payload.
type Receiver interface {
	Receive(ctx context.Context, p domain.WebhookPayload) (*domain.InboundMessage, error)
}

// Sink consumes decrypted inbound messages.
type Sink interface {
	Deliver(ctx context.Context, msg domain.InboundMessage) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, msg domain.InboundMessage) error

func (f SinkFunc) Deliver(ctx context.Context, msg domain.InboundMessage) error { return f(ctx, msg) }

// WebhookHandler serves gateway callbacks.
type WebhookHandler struct {
	receiver Receiver
	sink     Sink
	log      zerolog.Logger
	metrics  *metrics.Metrics
}

// NewWebhookHandler returns a handler that passes authentic messages to sink.
func NewWebhookHandler(r Receiver, sink Sink, log zerolog.Logger, m *metrics.Metrics) *WebhookHandler {
	return &WebhookHandler{receiver: r, sink: sink, log: log, metrics: m}
}

func validatePayload(p *domain.WebhookPayload) error {
	return validation.ValidateStruct(p,
		validation.Field(&p.From, validation.Required),
		validation.Field(&p.To, validation.Required),
		validation.Field(&p.MessageID, validation.Required),
		validation.Field(&p.Date, validation.Required),
		validation.Field(&p.Nonce, validation.Required),
		validation.Field(&p.Box, validation.Required),
		validation.Field(&p.MAC, validation.Required),
	)
}

// ServeHTTP always answers 200; failures are only logged.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := h.log.With().Str("request_id", uuid.NewString()).Logger()
	defer w.WriteHeader(http.StatusOK)

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	if err := r.ParseForm(); err != nil {
		h.metrics.WebhookRequest(metrics.ResultRejected)
		log.Warn().Err(err).Msg("Unreadable webhook body")
		return
	}
	p := domain.WebhookPayload{
		From:      r.PostForm.Get("from"),
		To:        r.PostForm.Get("to"),
		MessageID: r.PostForm.Get("messageId"),
		Date:      r.PostForm.Get("date"),
		Nonce:     r.PostForm.Get("nonce"),
		Box:       r.PostForm.Get("box"),
		MAC:       r.PostForm.Get("mac"),
	}
	log = log.With().Str("from", p.From).Str("to", p.To).Str("message_id", p.MessageID).Logger()

	if err := validatePayload(&p); err != nil {
		h.metrics.WebhookRequest(metrics.ResultRejected)
		log.Warn().Err(err).Msg("Incomplete webhook payload")
		return
	}

	msg, err := h.receiver.Receive(r.Context(), p)
	if err != nil {
		h.metrics.WebhookRequest(metrics.ResultRejected)
		log.Warn().Err(err).Msg("Webhook message rejected")
		return
	}
	if msg == nil {
		h.metrics.WebhookRequest(metrics.ResultDropped)
		log.Debug().Msg("Webhook message carried no text")
		return
	}
	if err := h.sink.Deliver(r.Context(), *msg); err != nil {
		h.metrics.WebhookRequest(metrics.ResultError)
		log.Error().Err(err).Msg("Delivering webhook message failed")
		return
	}
	h.metrics.WebhookRequest(metrics.ResultSuccess)
	log.Info().Msg("Webhook message delivered")
}
