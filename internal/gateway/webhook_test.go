package gateway_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keybridge/internal/domain"
	"keybridge/internal/gateway"
	"keybridge/internal/metrics"
)

type stubReceiver struct {
	got []domain.WebhookPayload
	msg *domain.InboundMessage
	err error
}

func (s *stubReceiver) Receive(_ context.Context, p domain.WebhookPayload) (*domain.InboundMessage, error) {
	s.got = append(s.got, p)
	return s.msg, s.err
}

func validForm() url.Values {
	return url.Values{
		"from":      {"PEER0001"},
		"to":        {"*GATEWAY"},
		"messageId": {"0123456789abcdef"},
		"date":      {"1704067200"},
		"nonce":     {"00"},
		"box":       {"00"},
		"mac":       {"00"},
	}
}

func post(t *testing.T, h http.Handler, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func newHandler(t *testing.T, r gateway.Receiver, sink gateway.Sink) (*gateway.WebhookHandler, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg, "kb")
	require.NoError(t, err)
	return gateway.NewWebhookHandler(r, sink, zerolog.Nop(), m), reg
}

func TestWebhook_DeliversMessage(t *testing.T) {
	want := &domain.InboundMessage{From: "PEER0001", To: "*GATEWAY", Text: "hi"}
	recv := &stubReceiver{msg: want}
	var delivered []domain.InboundMessage
	h, _ := newHandler(t, recv, gateway.SinkFunc(func(_ context.Context, m domain.InboundMessage) error {
		delivered = append(delivered, m)
		return nil
	}))

	rec := post(t, h, validForm())
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, recv.got, 1)
	assert.Equal(t, "0123456789abcdef", recv.got[0].MessageID)
	assert.Equal(t, []domain.InboundMessage{*want}, delivered)
}

func TestWebhook_AlwaysOK(t *testing.T) {
	tests := []struct {
		name      string
		form      url.Values
		recv      *stubReceiver
		sinkErr   error
		delivered bool
	}{
		{
			name: "missing mac",
			form: func() url.Values { f := validForm(); f.Del("mac"); return f }(),
			recv: &stubReceiver{},
		},
		{
			name: "receiver rejects",
			form: validForm(),
			recv: &stubReceiver{err: errors.New("bad mac")},
		},
		{
			name: "no text",
			form: validForm(),
			recv: &stubReceiver{},
		},
		{
			name:      "sink fails",
			form:      validForm(),
			recv:      &stubReceiver{msg: &domain.InboundMessage{Text: "x"}},
			sinkErr:   errors.New("downstream"),
			delivered: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delivered := false
			h, reg := newHandler(t, tt.recv, gateway.SinkFunc(func(context.Context, domain.InboundMessage) error {
				delivered = true
				return tt.sinkErr
			}))
			rec := post(t, h, tt.form)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.delivered, delivered)

			n, err := testutil.GatherAndCount(reg, "kb_webhook_requests_total")
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestWebhook_MissingFieldNeverReachesReceiver(t *testing.T) {
	for _, field := range []string{"from", "to", "messageId", "date", "nonce", "box", "mac"} {
		recv := &stubReceiver{}
		h, _ := newHandler(t, recv, gateway.SinkFunc(func(context.Context, domain.InboundMessage) error { return nil }))
		f := validForm()
		f.Del(field)
		assert.Equal(t, http.StatusOK, post(t, h, f).Code)
		assert.Empty(t, recv.got, field)
	}
}

func TestWebhook_OversizedBody(t *testing.T) {
	recv := &stubReceiver{}
	h, _ := newHandler(t, recv, gateway.SinkFunc(func(context.Context, domain.InboundMessage) error { return nil }))
	f := validForm()
	f.Set("box", strings.Repeat("ab", 64*1024))
	assert.Equal(t, http.StatusOK, post(t, h, f).Code)
	assert.Empty(t, recv.got)
}
