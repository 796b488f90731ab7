package webhooks

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"settlement/internal/domain"
	"settlement/internal/infrastructure/paymentprovider"
)

const secret = "whsec_test"

var eventBody = []byte(`{"id":"evt_1","type":"payment_intent.succeeded","created":1710496800,"data":{"object":{"id":"pi_1","status":"succeeded"}}}`)

type recordingSink struct {
	err    error
	events []domain.ProviderEvent
	raw    [][]byte
}

func (s *recordingSink) Publish(_ context.Context, event domain.ProviderEvent, raw []byte) error {
	s.events = append(s.events, event)
	s.raw = append(s.raw, raw)
	return s.err
}

func post(t *testing.T, sink EventSink, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	return postWithSecret(t, sink, secret, body, signature)
}

func postWithSecret(t *testing.T, sink EventSink, key string, body []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	RegisterRoutes(r, sink, key, paymentprovider.DefaultTolerance, zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set(SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestPaymentEvents_AcceptsSignedEvent(t *testing.T) {
	sink := &recordingSink{}
	rec := post(t, sink, eventBody, paymentprovider.SignatureHeader(time.Now().Unix(), eventBody, secret))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, sink.events, 1)
	assert.Equal(t, "evt_1", sink.events[0].ID)
	assert.Equal(t, eventBody, sink.raw[0])
}

func TestPaymentEvents_RejectsBadSignatures(t *testing.T) {
	tests := []struct {
		name      string
		signature string
	}{
		{name: "missing", signature: ""},
		{name: "wrong secret", signature: paymentprovider.SignatureHeader(time.Now().Unix(), eventBody, "other")},
		{name: "stale", signature: paymentprovider.SignatureHeader(time.Now().Add(-time.Hour).Unix(), eventBody, secret)},
		{name: "garbage", signature: "v1=abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{}
			rec := post(t, sink, eventBody, tt.signature)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, sink.events)
		})
	}
}

func TestPaymentEvents_RefusesWithoutSecret(t *testing.T) {
	sink := &recordingSink{}
	rec := postWithSecret(t, sink, "", eventBody, paymentprovider.SignatureHeader(time.Now().Unix(), eventBody, ""))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, sink.events)
}

func TestPaymentEvents_SinkFailureAsksForRetry(t *testing.T) {
	sink := &recordingSink{err: errors.New("kafka down")}
	rec := post(t, sink, eventBody, paymentprovider.SignatureHeader(time.Now().Unix(), eventBody, secret))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestEventSinkFunc(t *testing.T) {
	var got string
	sink := EventSinkFunc(func(_ context.Context, event domain.ProviderEvent, _ []byte) error {
		got = event.ID
		return nil
	})
	rec := post(t, sink, eventBody, paymentprovider.SignatureHeader(time.Now().Unix(), eventBody, secret))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "evt_1", got)
}
