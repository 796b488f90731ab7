package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"settlement/internal/domain"
)

type fakeEventHandler struct {
	HandleFunc func(event domain.ProviderEvent) error
	seen       []domain.ProviderEvent
}

func (f *fakeEventHandler) HandleProviderEvent(_ context.Context, event domain.ProviderEvent) error {
	f.seen = append(f.seen, event)
	if f.HandleFunc != nil {
		return f.HandleFunc(event)
	}
	return nil
}

func TestHandleMessage_DecodesEvent(t *testing.T) {
	h := &fakeEventHandler{}
	c := NewProviderEventConsumer(h, zap.NewNop())

	err := c.HandleMessage(context.Background(), kafka.Message{
		Key:   []byte("evt_1"),
		Value: []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`),
	})
	require.NoError(t, err)
	require.Len(t, h.seen, 1)
	assert.Equal(t, "evt_1", h.seen[0].ID)
	assert.Equal(t, "pi_1", h.seen[0].Data.Object.ID)
}

func TestHandleMessage_DropsUndecodable(t *testing.T) {
	h := &fakeEventHandler{}
	c := NewProviderEventConsumer(h, zap.NewNop())

	assert.NoError(t, c.HandleMessage(context.Background(), kafka.Message{Value: []byte(`{not json`)}))
	assert.NoError(t, c.HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"type":"x"}`)}))
	assert.Empty(t, h.seen)
}

func TestHandleMessage_PropagatesTransientError(t *testing.T) {
	boom := errors.New("provider unavailable")
	h := &fakeEventHandler{HandleFunc: func(domain.ProviderEvent) error { return boom }}
	c := NewProviderEventConsumer(h, zap.NewNop())

	err := c.HandleMessage(context.Background(), kafka.Message{Value: []byte(`{"id":"evt_2","type":"payment_intent.succeeded"}`)})
	assert.ErrorIs(t, err, boom)
}
