package paymentprovider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"settlement/internal/domain"
)

func TestRetrieveChargeStatus(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus domain.PaymentStatus
		wantErr    error
	}{
		{"succeeded", http.StatusOK, `{"id":"pi_1","amount":5000,"currency":"eur","status":"succeeded"}`, domain.PaymentStatusSucceeded, nil},
		{"requires action", http.StatusOK, `{"id":"pi_1","amount":5000,"currency":"eur","status":"requires_action"}`, domain.PaymentStatusPending, nil},
		{"processing", http.StatusOK, `{"id":"pi_1","amount":5000,"currency":"eur","status":"processing"}`, domain.PaymentStatusPending, nil},
		{"canceled", http.StatusOK, `{"id":"pi_1","amount":5000,"currency":"eur","status":"canceled"}`, domain.PaymentStatusFailed, nil},
		{"odd status", http.StatusOK, `{"id":"pi_1","amount":5000,"currency":"eur","status":"disputed"}`, domain.PaymentStatusUnknown, nil},
		{"not found", http.StatusNotFound, `{}`, "", domain.ErrInvalidReference},
		{"rate limited", http.StatusTooManyRequests, `{}`, "", domain.ErrProviderUnavailable},
		{"server error", http.StatusServiceUnavailable, `{}`, "", domain.ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/payment_intents/pi_1", r.URL.Path)
				assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "sk_test", time.Second, zap.NewNop())
			res, err := c.RetrieveChargeStatus(context.Background(), "pi_1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.NotContains(t, err.Error(), "sk_test")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, res.Status)
			assert.Equal(t, int64(5000), res.AmountMinorUnits)
			assert.Equal(t, "EUR", res.Currency)
		})
	}
}

func TestRetrieveChargeStatusUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, "sk_test", time.Second, zap.NewNop())
	_, err := c.RetrieveChargeStatus(context.Background(), "pi_1")
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
}

func TestRetrieveChargeStatusWithoutKey(t *testing.T) {
	c := NewClient("http://unused", "", time.Second, zap.NewNop())
	_, err := c.RetrieveChargeStatus(context.Background(), "pi_1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
