package verification

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"settlement/internal/domain"
)

type fakeProvider struct {
	calls                    atomic.Int32
	RetrieveChargeStatusFunc func(ctx context.Context, reference string) (domain.PaymentVerificationResult, error)
}

func (f *fakeProvider) RetrieveChargeStatus(ctx context.Context, reference string) (domain.PaymentVerificationResult, error) {
	f.calls.Add(1)
	return f.RetrieveChargeStatusFunc(ctx, reference)
}

func succeeded(amount int64, currency string) func(context.Context, string) (domain.PaymentVerificationResult, error) {
	return func(context.Context, string) (domain.PaymentVerificationResult, error) {
		return domain.PaymentVerificationResult{Status: domain.PaymentStatusSucceeded, AmountMinorUnits: amount, Currency: currency}, nil
	}
}

func newTestGate(t *testing.T, p PaymentProvider) *Gate {
	t.Helper()
	g, err := NewGate(p, Config{
		ReferencePattern: `^pi_[A-Za-z0-9_]+$`,
		Attempts:         3,
		Backoff:          time.Millisecond,
		AttemptTimeout:   50 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	return g
}

func TestVerifySucceeded(t *testing.T) {
	p := &fakeProvider{RetrieveChargeStatusFunc: succeeded(5000, "EUR")}
	g := newTestGate(t, p)

	for _, claimed := range []int64{4999, 5000, 5001} {
		t.Run(fmt.Sprint(claimed), func(t *testing.T) {
			v, err := g.Verify(context.Background(), "pi_123", claimed, "eur")
			require.NoError(t, err)
			assert.Equal(t, int64(5000), v.AmountMinorUnits)
			assert.Equal(t, "pi_123", v.Reference)
		})
	}
}

func TestVerifyRejectsMalformedReferenceWithoutCallingProvider(t *testing.T) {
	p := &fakeProvider{RetrieveChargeStatusFunc: succeeded(5000, "EUR")}
	g := newTestGate(t, p)

	for _, ref := range []string{"", "ch_123", "pi_12 3", "pi_"} {
		_, err := g.Verify(context.Background(), ref, 5000, "EUR")
		assert.ErrorIs(t, err, domain.ErrInvalidReference, ref)
	}
	assert.Equal(t, int32(0), p.calls.Load())
}

func TestVerifyAmountMismatch(t *testing.T) {
	p := &fakeProvider{RetrieveChargeStatusFunc: succeeded(4000, "EUR")}
	g := newTestGate(t, p)

	_, err := g.Verify(context.Background(), "pi_123", 5000, "EUR")
	require.ErrorIs(t, err, domain.ErrAmountMismatch)

	var mismatch *domain.AmountMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, int64(5000), mismatch.ClaimedMinorUnits)
	assert.Equal(t, int64(4000), mismatch.ProviderMinorUnits)
}

func TestVerifyCurrencyMismatch(t *testing.T) {
	p := &fakeProvider{RetrieveChargeStatusFunc: succeeded(5000, "USD")}
	g := newTestGate(t, p)

	_, err := g.Verify(context.Background(), "pi_123", 5000, "EUR")
	assert.ErrorIs(t, err, domain.ErrAmountMismatch)
}

func TestVerifyNotCompleted(t *testing.T) {
	for _, status := range []domain.PaymentStatus{domain.PaymentStatusPending, domain.PaymentStatusFailed, domain.PaymentStatusUnknown} {
		t.Run(string(status), func(t *testing.T) {
			p := &fakeProvider{RetrieveChargeStatusFunc: func(context.Context, string) (domain.PaymentVerificationResult, error) {
				return domain.PaymentVerificationResult{Status: status, AmountMinorUnits: 5000, Currency: "EUR"}, nil
			}}
			_, err := newTestGate(t, p).Verify(context.Background(), "pi_123", 5000, "EUR")

			var notDone *domain.PaymentNotCompletedError
			require.True(t, errors.As(err, &notDone))
			assert.Equal(t, status, notDone.Status)
		})
	}
}

func TestVerifyRetriesTransientErrors(t *testing.T) {
	p := &fakeProvider{}
	p.RetrieveChargeStatusFunc = func(ctx context.Context, ref string) (domain.PaymentVerificationResult, error) {
		if p.calls.Load() < 3 {
			return domain.PaymentVerificationResult{}, fmt.Errorf("%w: 503", domain.ErrProviderUnavailable)
		}
		return succeeded(5000, "EUR")(ctx, ref)
	}

	_, err := newTestGate(t, p).Verify(context.Background(), "pi_123", 5000, "EUR")
	require.NoError(t, err)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestVerifyGivesUpAfterAttempts(t *testing.T) {
	p := &fakeProvider{RetrieveChargeStatusFunc: func(context.Context, string) (domain.PaymentVerificationResult, error) {
		return domain.PaymentVerificationResult{}, fmt.Errorf("%w: 502", domain.ErrProviderUnavailable)
	}}

	_, err := newTestGate(t, p).Verify(context.Background(), "pi_123", 5000, "EUR")
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestVerifyTreatsAttemptTimeoutAsTransient(t *testing.T) {
	p := &fakeProvider{RetrieveChargeStatusFunc: func(ctx context.Context, _ string) (domain.PaymentVerificationResult, error) {
		<-ctx.Done()
		return domain.PaymentVerificationResult{}, ctx.Err()
	}}

	_, err := newTestGate(t, p).Verify(context.Background(), "pi_123", 5000, "EUR")
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)
	assert.Equal(t, int32(3), p.calls.Load())
}

func TestVerifyDoesNotRetryPermanentErrors(t *testing.T) {
	p := &fakeProvider{RetrieveChargeStatusFunc: func(context.Context, string) (domain.PaymentVerificationResult, error) {
		return domain.PaymentVerificationResult{}, fmt.Errorf("%w: 404", domain.ErrInvalidReference)
	}}

	_, err := newTestGate(t, p).Verify(context.Background(), "pi_123", 5000, "EUR")
	assert.ErrorIs(t, err, domain.ErrInvalidReference)
	assert.Equal(t, int32(1), p.calls.Load())
}

func TestNewGateRejectsBadPattern(t *testing.T) {
	_, err := NewGate(&fakeProvider{}, Config{ReferencePattern: "("}, zap.NewNop())
	assert.Error(t, err)
}

func TestVerifyClassificationIsStable(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		claimed int64
		wantErr error
	}{
		{name: "accepted", amount: 10000, claimed: 10001},
		{name: "mismatch", amount: 4000, claimed: 5000, wantErr: domain.ErrAmountMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGate(t, &fakeProvider{RetrieveChargeStatusFunc: succeeded(tt.amount, "EUR")})

			first, firstErr := g.Verify(context.Background(), "pi_abc", tt.claimed, "EUR")
			second, secondErr := g.Verify(context.Background(), "pi_abc", tt.claimed, "EUR")

			assert.Equal(t, first, second)
			if tt.wantErr != nil {
				assert.ErrorIs(t, firstErr, tt.wantErr)
				assert.ErrorIs(t, secondErr, tt.wantErr)
				return
			}
			assert.NoError(t, firstErr)
			assert.NoError(t, secondErr)
		})
	}
}
