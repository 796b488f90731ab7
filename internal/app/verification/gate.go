// Package verification confirms with the payment provider that a claimed
// payment really succeeded for the claimed amount.
package verification

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"settlement/internal/domain"
)

// amountTolerance absorbs a one-minor-unit rounding difference between the
// buyer's total and the provider's charge.
const amountTolerance = 1

type PaymentProvider interface {
	RetrieveChargeStatus(ctx context.Context, reference string) (domain.PaymentVerificationResult, error)
}

type Config struct {
	ReferencePattern string
	Attempts         int
	Backoff          time.Duration
	AttemptTimeout   time.Duration
}

type Gate struct {
	provider  PaymentProvider
	reference *regexp.Regexp
	attempts  int
	backoff   time.Duration
	timeout   time.Duration
	logger    *zap.Logger
}

func NewGate(provider PaymentProvider, cfg Config, logger *zap.Logger) (*Gate, error) {
	pattern, err := regexp.Compile(cfg.ReferencePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid payment reference pattern: %w", err)
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	return &Gate{
		provider:  provider,
		reference: pattern,
		attempts:  cfg.Attempts,
		backoff:   cfg.Backoff,
		timeout:   cfg.AttemptTimeout,
		logger:    logger,
	}, nil
}

// Verify never trusts the client's view of the payment: the provider's status
// and amount are fetched on every call.
func (g *Gate) Verify(ctx context.Context, reference string, claimedMinorUnits int64, claimedCurrency string) (domain.VerifiedPayment, error) {
	if !g.reference.MatchString(reference) {
		return domain.VerifiedPayment{}, fmt.Errorf("%w: malformed reference", domain.ErrInvalidReference)
	}

	result, err := g.retrieve(ctx, reference)
	if err != nil {
		return domain.VerifiedPayment{}, err
	}

	if result.Status != domain.PaymentStatusSucceeded {
		return domain.VerifiedPayment{}, &domain.PaymentNotCompletedError{Status: result.Status}
	}

	claimedCurrency = strings.ToUpper(claimedCurrency)
	diff := result.AmountMinorUnits - claimedMinorUnits
	if !strings.EqualFold(result.Currency, claimedCurrency) || diff > amountTolerance || diff < -amountTolerance {
		g.logger.Warn("Payment amount mismatch",
			zap.String("reference", reference),
			zap.Int64("claimed_minor_units", claimedMinorUnits),
			zap.String("claimed_currency", claimedCurrency),
			zap.Int64("provider_minor_units", result.AmountMinorUnits),
			zap.String("provider_currency", result.Currency),
		)
		return domain.VerifiedPayment{}, &domain.AmountMismatchError{
			ClaimedMinorUnits:  claimedMinorUnits,
			ClaimedCurrency:    claimedCurrency,
			ProviderMinorUnits: result.AmountMinorUnits,
			ProviderCurrency:   result.Currency,
		}
	}

	return domain.VerifiedPayment{
		Reference:        reference,
		AmountMinorUnits: result.AmountMinorUnits,
		Currency:         result.Currency,
	}, nil
}

// retrieve retries transient provider failures with exponential backoff.
// Any other error is returned on first sight.
func (g *Gate) retrieve(ctx context.Context, reference string) (domain.PaymentVerificationResult, error) {
	var lastErr error
	delay := g.backoff

	for attempt := 1; attempt <= g.attempts; attempt++ {
		result, err := g.attempt(ctx, reference)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, domain.ErrProviderUnavailable) {
			return domain.PaymentVerificationResult{}, err
		}
		lastErr = err

		if attempt == g.attempts {
			break
		}
		g.logger.Warn("Payment provider unavailable, retrying",
			zap.String("reference", reference),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return domain.PaymentVerificationResult{}, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}

	g.logger.Error("Payment provider unavailable after retries",
		zap.String("reference", reference),
		zap.Int("attempts", g.attempts),
		zap.Error(lastErr),
	)
	return domain.PaymentVerificationResult{}, lastErr
}

func (g *Gate) attempt(ctx context.Context, reference string) (domain.PaymentVerificationResult, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	result, err := g.provider.RetrieveChargeStatus(ctx, reference)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, domain.ErrProviderUnavailable) {
		return result, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	return result, err
}
