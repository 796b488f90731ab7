// Package paymentprovider talks to the card payment provider's REST API and
// verifies its signed webhook deliveries.
package paymentprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"settlement/internal/domain"
)

var ErrNotConfigured = errors.New("payment provider secret key not configured")

type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL, secretKey string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type paymentIntentResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

// RetrieveChargeStatus fetches the current state of a payment intent.
// Transport failures, 5xx and 429 responses wrap domain.ErrProviderUnavailable;
// 404 maps to domain.ErrInvalidReference.
func (c *Client) RetrieveChargeStatus(ctx context.Context, reference string) (domain.PaymentVerificationResult, error) {
	if c.secretKey == "" {
		return domain.PaymentVerificationResult{}, ErrNotConfigured
	}

	endpoint := c.baseURL + "/v1/payment_intents/" + url.PathEscape(reference)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.PaymentVerificationResult{}, fmt.Errorf("failed to build provider request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.PaymentVerificationResult{}, fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, redact(err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.PaymentVerificationResult{}, fmt.Errorf("%w: provider has no payment %s", domain.ErrInvalidReference, reference)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return domain.PaymentVerificationResult{}, fmt.Errorf("%w: provider returned status %d", domain.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return domain.PaymentVerificationResult{}, fmt.Errorf("provider returned unexpected status %d", resp.StatusCode)
	}

	var body paymentIntentResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.PaymentVerificationResult{}, fmt.Errorf("%w: failed to decode provider response: %v", domain.ErrProviderUnavailable, err)
	}

	c.logger.Debug("Retrieved payment status",
		zap.String("reference", reference),
		zap.String("status", body.Status),
	)

	return domain.PaymentVerificationResult{
		Status:           mapStatus(body.Status),
		AmountMinorUnits: body.Amount,
		Currency:         strings.ToUpper(body.Currency),
	}, nil
}

func mapStatus(status string) domain.PaymentStatus {
	switch {
	case status == "succeeded":
		return domain.PaymentStatusSucceeded
	case status == "processing" || strings.HasPrefix(status, "requires_"):
		return domain.PaymentStatusPending
	case status == "canceled":
		return domain.PaymentStatusFailed
	}
	return domain.PaymentStatusUnknown
}

// redact keeps the transport error but drops the request URL it may embed.
func redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
