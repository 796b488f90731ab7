// Package carrier lists shipping methods and prices from the carrier
// aggregator's REST API.
package carrier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"settlement/internal/shipping"
)

var ErrNotConfigured = errors.New("carrier api key not configured")

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type methodsResponse struct {
	ShippingMethods []methodDTO `json:"shipping_methods"`
}

type methodDTO struct {
	ID        json.Number       `json:"id"`
	Name      string            `json:"name"`
	Carrier   string            `json:"carrier"`
	MinWeight decimal.Decimal   `json:"min_weight"`
	MaxWeight decimal.Decimal   `json:"max_weight"`
	Countries []countryPriceDTO `json:"countries"`
}

type countryPriceDTO struct {
	ISO2     string          `json:"iso_2"`
	Price    decimal.Decimal `json:"price"`
	Currency string          `json:"currency"`
}

var gramsPerKilo = decimal.NewFromInt(1000)

func (c *Client) ListMethods(ctx context.Context) ([]shipping.Method, error) {
	if c.apiKey == "" {
		return nil, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/shipping_methods", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build carrier request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("carrier request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("carrier returned status %d", resp.StatusCode)
	}

	var body methodsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode carrier response: %w", err)
	}

	methods := make([]shipping.Method, 0, len(body.ShippingMethods))
	for _, m := range body.ShippingMethods {
		method := shipping.Method{
			ID:             m.ID.String(),
			Carrier:        m.Carrier,
			Service:        m.Name,
			MinWeightGrams: int(m.MinWeight.Mul(gramsPerKilo).IntPart()),
			MaxWeightGrams: int(m.MaxWeight.Mul(gramsPerKilo).IntPart()),
		}
		for _, cp := range m.Countries {
			currency := cp.Currency
			if currency == "" {
				currency = "EUR"
			}
			method.Countries = append(method.Countries, shipping.CountryPrice{
				Country:  strings.ToUpper(cp.ISO2),
				Price:    cp.Price,
				Currency: currency,
			})
		}
		methods = append(methods, method)
	}

	c.logger.Debug("Fetched carrier shipping methods", zap.Int("count", len(methods)))
	return methods, nil
}
