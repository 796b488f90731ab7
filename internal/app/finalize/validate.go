package finalize

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"settlement/internal/domain"
)

var (
	currencyPattern = regexp.MustCompile(`^[A-Za-z]{3}$`)
	countryPattern  = regexp.MustCompile(`^[A-Za-z]{2}$`)
)

// maxAmount is the first value NUMERIC(19,4) cannot hold. Anything below it
// also fits in int64 minor units for every currency.
var maxAmount = decimal.New(1, 15)

// validate checks the snapshot's shape without any external calls.
func validate(s *domain.CheckoutSnapshot) error {
	verr := domain.NewValidationError()

	if strings.TrimSpace(s.PaymentReference) == "" {
		verr.Add("paymentReference", "is required")
	}

	if _, err := mail.ParseAddress(s.Customer.Email); err != nil || strings.ContainsAny(s.Customer.Email, "<> ") {
		verr.Add("customerInfo.email", "must be a valid email address")
	}
	if strings.TrimSpace(s.Customer.Name) == "" {
		verr.Add("customerInfo.name", "is required")
	}
	if !countryPattern.MatchString(s.Customer.Address.Country) {
		verr.Add("customerInfo.address.country", "must be an ISO 3166-1 alpha-2 code")
	}

	if len(s.Items) == 0 {
		verr.Add("items", "at least one item is required")
	}
	for i, item := range s.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			verr.Add(fmt.Sprintf("items[%d].productId", i), "is required")
		}
		switch {
		case item.UnitPrice.IsNegative():
			verr.Add(fmt.Sprintf("items[%d].unitPrice", i), "must not be negative")
		case item.UnitPrice.GreaterThanOrEqual(maxAmount):
			verr.Add(fmt.Sprintf("items[%d].unitPrice", i), "is too large")
		}
	}

	if !currencyPattern.MatchString(s.Currency) {
		verr.Add("currency", "must be a 3-letter ISO 4217 code")
	}
	for field, amount := range map[string]decimal.Decimal{
		"subtotal": s.Subtotal,
		"shipping": s.Shipping,
		"tax":      s.Tax,
		"total":    s.Total,
	} {
		switch {
		case amount.IsNegative():
			verr.Add(field, "must not be negative")
		case amount.GreaterThanOrEqual(maxAmount):
			verr.Add(field, "is too large")
		}
	}

	if verr.Empty() {
		return nil
	}
	return verr
}
