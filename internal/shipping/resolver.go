// Package shipping quotes a parcel's shipping cost, preferring live carrier
// rates and falling back to a static zone table.
package shipping

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"settlement/internal/domain"
	"settlement/internal/money"
)

const DefaultWeightGrams = 500

const staticCarrier = "Standard Post"

var errNoCandidate = errors.New("no shipping method serves the destination")

// Method is one carrier service as listed by the rate provider.
type Method struct {
	ID             string
	Carrier        string
	Service        string
	MinWeightGrams int
	MaxWeightGrams int
	Countries      []CountryPrice
}

type CountryPrice struct {
	Country  string
	Price    decimal.Decimal
	Currency string
}

type CarrierRateProvider interface {
	ListMethods(ctx context.Context) ([]Method, error)
}

type QuoteRequest struct {
	Country     string `json:"countryCode"`
	PostalCode  string `json:"postalCode,omitempty"`
	WeightGrams int    `json:"weightGrams,omitempty"`
	Currency    string `json:"currency,omitempty"`
}

// quoteSource is one link of the resolver chain.
type quoteSource func(ctx context.Context, req QuoteRequest) (domain.ShippingQuote, error)

type Resolver struct {
	carrier     CarrierRateProvider
	rates       money.RateTable
	origin      string
	liveTimeout time.Duration
	logger      *zap.Logger
	chain       []quoteSource
}

// NewResolver builds the [live, static] chain. A nil carrier skips the live link.
func NewResolver(carrier CarrierRateProvider, rates money.RateTable, originCountry string, liveTimeout time.Duration, logger *zap.Logger) *Resolver {
	r := &Resolver{
		carrier:     carrier,
		rates:       rates,
		origin:      strings.ToUpper(originCountry),
		liveTimeout: liveTimeout,
		logger:      logger,
	}
	if carrier != nil {
		r.chain = append(r.chain, r.live)
	}
	r.chain = append(r.chain, r.static)
	return r
}

// Quote never fails; the static table answers whenever the live carrier cannot.
func (r *Resolver) Quote(ctx context.Context, req QuoteRequest) domain.ShippingQuote {
	req = r.normalize(req)

	for _, source := range r.chain {
		quote, err := source(ctx, req)
		if err == nil {
			return quote
		}
		r.logger.Warn("Shipping quote source failed, trying next",
			zap.String("country", req.Country),
			zap.Int("weight_grams", req.WeightGrams),
			zap.Error(err),
		)
	}

	quote, _ := r.static(ctx, req)
	return quote
}

func (r *Resolver) normalize(req QuoteRequest) QuoteRequest {
	req.Country = strings.ToUpper(strings.TrimSpace(req.Country))
	if req.Country == "" {
		req.Country = r.origin
	}
	if req.WeightGrams <= 0 {
		req.WeightGrams = DefaultWeightGrams
	}
	req.Currency = money.NormalizeCurrency(req.Currency)
	if req.Currency == "" {
		req.Currency = r.rates.Base
	}
	return req
}

func (r *Resolver) live(ctx context.Context, req QuoteRequest) (domain.ShippingQuote, error) {
	liveCtx, cancel := context.WithTimeout(ctx, r.liveTimeout)
	defer cancel()

	methods, err := r.carrier.ListMethods(liveCtx)
	if err != nil {
		return domain.ShippingQuote{}, err
	}

	best, err := pickMethod(methods, req.Country, req.WeightGrams)
	if err != nil {
		return domain.ShippingQuote{}, err
	}

	zone := zoneFor(r.origin, req.Country)
	return r.buildQuote(best.price.Price, best.price.Currency, best.method.Carrier, best.method.Service, zone, req.Currency, domain.QuoteSourceLive)
}

func (r *Resolver) static(_ context.Context, req QuoteRequest) (domain.ShippingQuote, error) {
	zone := zoneFor(r.origin, req.Country)
	cost := decimal.RequireFromString(tierCost(zone, req.WeightGrams))

	quote, err := r.buildQuote(cost, r.rates.Base, staticCarrier, "Parcel", zone, req.Currency, domain.QuoteSourceStatic)
	if err != nil {
		// Unknown target currency: quote in the base currency instead.
		return r.buildQuote(cost, r.rates.Base, staticCarrier, "Parcel", zone, r.rates.Base, domain.QuoteSourceStatic)
	}
	return quote, nil
}

func (r *Resolver) buildQuote(cost decimal.Decimal, costCurrency, carrier, service string, zone domain.ShippingZone, target string, source domain.QuoteSource) (domain.ShippingQuote, error) {
	converted, err := r.rates.Convert(cost, costCurrency, target)
	if err != nil {
		return domain.ShippingQuote{}, err
	}
	days := EstimateDelivery(carrier, service, zone)
	return domain.ShippingQuote{
		CostMinorUnits: money.ToMinorUnits(converted, target),
		Currency:       money.NormalizeCurrency(target),
		Carrier:        carrier,
		Service:        service,
		Zone:           zone,
		EstimatedDays:  days,
		EstimateText:   estimateText(days),
		Source:         source,
	}, nil
}

type candidate struct {
	method Method
	price  CountryPrice
}

// pickMethod keeps methods that serve the country at a positive price, then
// prefers those fitting the parcel weight and not letter-class. When that
// filter empties the set the cheapest country candidate is used.
func pickMethod(methods []Method, country string, weightGrams int) (candidate, error) {
	var all []candidate
	for _, m := range methods {
		for _, cp := range m.Countries {
			if strings.EqualFold(cp.Country, country) && cp.Price.IsPositive() {
				all = append(all, candidate{method: m, price: cp})
				break
			}
		}
	}
	if len(all) == 0 {
		return candidate{}, errNoCandidate
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].price.Price.LessThan(all[j].price.Price)
	})

	for _, c := range all {
		if fitsWeight(c.method, weightGrams) && !isLetterService(c.method) {
			return c, nil
		}
	}
	return all[0], nil
}

func fitsWeight(m Method, weightGrams int) bool {
	if m.MinWeightGrams > 0 && weightGrams < m.MinWeightGrams {
		return false
	}
	if m.MaxWeightGrams > 0 && weightGrams > m.MaxWeightGrams {
		return false
	}
	return true
}

func isLetterService(m Method) bool {
	name := strings.ToLower(m.Service)
	return strings.Contains(name, "unstamped") || strings.Contains(name, "letter")
}
