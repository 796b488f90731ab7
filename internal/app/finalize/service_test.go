package finalize

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"settlement/internal/app/verification"
	"settlement/internal/domain"
	"settlement/internal/locale"
	"settlement/internal/repository/order_repo"
	"settlement/internal/repository/order_repo/memory"
	"settlement/internal/shipping"
)

type fakeVerifier struct {
	calls      atomic.Int32
	VerifyFunc func(ctx context.Context, reference string, claimedMinorUnits int64, claimedCurrency string) (domain.VerifiedPayment, error)
}

func (f *fakeVerifier) Verify(ctx context.Context, reference string, claimedMinorUnits int64, claimedCurrency string) (domain.VerifiedPayment, error) {
	f.calls.Add(1)
	if f.VerifyFunc != nil {
		return f.VerifyFunc(ctx, reference, claimedMinorUnits, claimedCurrency)
	}
	return domain.VerifiedPayment{Reference: reference, AmountMinorUnits: claimedMinorUnits, Currency: claimedCurrency}, nil
}

type fakeQuoter struct {
	mu       sync.Mutex
	requests []shipping.QuoteRequest
}

func (f *fakeQuoter) Quote(_ context.Context, req shipping.QuoteRequest) domain.ShippingQuote {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	return domain.ShippingQuote{
		CostMinorUnits: 995,
		Currency:       req.Currency,
		Carrier:        "dhl",
		Service:        "Parcel",
		Zone:           domain.ZoneEU,
		EstimatedDays:  domain.DeliveryRange{Min: 2, Max: 5},
		Source:         domain.QuoteSourceLive,
	}
}

type dispatched struct {
	orderID string
	kind    domain.NotificationKind
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []dispatched
}

func (f *fakeNotifier) Dispatch(order *domain.Order, kind domain.NotificationKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, dispatched{order.ID, kind})
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fixture struct {
	creator  *Creator
	orders   *memory.OrderRepository
	verifier *fakeVerifier
	quoter   *fakeQuoter
	notifier *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithRepo(t, memory.NewOrderRepository(), nil)
}

func newFixtureWithRepo(t *testing.T, orders *memory.OrderRepository, repo order_repo.OrderRepository) *fixture {
	t.Helper()
	if repo == nil {
		repo = orders
	}
	f := &fixture{
		orders:   orders,
		verifier: &fakeVerifier{},
		quoter:   &fakeQuoter{},
		notifier: &fakeNotifier{},
	}
	f.creator = NewCreator(
		repo,
		f.verifier,
		f.quoter,
		locale.NewResolver([]string{"en", "fr", "de", "ja"}, "en"),
		f.notifier,
		Config{OrderEventsTopic: "order_events", ItemWeightGrams: 500, Timeout: 5 * time.Second},
		zap.NewNop(),
	)
	return f
}

func snapshot(ref string) domain.CheckoutSnapshot {
	return domain.CheckoutSnapshot{
		PaymentReference: ref,
		Customer: domain.CustomerInfo{
			Email:   "ann@example.com",
			Name:    "Ann",
			Address: domain.Address{Line1: "Hauptstr. 1", City: "Berlin", PostalCode: "10115", Country: "de"},
		},
		Items: []domain.OrderItem{
			{ProductID: "p1", Title: "Wool coat", UnitPrice: decimal.RequireFromString("30.00")},
			{ProductID: "p2", Title: "Silk scarf", UnitPrice: decimal.RequireFromString("10.50")},
		},
		Currency:       "eur",
		Subtotal:       decimal.RequireFromString("40.50"),
		Shipping:       decimal.RequireFromString("9.95"),
		Tax:            decimal.Zero,
		Total:          decimal.RequireFromString("50.45"),
		Locale:         "fr",
		RefererPath:    "/de/checkout",
		AcceptLanguage: "ja",
	}
}

func TestFinalizeCreatesOrder(t *testing.T) {
	f := newFixture(t)

	res, err := f.creator.Finalize(context.Background(), snapshot("pi_1"))
	require.NoError(t, err)
	require.True(t, res.Created)

	o := res.Order
	assert.Equal(t, domain.OrderStatusPaid, o.Status)
	assert.Regexp(t, `^ORD-\d{6}-[A-Z2-9]{6}$`, o.OrderNumber)
	assert.Equal(t, "EUR", o.Currency)
	assert.Equal(t, "fr", o.Locale)
	assert.Equal(t, "DE", o.Customer.Address.Country)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("50.45")))
	assert.Equal(t, domain.ShippingMethod{Carrier: "dhl", Service: "Parcel", Zone: domain.ZoneEU, EstimatedDays: domain.DeliveryRange{Min: 2, Max: 5}, Source: domain.QuoteSourceLive}, o.ShippingMethod)

	require.Len(t, f.quoter.requests, 1)
	assert.Equal(t, shipping.QuoteRequest{Country: "de", PostalCode: "10115", WeightGrams: 1000, Currency: "EUR"}, f.quoter.requests[0])

	msgs := f.orders.OutboxMessages()
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.OrderEventPaid, msgs[0].MessageType)
	assert.Equal(t, "order_events", msgs[0].Topic)
	assert.Equal(t, o.ID, msgs[0].Key)

	assert.ElementsMatch(t, []dispatched{
		{o.ID, domain.NotificationOrderConfirmation},
		{o.ID, domain.NotificationAdminNewOrder},
	}, f.notifier.sent)
}

func TestFinalizeVerifiesTotalInMinorUnits(t *testing.T) {
	f := newFixture(t)
	f.verifier.VerifyFunc = func(_ context.Context, ref string, minor int64, cur string) (domain.VerifiedPayment, error) {
		assert.Equal(t, "pi_1", ref)
		assert.Equal(t, int64(5045), minor)
		assert.Equal(t, "EUR", cur)
		return domain.VerifiedPayment{Reference: ref, AmountMinorUnits: minor, Currency: cur}, nil
	}

	_, err := f.creator.Finalize(context.Background(), snapshot("pi_1"))
	require.NoError(t, err)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	f := newFixture(t)

	first, err := f.creator.Finalize(context.Background(), snapshot("pi_1"))
	require.NoError(t, err)
	second, err := f.creator.Finalize(context.Background(), snapshot("pi_1"))
	require.NoError(t, err)

	assert.True(t, first.Created)
	assert.False(t, second.Created)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, first.Order.OrderNumber, second.Order.OrderNumber)
	assert.Equal(t, 1, f.orders.Count())
	assert.Equal(t, 2, f.notifier.count())
}

func TestFinalizeConcurrentCallsCreateOneOrder(t *testing.T) {
	f := newFixture(t)

	const callers = 20
	var (
		wg      sync.WaitGroup
		results = make([]Result, callers)
		errs    = make([]error, callers)
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.creator.Finalize(context.Background(), snapshot("pi_race"))
		}(i)
	}
	wg.Wait()

	created := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].Created {
			created++
		}
		assert.Equal(t, results[0].Order.ID, results[i].Order.ID)
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, f.orders.Count())
	assert.Len(t, f.orders.OutboxMessages(), 1)
	assert.Equal(t, 2, f.notifier.count())
}

func TestFinalizeRepeatWithDifferentTotalReturnsStoredOrder(t *testing.T) {
	f := newFixture(t)

	first, err := f.creator.Finalize(context.Background(), snapshot("pi_1"))
	require.NoError(t, err)

	changed := snapshot("pi_1")
	changed.Total = decimal.RequireFromString("99.00")
	second, err := f.creator.Finalize(context.Background(), changed)
	require.NoError(t, err)

	assert.False(t, second.Created)
	assert.True(t, second.Order.Total.Equal(first.Order.Total))
}

func TestFinalizeValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *domain.CheckoutSnapshot)
		field  string
	}{
		{"no items", func(s *domain.CheckoutSnapshot) { s.Items = nil }, "items"},
		{"bad email", func(s *domain.CheckoutSnapshot) { s.Customer.Email = "not-an-email" }, "customerInfo.email"},
		{"display name email", func(s *domain.CheckoutSnapshot) { s.Customer.Email = "Ann <ann@example.com>" }, "customerInfo.email"},
		{"negative total", func(s *domain.CheckoutSnapshot) { s.Total = decimal.RequireFromString("-1") }, "total"},
		{"oversized total", func(s *domain.CheckoutSnapshot) { s.Total = decimal.RequireFromString("184467440737095616.16") }, "total"},
		{"oversized unit price", func(s *domain.CheckoutSnapshot) { s.Items[1].UnitPrice = decimal.RequireFromString("1000000000000000") }, "items[1].unitPrice"},
		{"negative unit price", func(s *domain.CheckoutSnapshot) { s.Items[0].UnitPrice = decimal.RequireFromString("-3") }, "items[0].unitPrice"},
		{"bad currency", func(s *domain.CheckoutSnapshot) { s.Currency = "EURO" }, "currency"},
		{"missing reference", func(s *domain.CheckoutSnapshot) { s.PaymentReference = " " }, "paymentReference"},
		{"bad country", func(s *domain.CheckoutSnapshot) { s.Customer.Address.Country = "Germany" }, "customerInfo.address.country"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			s := snapshot("pi_1")
			tt.mutate(&s)

			_, err := f.creator.Finalize(context.Background(), s)
			require.ErrorIs(t, err, domain.ErrValidation)

			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tt.field)
			assert.Equal(t, int32(0), f.verifier.calls.Load())
			assert.Equal(t, 0, f.orders.Count())
		})
	}
}

type chargedProvider struct {
	amount   int64
	currency string
}

func (p chargedProvider) RetrieveChargeStatus(context.Context, string) (domain.PaymentVerificationResult, error) {
	return domain.PaymentVerificationResult{Status: domain.PaymentStatusSucceeded, AmountMinorUnits: p.amount, Currency: p.currency}, nil
}

func TestFinalizeRejectsTotalThatWrapsMinorUnits(t *testing.T) {
	gate, err := verification.NewGate(chargedProvider{amount: 10000, currency: "EUR"}, verification.Config{
		ReferencePattern: `^pi_[A-Za-z0-9_]+$`,
		Attempts:         1,
		AttemptTimeout:   time.Second,
	}, zap.NewNop())
	require.NoError(t, err)

	orders := memory.NewOrderRepository()
	creator := NewCreator(orders, gate, &fakeQuoter{}, locale.NewResolver([]string{"en"}, "en"), &fakeNotifier{},
		Config{OrderEventsTopic: "order_events"}, zap.NewNop())

	// 2^64 + 10000 cents would wrap to 10000 if it reached the int64 conversion.
	s := snapshot("pi_abc")
	s.Subtotal = decimal.RequireFromString("184467440737095616.16")
	s.Total = decimal.RequireFromString("184467440737095616.16")

	_, err = creator.Finalize(context.Background(), s)
	require.ErrorIs(t, err, domain.ErrValidation)
	assert.NotErrorIs(t, err, domain.ErrAmountMismatch)
	assert.Equal(t, 0, orders.Count())

	s = snapshot("pi_abc")
	s.Subtotal = decimal.RequireFromString("90.05")
	s.Total = decimal.RequireFromString("100.00")
	res, err := creator.Finalize(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, res.Created)
}

func TestFinalizeVerificationFailureStoresNothing(t *testing.T) {
	for _, verifyErr := range []error{
		&domain.AmountMismatchError{ClaimedMinorUnits: 5045, ClaimedCurrency: "EUR", ProviderMinorUnits: 100, ProviderCurrency: "EUR"},
		&domain.PaymentNotCompletedError{Status: domain.PaymentStatusPending},
		fmt.Errorf("%w: 503", domain.ErrProviderUnavailable),
		domain.ErrInvalidReference,
	} {
		t.Run(verifyErr.Error(), func(t *testing.T) {
			f := newFixture(t)
			f.verifier.VerifyFunc = func(context.Context, string, int64, string) (domain.VerifiedPayment, error) {
				return domain.VerifiedPayment{}, verifyErr
			}

			_, err := f.creator.Finalize(context.Background(), snapshot("pi_1"))
			assert.ErrorIs(t, err, verifyErr)
			assert.Equal(t, 0, f.orders.Count())
			assert.Equal(t, 0, f.notifier.count())
		})
	}
}

func TestFinalizeSurvivesCancelledCaller(t *testing.T) {
	f := newFixture(t)
	f.verifier.VerifyFunc = func(ctx context.Context, ref string, minor int64, cur string) (domain.VerifiedPayment, error) {
		require.NoError(t, ctx.Err())
		return domain.VerifiedPayment{Reference: ref, AmountMinorUnits: minor, Currency: cur}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := f.creator.Finalize(ctx, snapshot("pi_1"))
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, 1, f.orders.Count())
}

// collidingRepo reports one spurious conflict, as an order number clash would.
type collidingRepo struct {
	*memory.OrderRepository
	collisions atomic.Int32
}

func (r *collidingRepo) CreateIfAbsent(ctx context.Context, order *domain.Order, msg *domain.OutboxMessage) error {
	if r.collisions.Add(1) == 1 {
		return fmt.Errorf("%w: orders_order_number_key", order_repo.ErrAlreadyExists)
	}
	return r.OrderRepository.CreateIfAbsent(ctx, order, msg)
}

func TestFinalizeRetriesOrderNumberCollision(t *testing.T) {
	store := memory.NewOrderRepository()
	repo := &collidingRepo{OrderRepository: store}
	f := newFixtureWithRepo(t, store, repo)

	res, err := f.creator.Finalize(context.Background(), snapshot("pi_1"))
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, int32(2), repo.collisions.Load())
	assert.Equal(t, 1, store.Count())

	stored, err := store.GetByID(context.Background(), res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Order.OrderNumber, stored.OrderNumber)
	assert.Equal(t, res.Order.ID, store.OutboxMessages()[0].AggregateID)
}
