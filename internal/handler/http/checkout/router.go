package checkout

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func RegisterRoutes(r chi.Router, f Finalizer, q Quoter, limiter *IPRateLimiter, l *zap.Logger) {
	handler := NewCheckoutHandler(f, q, l.With(zap.String("component", "CheckoutHTTPHandler")))

	r.Post("/checkout/finalize", handler.Finalize)
	r.With(limiter.Middleware).Post("/shipping/quote", handler.Quote)
}
