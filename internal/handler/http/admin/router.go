package admin

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func RegisterRoutes(r chi.Router, s FulfillmentService, jwtSecret string, l *zap.Logger) {
	handler := NewAdminHandler(s, l.With(zap.String("component", "AdminHTTPHandler")))

	r.Route("/admin/orders", func(r chi.Router) {
		r.Use(RequireAdmin(jwtSecret))
		r.Get("/{orderID}", handler.GetOrder)
		r.Patch("/{orderID}/status", handler.UpdateStatus)
		r.Put("/{orderID}/tracking", handler.SetTracking)
	})
}
