package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"settlement/internal/handler/http/admin"
	"settlement/internal/handler/http/checkout"
	"settlement/internal/handler/http/response"
	"settlement/internal/handler/http/webhooks"
)

type Deps struct {
	Finalizer        checkout.Finalizer
	Quoter           checkout.Quoter
	QuoteLimiter     *checkout.IPRateLimiter
	EventSink        webhooks.EventSink
	WebhookSecret    string
	WebhookTolerance time.Duration
	Fulfillment      admin.FulfillmentService
	AdminJWTSecret   string
	CORSOrigins      []string
	RequestTimeout   time.Duration
}

func NewRouter(deps Deps, logger *zap.Logger) http.Handler {
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(deps.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Language", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	checkout.RegisterRoutes(r, deps.Finalizer, deps.Quoter, deps.QuoteLimiter, logger)
	webhooks.RegisterRoutes(r, deps.EventSink, deps.WebhookSecret, deps.WebhookTolerance, logger)
	admin.RegisterRoutes(r, deps.Fulfillment, deps.AdminJWTSecret, logger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, response.CodeNotFound, "Not Found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method Not Allowed", nil)
	})

	return r
}
