package checkout

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"settlement/internal/app/finalize"
	"settlement/internal/domain"
	"settlement/internal/handler/http/response"
	"settlement/internal/shipping"
)

const maxBodyBytes = 1 << 20

type Finalizer interface {
	Finalize(ctx context.Context, snap domain.CheckoutSnapshot) (finalize.Result, error)
}

type Quoter interface {
	Quote(ctx context.Context, req shipping.QuoteRequest) domain.ShippingQuote
}

type CheckoutHandler struct {
	finalizer Finalizer
	quoter    Quoter
	logger    *zap.Logger
}

func NewCheckoutHandler(f Finalizer, q Quoter, l *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{finalizer: f, quoter: q, logger: l}
}

type FinalizeResponse struct {
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
}

func (h *CheckoutHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	var snap domain.CheckoutSnapshot
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&snap); err != nil {
		h.logger.Warn("Invalid request body for Finalize", zap.Error(err))
		response.Error(w, http.StatusBadRequest, response.CodeValidation, "Invalid request body", nil)
		return
	}
	snap.RefererPath = r.Referer()
	snap.AcceptLanguage = r.Header.Get("Accept-Language")

	res, err := h.finalizer.Finalize(r.Context(), snap)
	if err != nil {
		h.logger.Info("Finalize rejected",
			zap.String("payment_reference", snap.PaymentReference),
			zap.Error(err))
		response.FromError(w, err, h.logger)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	response.JSON(w, status, FinalizeResponse{
		OrderID:     res.Order.ID,
		OrderNumber: res.Order.OrderNumber,
	})
}

func (h *CheckoutHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req shipping.QuoteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for Quote", zap.Error(err))
		response.Error(w, http.StatusBadRequest, response.CodeValidation, "Invalid request body", nil)
		return
	}
	if req.WeightGrams < 0 {
		response.Error(w, http.StatusBadRequest, response.CodeValidation, domain.ErrValidation.Error(),
			map[string]string{"weightGrams": "must not be negative"})
		return
	}
	if n := len(req.Country); n != 0 && n != 2 {
		response.Error(w, http.StatusBadRequest, response.CodeValidation, domain.ErrValidation.Error(),
			map[string]string{"countryCode": "must be an ISO 3166-1 alpha-2 code"})
		return
	}

	response.JSON(w, http.StatusOK, h.quoter.Quote(r.Context(), req))
}
