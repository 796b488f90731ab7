package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"settlement/internal/domain"
	"settlement/internal/handler/http/response"
)

type FulfillmentService interface {
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, to domain.OrderStatus) (*domain.Order, error)
	SetTracking(ctx context.Context, id, trackingNumber string) (*domain.Order, error)
}

type AdminHandler struct {
	service FulfillmentService
	logger  *zap.Logger
}

func NewAdminHandler(s FulfillmentService, l *zap.Logger) *AdminHandler {
	return &AdminHandler{service: s, logger: l}
}

type OrderResponse struct {
	ID               string                     `json:"id"`
	OrderNumber      string                     `json:"orderNumber"`
	PaymentReference string                     `json:"paymentReference"`
	Status           domain.OrderStatus         `json:"status"`
	Customer         domain.CustomerInfo        `json:"customerInfo"`
	Items            []domain.OrderItem         `json:"items"`
	Currency         string                     `json:"currency"`
	Subtotal         decimal.Decimal            `json:"subtotal"`
	Shipping         decimal.Decimal            `json:"shipping"`
	Tax              decimal.Decimal            `json:"tax"`
	Total            decimal.Decimal            `json:"total"`
	ShippingMethod   domain.ShippingMethod      `json:"shippingMethod"`
	Locale           string                     `json:"locale"`
	TrackingNumber   string                     `json:"trackingNumber,omitempty"`
	EmailHistory     []domain.EmailHistoryEntry `json:"emailHistory"`
	CreatedAt        time.Time                  `json:"createdAt"`
	UpdatedAt        time.Time                  `json:"updatedAt"`
}

func toOrderResponse(o *domain.Order) OrderResponse {
	history := o.EmailHistory
	if history == nil {
		history = []domain.EmailHistoryEntry{}
	}
	return OrderResponse{
		ID:               o.ID,
		OrderNumber:      o.OrderNumber,
		PaymentReference: o.PaymentReference,
		Status:           o.Status,
		Customer:         o.Customer,
		Items:            o.Items,
		Currency:         o.Currency,
		Subtotal:         o.Subtotal,
		Shipping:         o.Shipping,
		Tax:              o.Tax,
		Total:            o.Total,
		ShippingMethod:   o.ShippingMethod,
		Locale:           o.Locale,
		TrackingNumber:   o.TrackingNumber,
		EmailHistory:     history,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type setTrackingRequest struct {
	TrackingNumber string `json:"trackingNumber"`
}

func (h *AdminHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	order, err := h.service.GetOrder(r.Context(), orderID)
	if err != nil {
		response.FromError(w, err, h.logger)
		return
	}
	response.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for UpdateStatus", zap.Error(err))
		response.Error(w, http.StatusBadRequest, response.CodeValidation, "Invalid request body", nil)
		return
	}
	status, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		response.Error(w, http.StatusBadRequest, response.CodeValidation, domain.ErrValidation.Error(),
			map[string]string{"status": err.Error()})
		return
	}

	order, err := h.service.UpdateStatus(r.Context(), orderID, status)
	if err != nil {
		h.logger.Info("Status update rejected", zap.String("order_id", orderID), zap.Error(err))
		response.FromError(w, err, h.logger)
		return
	}
	response.JSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *AdminHandler) SetTracking(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req setTrackingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Invalid request body for SetTracking", zap.Error(err))
		response.Error(w, http.StatusBadRequest, response.CodeValidation, "Invalid request body", nil)
		return
	}

	order, err := h.service.SetTracking(r.Context(), orderID, req.TrackingNumber)
	if err != nil {
		h.logger.Info("Tracking update rejected", zap.String("order_id", orderID), zap.Error(err))
		response.FromError(w, err, h.logger)
		return
	}
	response.JSON(w, http.StatusOK, toOrderResponse(order))
}
