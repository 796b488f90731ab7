package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:    {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped: {OrderStatusDelivered},
}

// ParseOrderStatus returns an error for values outside the order lifecycle.
func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case OrderStatusPending, OrderStatusPaid, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return st, nil
	}
	return "", errors.New("unknown order status")
}

// CanTransition reports whether an order in status from may move to status to.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderStatusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country"`
}

type CustomerInfo struct {
	Email   string  `json:"email"`
	Name    string  `json:"name"`
	Phone   string  `json:"phone,omitempty"`
	Address Address `json:"address"`
}

// OrderItem is a snapshot of the catalog entry at the time of purchase.
type OrderItem struct {
	ProductID string          `json:"productId"`
	Title     string          `json:"title"`
	Brand     string          `json:"brand,omitempty"`
	Era       string          `json:"era,omitempty"`
	Size      string          `json:"size,omitempty"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	ImageRef  string          `json:"imageRef,omitempty"`
}

// ShippingMethod is the part of a ShippingQuote kept on the order.
type ShippingMethod struct {
	Carrier       string        `json:"carrier"`
	Service       string        `json:"service"`
	Zone          ShippingZone  `json:"zone"`
	EstimatedDays DeliveryRange `json:"estimatedDays"`
	Source        QuoteSource   `json:"source"`
}

type Order struct {
	ID               string
	OrderNumber      string
	PaymentReference string
	Customer         CustomerInfo
	Items            []OrderItem
	Currency         string
	Subtotal         decimal.Decimal
	Shipping         decimal.Decimal
	Tax              decimal.Decimal
	Total            decimal.Decimal
	ShippingMethod   ShippingMethod
	Status           OrderStatus
	Locale           string
	TrackingNumber   string
	EmailHistory     []EmailHistoryEntry
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (o *Order) MarkAs(status OrderStatus) error {
	if !CanTransition(o.Status, status) {
		return ErrInvalidTransition
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	return nil
}
