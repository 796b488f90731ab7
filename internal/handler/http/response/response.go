// Package response renders JSON bodies and the typed error envelope shared by
// every HTTP handler.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"settlement/internal/domain"
)

const (
	CodeValidation          = "validation_failed"
	CodeInvalidReference    = "invalid_reference"
	CodePaymentNotCompleted = "payment_not_completed"
	CodeAmountMismatch      = "amount_mismatch"
	CodeProviderUnavailable = "provider_unavailable"
	CodeNotFound            = "not_found"
	CodeInvalidTransition   = "invalid_transition"
	CodeStatusConflict      = "status_conflict"
	CodeInvalidSignature    = "invalid_signature"
	CodeUnauthorized        = "unauthorized"
	CodeRateLimited         = "rate_limited"
	CodeInternal            = "internal_error"
)

type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, ErrorBody{Error: message, Code: code, Details: details})
}

// FromError maps a domain error onto its status code and envelope. Anything it
// does not recognise is logged and reported as a bare 500.
func FromError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var (
		validationErr  *domain.ValidationError
		notCompleted   *domain.PaymentNotCompletedError
		amountMismatch *domain.AmountMismatchError
	)

	switch {
	case errors.As(err, &validationErr):
		Error(w, http.StatusBadRequest, CodeValidation, domain.ErrValidation.Error(), validationErr.Fields)
	case errors.Is(err, domain.ErrValidation):
		Error(w, http.StatusBadRequest, CodeValidation, err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidReference):
		Error(w, http.StatusBadRequest, CodeInvalidReference, domain.ErrInvalidReference.Error(), nil)
	case errors.As(err, &notCompleted):
		Error(w, http.StatusPaymentRequired, CodePaymentNotCompleted, domain.ErrPaymentNotCompleted.Error(),
			map[string]string{"status": string(notCompleted.Status)})
	case errors.Is(err, domain.ErrPaymentNotCompleted):
		Error(w, http.StatusPaymentRequired, CodePaymentNotCompleted, domain.ErrPaymentNotCompleted.Error(), nil)
	case errors.As(err, &amountMismatch):
		Error(w, http.StatusConflict, CodeAmountMismatch, domain.ErrAmountMismatch.Error(), map[string]any{
			"claimedMinorUnits":  amountMismatch.ClaimedMinorUnits,
			"claimedCurrency":    amountMismatch.ClaimedCurrency,
			"providerMinorUnits": amountMismatch.ProviderMinorUnits,
			"providerCurrency":   amountMismatch.ProviderCurrency,
		})
	case errors.Is(err, domain.ErrAmountMismatch):
		Error(w, http.StatusConflict, CodeAmountMismatch, domain.ErrAmountMismatch.Error(), nil)
	case errors.Is(err, domain.ErrProviderUnavailable):
		Error(w, http.StatusServiceUnavailable, CodeProviderUnavailable, domain.ErrProviderUnavailable.Error(), nil)
	case errors.Is(err, domain.ErrOrderNotFound):
		Error(w, http.StatusNotFound, CodeNotFound, domain.ErrOrderNotFound.Error(), nil)
	case errors.Is(err, domain.ErrInvalidTransition):
		Error(w, http.StatusConflict, CodeInvalidTransition, err.Error(), nil)
	case errors.Is(err, domain.ErrStatusConflict):
		Error(w, http.StatusConflict, CodeStatusConflict, domain.ErrStatusConflict.Error(), nil)
	default:
		logger.Error("Unhandled error", zap.Error(err))
		Error(w, http.StatusInternalServerError, CodeInternal, "Internal server error", nil)
	}
}
