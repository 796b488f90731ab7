package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrInvalidReference    = errors.New("invalid payment reference")
	ErrPaymentNotCompleted = errors.New("payment not completed")
	ErrAmountMismatch      = errors.New("amount mismatch")
	ErrNotificationFailed  = errors.New("notification failed")

	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrStatusConflict    = errors.New("order status changed concurrently")
)

// ValidationError lists the offending fields of a malformed request.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError() *ValidationError {
	return &ValidationError{Fields: make(map[string]string)}
}

func (e *ValidationError) Add(field, problem string) {
	e.Fields[field] = problem
}

func (e *ValidationError) Empty() bool {
	return len(e.Fields) == 0
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, problem := range e.Fields {
		parts = append(parts, field+": "+problem)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type PaymentNotCompletedError struct {
	Status PaymentStatus
}

func (e *PaymentNotCompletedError) Error() string {
	return fmt.Sprintf("%s: provider reports status %q", ErrPaymentNotCompleted, e.Status)
}

func (e *PaymentNotCompletedError) Is(target error) bool { return target == ErrPaymentNotCompleted }

// AmountMismatchError carries both sides of the comparison in minor units.
type AmountMismatchError struct {
	ClaimedMinorUnits  int64
	ClaimedCurrency    string
	ProviderMinorUnits int64
	ProviderCurrency   string
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("%s: claimed %d %s, provider charged %d %s",
		ErrAmountMismatch, e.ClaimedMinorUnits, e.ClaimedCurrency, e.ProviderMinorUnits, e.ProviderCurrency)
}

func (e *AmountMismatchError) Is(target error) bool { return target == ErrAmountMismatch }

// IsPermanentRejection reports whether retrying the same inputs can never succeed.
func IsPermanentRejection(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidReference) ||
		errors.Is(err, ErrPaymentNotCompleted) ||
		errors.Is(err, ErrAmountMismatch)
}
