package util

import (
	"time"

	"github.com/google/uuid"
)

func GenerateUUID() string {
	return uuid.NewString()
}

const orderNumberAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateOrderNumber returns a human-facing number like ORD-240315-K7QX2M.
func GenerateOrderNumber(at time.Time) string {
	random := uuid.New()
	suffix := make([]byte, 6)
	for i := range suffix {
		suffix[i] = orderNumberAlphabet[int(random[i])%len(orderNumberAlphabet)]
	}
	return "ORD-" + at.UTC().Format("060102") + "-" + string(suffix)
}
