package domain

type PaymentStatus string

const (
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusUnknown   PaymentStatus = "unknown"
)

// PaymentVerificationResult is the provider's view of a charge. It is fetched
// on every verification and never taken from the client.
type PaymentVerificationResult struct {
	Status           PaymentStatus
	AmountMinorUnits int64
	Currency         string
}

type VerifiedPayment struct {
	Reference        string
	AmountMinorUnits int64
	Currency         string
}
