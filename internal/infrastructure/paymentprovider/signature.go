package paymentprovider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"settlement/internal/domain"
)

const DefaultTolerance = 5 * time.Minute

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrInvalidSignature = errors.New("webhook signature does not match")
	ErrStaleSignature   = errors.New("webhook timestamp outside tolerance")
)

// now is replaced in tests.
var now = time.Now

// ConstructEvent checks a "t=<unix>,v1=<hex hmac>" header against the raw body
// and decodes the event. Any v1 entry may match, so rotated secrets verify.
func ConstructEvent(payload []byte, header, secret string, tolerance time.Duration) (domain.ProviderEvent, error) {
	var event domain.ProviderEvent

	timestamp, signatures, err := parseHeader(header)
	if err != nil {
		return event, err
	}
	if tolerance > 0 {
		age := now().Sub(time.Unix(timestamp, 0))
		if age > tolerance || age < -tolerance {
			return event, ErrStaleSignature
		}
	}

	expected := ComputeSignature(timestamp, payload, secret)
	matched := false
	for _, sig := range signatures {
		if hmac.Equal(expected, sig) {
			matched = true
			break
		}
	}
	if !matched {
		return event, ErrInvalidSignature
	}

	if err := json.Unmarshal(payload, &event); err != nil {
		return event, fmt.Errorf("failed to decode provider event: %w", err)
	}
	if event.ID == "" || event.Type == "" {
		return event, errors.New("provider event is missing id or type")
	}
	return event, nil
}

func ComputeSignature(timestamp int64, payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}

// SignatureHeader renders a header value for payload; used by tests and local tooling.
func SignatureHeader(timestamp int64, payload []byte, secret string) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(ComputeSignature(timestamp, payload, secret)))
}

func parseHeader(header string) (int64, [][]byte, error) {
	if strings.TrimSpace(header) == "" {
		return 0, nil, ErrMissingSignature
	}

	var (
		timestamp  int64
		signatures [][]byte
	)
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
			}
			timestamp = ts
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				continue
			}
			signatures = append(signatures, sig)
		}
	}
	if timestamp == 0 || len(signatures) == 0 {
		return 0, nil, ErrMissingSignature
	}
	return timestamp, signatures, nil
}
