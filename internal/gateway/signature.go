package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/wondertwin-ai/loyaltypay/internal/apperr"
)

// SignatureHeader is the request header carrying the webhook signature.
const SignatureHeader = "Stripe-Signature"

// DefaultTolerance is the maximum accepted age of a signed webhook.
const DefaultTolerance = webhook.DefaultTolerance

// Verifier checks webhook signatures against the shared endpoint secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

// NewVerifier creates a Verifier. A zero tolerance uses DefaultTolerance.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}
}

// Verify returns an error wrapping apperr.ErrInvalidSignature unless header is
// a valid, fresh signature of payload.
func (v *Verifier) Verify(payload []byte, header string) error {
	if v.secret == "" {
		return fmt.Errorf("%w: no webhook secret configured", apperr.ErrInvalidSignature)
	}
	if header == "" {
		return fmt.Errorf("%w: missing %s header", apperr.ErrInvalidSignature, SignatureHeader)
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, header, v.secret, v.tolerance); err != nil {
		switch {
		case errors.Is(err, webhook.ErrTooOld):
			return fmt.Errorf("%w: timestamp outside tolerance", apperr.ErrInvalidSignature)
		case errors.Is(err, webhook.ErrNotSigned), errors.Is(err, webhook.ErrInvalidHeader):
			return fmt.Errorf("%w: malformed header", apperr.ErrInvalidSignature)
		default:
			return fmt.Errorf("%w: %v", apperr.ErrInvalidSignature, err)
		}
	}
	return nil
}

// Signer produces Stripe v1 signature headers. Used by the local fake
// gateway and by tests that post webhooks.
//
// The header format is
//
//	Stripe-Signature: t={timestamp},v1={hex(HMAC-SHA256(secret, "{timestamp}.{payload}"))}
type Signer struct {
	now func() time.Time
}

// NewSigner creates a Signer using wall time.
func NewSigner() *Signer {
	return &Signer{now: time.Now}
}

// Sign returns the headers to attach to a webhook delivery of payload.
func (s *Signer) Sign(payload []byte, secret string) map[string]string {
	return map[string]string{SignatureHeader: s.Header(payload, secret, s.now().Unix())}
}

// Header returns the signature header value for payload at timestamp.
func (s *Signer) Header(payload []byte, secret string, timestamp int64) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, ComputeSignature(timestamp, payload, secret))
}

// ComputeSignature computes the v1 HMAC-SHA256 signature over "{timestamp}.{payload}".
func ComputeSignature(timestamp int64, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
