package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Fake is an in-process Gateway for local runs and tests. It remembers every
// intent it created so webhook deliveries can be simulated against them.
type Fake struct {
	mu       sync.Mutex
	intents  map[string]IntentRequest
	byKey    map[string]Intent
	requests []IntentRequest
	err      error
}

var _ Gateway = (*Fake)(nil)

// NewFake creates a Fake gateway.
func NewFake() *Fake {
	return &Fake{
		intents: make(map[string]IntentRequest),
		byKey:   make(map[string]Intent),
	}
}

// FailWith makes subsequent CreatePaymentIntent calls return err. Pass nil to recover.
func (f *Fake) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// CreatePaymentIntent implements Gateway. Requests repeating an idempotency
// key get the original intent back.
func (f *Fake) CreatePaymentIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if err := ctx.Err(); err != nil {
		return Intent{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.requests = append(f.requests, req)
	if f.err != nil {
		return Intent{}, f.err
	}
	if req.IdempotencyKey != "" {
		if in, ok := f.byKey[req.IdempotencyKey]; ok {
			return in, nil
		}
	}

	id := "pi_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	in := Intent{ID: id, ClientSecret: fmt.Sprintf("%s_secret_%s", id, uuid.NewString()[:8])}
	f.intents[id] = req
	if req.IdempotencyKey != "" {
		f.byKey[req.IdempotencyKey] = in
	}
	return in, nil
}

// Requests returns every CreatePaymentIntent request received, including failed ones.
func (f *Fake) Requests() []IntentRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]IntentRequest(nil), f.requests...)
}

// Intent returns the request an intent was created from.
func (f *Fake) Intent(id string) (IntentRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.intents[id]
	return req, ok
}

// SignedEvent builds a signed webhook delivery for intentID. The amount is
// taken from the original intent request when known.
func (f *Fake) SignedEvent(eventType, intentID, secret string) (payload []byte, header string, err error) {
	var amount int64
	if req, ok := f.Intent(intentID); ok {
		amount = MinorUnits(req.Amount)
	}
	payload, err = EncodeEvent("evt_"+strings.ReplaceAll(uuid.NewString(), "-", ""), eventType, intentID, amount)
	if err != nil {
		return nil, "", err
	}
	return payload, NewSigner().Sign(payload, secret)[SignatureHeader], nil
}
