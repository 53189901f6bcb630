package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type headerSigner struct{}

func (headerSigner) Sign(_ []byte, secret string) map[string]string {
	return map[string]string{"X-Signature": "sig_" + secret}
}

type failingSink struct{ err error }

func (f failingSink) Notify(context.Context, Notification) error { return f.err }

func TestWebhookSinkDelivers(t *testing.T) {
	var (
		received atomic.Int32
		sigSeen  atomic.Value
		body     atomic.Value
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		sigSeen.Store(r.Header.Get("X-Signature"))
		var n Notification
		_ = json.NewDecoder(r.Body).Decode(&n)
		body.Store(n)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewWebhookSink(WebhookConfig{URL: srv.URL, Secret: "kitchen", Signer: headerSigner{}})
	defer sink.Close(context.Background())

	n := New(TypeOrderCreated, "o1", time.Now())
	n.Status = "pending"
	require.NoError(t, sink.Notify(context.Background(), n))
	sink.Flush()

	assert.Equal(t, int32(1), received.Load())
	assert.Equal(t, "sig_kitchen", sigSeen.Load())
	assert.Equal(t, "o1", body.Load().(Notification).OrderID)

	deliveries := sink.Deliveries()
	require.Len(t, deliveries, 1)
	assert.Equal(t, http.StatusOK, deliveries[0].StatusCode)
	assert.Equal(t, n.ID, deliveries[0].NotificationID)

	sink.Reset()
	assert.Empty(t, sink.Deliveries())
}

func TestWebhookSinkRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewWebhookSink(WebhookConfig{URL: srv.URL, MaxRetries: 3, RetryDelay: time.Millisecond})
	defer sink.Close(context.Background())

	require.NoError(t, sink.Notify(context.Background(), New(TypeOrderStatusChanged, "o1", time.Now())))
	sink.Flush()

	assert.Equal(t, int32(3), attempts.Load())
	deliveries := sink.Deliveries()
	require.Len(t, deliveries, 3)
	assert.Equal(t, http.StatusServiceUnavailable, deliveries[0].StatusCode)
	assert.Equal(t, 3, deliveries[2].Attempt)
}

func TestWebhookSinkWithoutURLSkips(t *testing.T) {
	sink := NewWebhookSink(WebhookConfig{})
	require.NoError(t, sink.Notify(context.Background(), New(TypeOrderCreated, "o1", time.Now())))
	sink.Flush()
	assert.Empty(t, sink.Deliveries())

	require.NoError(t, sink.Close(context.Background()))
	assert.ErrorIs(t, sink.Notify(context.Background(), New(TypeOrderCreated, "o2", time.Now())), ErrClosed)
}

func TestMultiFansOut(t *testing.T) {
	a, b := NewRecorder(4), NewRecorder(4)
	n := New(TypeOrderCreated, "o1", time.Now())

	require.NoError(t, Multi{a, b, LogSink{}}.Notify(context.Background(), n))
	assert.Len(t, a.Drain(), 1)
	assert.Len(t, b.Drain(), 1)

	boom := errors.New("boom")
	err := Multi{a, failingSink{err: boom}}.Notify(context.Background(), n)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, a.Drain(), 1)
}

func TestSendSwallowsErrors(t *testing.T) {
	n := New(TypeOrderCreated, "o1", time.Now())
	assert.NotPanics(t, func() {
		Send(context.Background(), failingSink{err: errors.New("down")}, nil, n)
		Send(context.Background(), nil, nil, n)
	})
}

func TestRecorderDropsOverflow(t *testing.T) {
	r := NewRecorder(1)
	n := New(TypeOrderCreated, "o1", time.Now())
	require.NoError(t, r.Notify(context.Background(), n))
	require.NoError(t, r.Notify(context.Background(), n))
	assert.Len(t, r.Drain(), 1)
	assert.Empty(t, r.Drain())
}
