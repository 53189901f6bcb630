package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Signer signs outbound payloads and returns the headers to attach.
type Signer interface {
	Sign(payload []byte, secret string) map[string]string
}

// Delivery records a webhook delivery attempt.
type Delivery struct {
	NotificationID string    `json:"notification_id"`
	URL            string    `json:"url"`
	StatusCode     int       `json:"status_code"`
	Error          string    `json:"error,omitempty"`
	Attempt        int       `json:"attempt"`
	Timestamp      time.Time `json:"timestamp"`
}

// WebhookConfig configures a WebhookSink.
type WebhookConfig struct {
	URL        string
	Secret     string
	Signer     Signer
	Logger     *slog.Logger
	MaxRetries int
	RetryDelay time.Duration
	Timeout    time.Duration
	// QueueSize bounds the number of notifications waiting for delivery.
	QueueSize int
}

// WebhookSink posts notifications as signed JSON to a URL, retrying failed
// attempts. Notify only enqueues; a single worker delivers in order.
type WebhookSink struct {
	mu         sync.RWMutex
	url        string
	secret     string
	signer     Signer
	logger     *slog.Logger
	deliveries []Delivery
	maxRetries int
	retryDelay time.Duration
	client     *http.Client

	queue     chan Notification
	done      chan struct{}
	closeOnce sync.Once

	pendMu  sync.Mutex
	pending int
	idle    *sync.Cond
}

// ErrQueueFull is returned by Notify when the delivery queue is full.
var ErrQueueFull = errors.New("notification queue full")

// ErrClosed is returned by Notify after Close.
var ErrClosed = errors.New("notification sink closed")

// NewWebhookSink creates the sink and starts its delivery worker.
func NewWebhookSink(cfg WebhookConfig) *WebhookSink {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 1 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 256
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &WebhookSink{
		url:        cfg.URL,
		secret:     cfg.Secret,
		signer:     cfg.Signer,
		logger:     cfg.Logger,
		deliveries: make([]Delivery, 0),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		client:     &http.Client{Timeout: cfg.Timeout},
		queue:      make(chan Notification, cfg.QueueSize),
		done:       make(chan struct{}),
	}
	s.idle = sync.NewCond(&s.pendMu)
	go s.run()
	return s
}

// Notify implements Sink. It never blocks on the network.
func (s *WebhookSink) Notify(_ context.Context, n Notification) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	s.addPending(1)
	select {
	case s.queue <- n:
		return nil
	default:
		s.addPending(-1)
		return ErrQueueFull
	}
}

func (s *WebhookSink) addPending(delta int) {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	s.pending += delta
	if s.pending == 0 {
		s.idle.Broadcast()
	}
}

func (s *WebhookSink) run() {
	for {
		select {
		case n := <-s.queue:
			if err := s.deliver(n); err != nil {
				s.logger.Warn("notification webhook failed", "notification_id", n.ID, "err", err)
			}
			s.addPending(-1)
		case <-s.done:
			return
		}
	}
}

// Flush blocks until every queued notification has been attempted.
func (s *WebhookSink) Flush() {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	for s.pending > 0 {
		s.idle.Wait()
	}
}

// FlushWebhooks is Flush for the admin plane.
func (s *WebhookSink) FlushWebhooks() error {
	s.Flush()
	return nil
}

// Close waits for queued deliveries, bounded by ctx, then stops the worker.
func (s *WebhookSink) Close(ctx context.Context) error {
	waited := make(chan struct{})
	go func() {
		s.Flush()
		close(waited)
	}()
	var err error
	select {
	case <-waited:
	case <-ctx.Done():
		err = ctx.Err()
	}
	s.closeOnce.Do(func() { close(s.done) })
	return err
}

// SetURL updates the delivery URL.
func (s *WebhookSink) SetURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.url = url
}

func (s *WebhookSink) deliver(n Notification) error {
	s.mu.RLock()
	url := s.url
	secret := s.secret
	signer := s.signer
	s.mu.RUnlock()

	if url == "" {
		s.logger.Debug("no notification URL configured, skipping delivery", "notification_id", n.ID)
		return nil
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if signer != nil && secret != "" {
			for k, v := range signer.Sign(payload, secret) {
				req.Header.Set(k, v)
			}
		}

		resp, err := s.client.Do(req)
		delivery := Delivery{
			NotificationID: n.ID,
			URL:            url,
			Attempt:        attempt,
			Timestamp:      time.Now(),
		}
		if err != nil {
			delivery.Error = err.Error()
			lastErr = err
		} else {
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			delivery.StatusCode = resp.StatusCode
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				s.record(delivery)
				return nil
			}
			lastErr = fmt.Errorf("notification delivery failed: status %d", resp.StatusCode)
		}
		s.record(delivery)

		if attempt < s.maxRetries {
			select {
			case <-time.After(s.retryDelay):
			case <-s.done:
				return lastErr
			}
		}
	}
	return lastErr
}

func (s *WebhookSink) record(d Delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, d)
}

// Deliveries returns all delivery attempts.
func (s *WebhookSink) Deliveries() []Delivery {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Delivery, len(s.deliveries))
	copy(out, s.deliveries)
	return out
}

// Reset clears the delivery history.
func (s *WebhookSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = s.deliveries[:0]
}
