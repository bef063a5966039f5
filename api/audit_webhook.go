package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	webhookQueueSize  = 1024
	webhookRetryDelay = time.Second
	webhookUserAgent  = "Mortasa-Storefront-Audit/1.0"
)

// webhookEvent is the JSON body POSTed for each audit event.
type webhookEvent struct {
	Event      string            `json:"event"`
	Label      string            `json:"label,omitempty"`
	RemoteAddr string            `json:"remote_addr,omitempty"`
	Timestamp  string            `json:"timestamp"`
	Attrs      map[string]string `json:"attrs,omitempty"`
}

// auditWebhook forwards audit events to an external collector. Events are
// queued without blocking the request path and sent by one goroutine; when
// the queue is full they are dropped.
type auditWebhook struct {
	url        string
	authHeader string // "Header: Value", e.g. "Authorization: Bearer xxx"
	client     *http.Client
	logger     *slog.Logger
	retryDelay time.Duration
	events     chan webhookEvent
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

func newAuditWebhook(url, authHeader string, logger *slog.Logger) *auditWebhook {
	w := &auditWebhook{
		url:        url,
		authHeader: authHeader,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger.With("component", "audit_webhook"),
		retryDelay: webhookRetryDelay,
		events:     make(chan webhookEvent, webhookQueueSize),
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

func (w *auditWebhook) enqueue(evt webhookEvent) {
	if w == nil {
		return
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}
	select {
	case w.events <- evt:
	default:
		w.logger.Warn("queue full, dropping event", "event", evt.Event)
	}
}

// close stops accepting events and waits until the queue is drained.
// Events enqueued afterwards are discarded.
func (w *auditWebhook) close() {
	if w == nil {
		return
	}
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.events)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *auditWebhook) loop() {
	defer w.wg.Done()
	for evt := range w.events {
		w.send(evt)
	}
}

// send POSTs evt, retrying once on a transport error or a 5xx answer.
func (w *auditWebhook) send(evt webhookEvent) {
	body, err := json.Marshal(evt)
	if err != nil {
		w.logger.Warn("marshal failed", "error", err)
		return
	}

	for attempt := range 2 {
		if attempt > 0 {
			time.Sleep(w.retryDelay)
		}

		req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			w.logger.Warn("request creation failed", "error", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", webhookUserAgent)
		if name, value, ok := strings.Cut(w.authHeader, ":"); ok {
			req.Header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
		}

		resp, err := w.client.Do(req)
		if err != nil {
			w.logger.Warn("request failed", "error", err, "attempt", attempt+1)
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return
		case resp.StatusCode >= 500:
			w.logger.Warn("collector error", "status", resp.StatusCode, "attempt", attempt+1)
			continue
		default:
			w.logger.Warn("event rejected", "status", resp.StatusCode)
			return
		}
	}
}

// webhookEventFrom flattens audit attributes into the webhook body.
func webhookEventFrom(event AuditEvent, remoteAddr string, ts time.Time, attrs []slog.Attr) webhookEvent {
	evt := webhookEvent{
		Event:      string(event),
		RemoteAddr: remoteAddr,
		Timestamp:  ts.UTC().Format(time.RFC3339),
	}
	for _, a := range attrs {
		if a.Key == "label" {
			evt.Label = a.Value.String()
			continue
		}
		if evt.Attrs == nil {
			evt.Attrs = make(map[string]string, len(attrs))
		}
		evt.Attrs[a.Key] = a.Value.String()
	}
	return evt
}
