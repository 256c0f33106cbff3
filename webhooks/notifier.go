package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ChasLui/nocodb/core"
	"github.com/ChasLui/nocodb/ratelimit"
)

const (
	HeaderEvent    = "X-Nocodb-Event"
	HeaderDelivery = "X-Nocodb-Delivery"

	defaultUserAgent = "nocodb-webhooks/1"
	throttleScope    = "webhook"
)

// Endpoint is one webhook subscription. An empty Events list subscribes
// to every lifecycle event; Secret enables body signing.
type Endpoint struct {
	ID      string
	URL     string
	Secret  string
	Events  []string
	Headers map[string]string
}

// EndpointRegistry holds subscriptions keyed by endpoint id.
type EndpointRegistry struct {
	mu        sync.RWMutex
	endpoints map[string]Endpoint
}

func NewEndpointRegistry() *EndpointRegistry {
	return &EndpointRegistry{endpoints: map[string]Endpoint{}}
}

func (r *EndpointRegistry) Register(endpoint Endpoint) error {
	if r == nil {
		return fmt.Errorf("webhooks: endpoint registry is nil")
	}
	endpoint.ID = strings.TrimSpace(endpoint.ID)
	if endpoint.ID == "" {
		return fmt.Errorf("webhooks: endpoint id is required")
	}
	endpoint.URL = strings.TrimSpace(endpoint.URL)
	parsed, err := url.Parse(endpoint.URL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("webhooks: endpoint %q needs an http(s) url", endpoint.ID)
	}

	events := make([]string, 0, len(endpoint.Events))
	for _, name := range endpoint.Events {
		name = strings.TrimSpace(strings.ToLower(name))
		if name == "" {
			continue
		}
		events = append(events, name)
	}
	sort.Strings(events)
	endpoint.Events = events

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.endpoints[endpoint.ID]; exists {
		return fmt.Errorf("webhooks: endpoint already registered: %s", endpoint.ID)
	}
	r.endpoints[endpoint.ID] = endpoint
	return nil
}

func (r *EndpointRegistry) Remove(id string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.endpoints, strings.TrimSpace(id))
}

// Matching returns the endpoints subscribed to an event name, ordered
// by endpoint id.
func (r *EndpointRegistry) Matching(eventName string) []Endpoint {
	if r == nil {
		return nil
	}
	eventName = strings.TrimSpace(strings.ToLower(eventName))

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Endpoint, 0, len(r.endpoints))
	for _, endpoint := range r.endpoints {
		if endpointMatches(endpoint, eventName) {
			out = append(out, endpoint)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *EndpointRegistry) List() []Endpoint {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Endpoint, 0, len(r.endpoints))
	for _, endpoint := range r.endpoints {
		out = append(out, endpoint)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func endpointMatches(endpoint Endpoint, eventName string) bool {
	if len(endpoint.Events) == 0 {
		return true
	}
	for _, name := range endpoint.Events {
		if name == eventName {
			return true
		}
	}
	return false
}

// Message is the delivery body. Payloads arrive pre-redacted; the
// lifecycle emitter masks secret-ish keys before the event is stored.
type Message struct {
	ID            string         `json:"id"`
	Event         string         `json:"event"`
	IntegrationID string         `json:"integration_id"`
	WorkspaceID   string         `json:"workspace_id,omitempty"`
	Actor         string         `json:"actor,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
	Payload       map[string]any `json:"payload,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Doer issues the delivery request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Option func(*Notifier)

func WithHTTPClient(client Doer) Option {
	return func(n *Notifier) {
		if client != nil {
			n.client = client
		}
	}
}

func WithSignatureScheme(scheme SignatureScheme) Option {
	return func(n *Notifier) {
		n.scheme = scheme
	}
}

// WithThrottle honors per-endpoint Retry-After and rate headers. A
// throttled endpoint fails fast, which leaves the event pending for the
// outbox's next pass.
func WithThrottle(policy ratelimit.Policy) Option {
	return func(n *Notifier) {
		if policy != nil {
			n.throttle = policy
		}
	}
}

// WithCoalescer suppresses repeat notifications for the same endpoint,
// event and integration inside the coalescer's window.
func WithCoalescer(coalescer *Coalescer) Option {
	return func(n *Notifier) {
		if coalescer != nil {
			n.coalescer = coalescer
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(n *Notifier) {
		if logger != nil {
			n.logger = logger
		}
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(n *Notifier) {
		if recorder != nil {
			n.metrics = recorder
		}
	}
}

func WithUserAgent(userAgent string) Option {
	return func(n *Notifier) {
		if strings.TrimSpace(userAgent) != "" {
			n.userAgent = strings.TrimSpace(userAgent)
		}
	}
}

// Notifier fans one lifecycle event out to every matching endpoint. Per-
// endpoint failures are joined and returned so the outbox redelivers;
// successful endpoints see the same delivery id again and dedupe it.
type Notifier struct {
	registry  *EndpointRegistry
	client    Doer
	scheme    SignatureScheme
	throttle  ratelimit.Policy
	coalescer *Coalescer
	logger    core.Logger
	metrics   core.MetricsRecorder
	userAgent string
}

func NewNotifier(registry *EndpointRegistry, opts ...Option) (*Notifier, error) {
	if registry == nil {
		return nil, fmt.Errorf("webhooks: endpoint registry is required")
	}
	notifier := &Notifier{
		registry:  registry,
		client:    &http.Client{Timeout: 10 * time.Second},
		scheme:    DefaultSignatureScheme(),
		metrics:   core.NopMetricsRecorder{},
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(notifier)
	}
	return notifier, nil
}

func (n *Notifier) Handle(ctx context.Context, event core.LifecycleEvent) error {
	if n == nil {
		return fmt.Errorf("webhooks: notifier is nil")
	}
	endpoints := n.registry.Matching(event.Name)
	if len(endpoints) == 0 {
		return nil
	}

	body, err := json.Marshal(Message{
		ID:            event.ID,
		Event:         event.Name,
		IntegrationID: event.IntegrationID,
		WorkspaceID:   event.WorkspaceID,
		Actor:         event.Actor,
		OccurredAt:    event.OccurredAt,
		Payload:       event.Payload,
		Metadata:      event.Metadata,
	})
	if err != nil {
		return fmt.Errorf("webhooks: encode delivery body: %w", err)
	}

	var deliveryErr error
	for _, endpoint := range endpoints {
		if n.coalescer != nil && !n.coalescer.Allow(coalesceKey(endpoint, event)) {
			n.count(ctx, "integrations.webhooks.coalesced.total", endpoint, event)
			continue
		}
		if err := n.deliver(ctx, endpoint, event, body); err != nil {
			deliveryErr = errors.Join(deliveryErr, fmt.Errorf("webhooks: endpoint %q: %w", endpoint.ID, err))
			n.count(ctx, "integrations.webhooks.failed.total", endpoint, event)
			n.logFailure(endpoint, event, err)
			continue
		}
		n.count(ctx, "integrations.webhooks.delivered.total", endpoint, event)
	}
	return deliveryErr
}

func (n *Notifier) deliver(ctx context.Context, endpoint Endpoint, event core.LifecycleEvent, body []byte) error {
	key := ratelimit.Key{Scope: throttleScope, Bucket: endpoint.ID}
	if n.throttle != nil {
		if err := n.throttle.BeforeCall(ctx, key); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", n.userAgent)
	req.Header.Set(HeaderEvent, event.Name)
	req.Header.Set(HeaderDelivery, event.ID)
	for name, value := range endpoint.Headers {
		req.Header.Set(name, value)
	}
	if strings.TrimSpace(endpoint.Secret) != "" {
		header, value := n.scheme.Sign(endpoint.Secret, body)
		req.Header.Set(header, value)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		_ = resp.Body.Close()
	}()

	if n.throttle != nil {
		_ = n.throttle.AfterCall(ctx, key, ratelimit.ResponseMeta{
			StatusCode: resp.StatusCode,
			Headers:    flattenHeader(resp.Header),
		})
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhooks: delivery responded %d", resp.StatusCode)
	}
	return nil
}

func (n *Notifier) count(ctx context.Context, name string, endpoint Endpoint, event core.LifecycleEvent) {
	if n.metrics == nil {
		return
	}
	n.metrics.IncCounter(ctx, name, 1, map[string]string{
		"endpoint": endpoint.ID,
		"event":    event.Name,
	})
}

func (n *Notifier) logFailure(endpoint Endpoint, event core.LifecycleEvent, err error) {
	if n.logger == nil {
		return
	}
	n.logger.Error("webhook delivery failed",
		"endpoint", endpoint.ID,
		"event", event.Name,
		"delivery_id", event.ID,
		"error", err.Error(),
	)
}

func coalesceKey(endpoint Endpoint, event core.LifecycleEvent) string {
	return endpoint.ID + "|" + strings.ToLower(event.Name) + "|" + event.IntegrationID
}

func flattenHeader(header http.Header) map[string]string {
	if len(header) == 0 {
		return nil
	}
	out := make(map[string]string, len(header))
	for name, values := range header {
		if len(values) == 0 {
			continue
		}
		out[name] = values[0]
	}
	return out
}

var _ core.LifecycleEventHandler = (*Notifier)(nil)
