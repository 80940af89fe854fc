// Package webhook registers outbound webhooks and delivers signed events to them
// with exponential-backoff retries. It also validates inbound signatures against
// a single-use nonce store.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/and161185/visitguard/internal/errs"
	"github.com/and161185/visitguard/internal/model"
	"github.com/and161185/visitguard/internal/repository"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "visitguard-webhook/1"
	defaultFanOut    = 8
)

// Upper bounds on RetryConfig accepted by RegisterWebhook.
const (
	MaxRetries           = 10
	MaxBackoffMultiplier = 10.0
	MaxInitialDelayMs    = 60_000
)

// Options configures a Dispatcher. Zero values take defaults.
type Options struct {
	Timeout   time.Duration // per HTTP attempt
	UserAgent string
	FanOut    int // concurrent deliveries per Dispatch
	// PerWebhookRPS caps attempts per second to one endpoint. 0 disables the cap.
	PerWebhookRPS float64

	Webhooks   repository.WebhookRepository  // optional registry mirror
	Deliveries repository.DeliveryRepository // optional delivery log
	HTTPClient *resty.Client                 // optional, e.g. for custom TLS
}

// Dispatcher owns the webhook registry and the delivery path.
type Dispatcher struct {
	logger *zap.Logger
	http   *resty.Client
	nonces NonceStore
	opts   Options

	mu       sync.RWMutex
	hooks    map[string]model.WebhookConfig
	throttle map[string]*rate.Limiter

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New constructs a Dispatcher. nonces is required.
func New(logger *zap.Logger, nonces NonceStore, opts Options) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	if opts.FanOut <= 0 {
		opts.FanOut = defaultFanOut
	}
	client := opts.HTTPClient
	if client == nil {
		client = resty.New()
	}
	// Retries are owned by the dispatcher's policy.
	client.SetRetryCount(0).
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent)

	return &Dispatcher{
		logger:   logger.Named("webhook"),
		http:     client,
		nonces:   nonces,
		opts:     opts,
		hooks:    make(map[string]model.WebhookConfig),
		throttle: make(map[string]*rate.Limiter),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// RegisterWebhook adds or replaces a webhook.
func (d *Dispatcher) RegisterWebhook(ctx context.Context, id string, cfg model.WebhookConfig) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: webhook id is required", errs.ErrValidation)
	}
	if err := validateURL(cfg.URL); err != nil {
		return err
	}
	if cfg.Secret == "" {
		return fmt.Errorf("%w: webhook secret is required", errs.ErrValidation)
	}
	rc, err := normalizeRetry(cfg.Retry)
	if err != nil {
		return err
	}
	cfg.Retry = rc
	cfg.Events = slices.Clone(cfg.Events)

	if d.opts.Webhooks != nil {
		if err := d.opts.Webhooks.SaveWebhook(ctx, id, cfg); err != nil {
			return fmt.Errorf("save webhook: %w", err)
		}
	}
	d.put(id, cfg)
	d.logger.Info("webhook registered", zap.String("id", id), zap.String("url", RedactURL(cfg.URL)), zap.Strings("events", cfg.Events))
	return nil
}

func (d *Dispatcher) put(id string, cfg model.WebhookConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks[id] = cfg
	if d.opts.PerWebhookRPS > 0 {
		d.throttle[id] = rate.NewLimiter(rate.Limit(d.opts.PerWebhookRPS), 1)
	}
}

// UnregisterWebhook removes a webhook.
func (d *Dispatcher) UnregisterWebhook(ctx context.Context, id string) error {
	d.mu.RLock()
	_, ok := d.hooks[id]
	d.mu.RUnlock()
	if !ok {
		return &errs.NotFoundError{Kind: "Webhook", ID: id}
	}
	if d.opts.Webhooks != nil {
		if err := d.opts.Webhooks.DeleteWebhook(ctx, id); err != nil {
			return fmt.Errorf("delete webhook: %w", err)
		}
	}
	d.mu.Lock()
	delete(d.hooks, id)
	delete(d.throttle, id)
	d.mu.Unlock()
	d.logger.Info("webhook unregistered", zap.String("id", id))
	return nil
}

// Webhooks returns a copy of the registry.
func (d *Dispatcher) Webhooks() map[string]model.WebhookConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := maps.Clone(d.hooks)
	if out == nil {
		out = map[string]model.WebhookConfig{}
	}
	return out
}

// LoadWebhooks replaces the in-memory registry with the stored one.
func (d *Dispatcher) LoadWebhooks(ctx context.Context) (int, error) {
	if d.opts.Webhooks == nil {
		return 0, nil
	}
	stored, err := d.opts.Webhooks.ListWebhooks(ctx)
	if err != nil {
		return 0, fmt.Errorf("list webhooks: %w", err)
	}
	d.mu.Lock()
	d.hooks = make(map[string]model.WebhookConfig, len(stored))
	d.throttle = make(map[string]*rate.Limiter, len(stored))
	d.mu.Unlock()
	for id, cfg := range stored {
		d.put(id, cfg)
	}
	return len(stored), nil
}

func (d *Dispatcher) lookup(id string) (model.WebhookConfig, *rate.Limiter, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	cfg, ok := d.hooks[id]
	return cfg, d.throttle[id], ok
}

// Deliver sends payload to one webhook regardless of its subscriptions.
func (d *Dispatcher) Deliver(ctx context.Context, id, eventType string, payload []byte) (model.DeliveryResult, error) {
	cfg, lim, ok := d.lookup(id)
	if !ok {
		return model.DeliveryResult{}, &errs.NotFoundError{Kind: "Webhook", ID: id}
	}
	return d.deliver(ctx, id, cfg, lim, eventType, payload), nil
}

// Dispatch delivers payload to every active webhook subscribed to eventType.
// Results are sorted by webhook id.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, payload []byte) []model.DeliveryResult {
	type target struct {
		id  string
		cfg model.WebhookConfig
		lim *rate.Limiter
	}
	d.mu.RLock()
	var targets []target
	for id, cfg := range d.hooks {
		if cfg.IsActive && cfg.Subscribed(eventType) {
			targets = append(targets, target{id: id, cfg: cfg, lim: d.throttle[id]})
		}
	}
	d.mu.RUnlock()
	slices.SortFunc(targets, func(a, b target) int { return strings.Compare(a.id, b.id) })

	results := make([]model.DeliveryResult, len(targets))
	var g errgroup.Group
	g.SetLimit(d.opts.FanOut)
	for i, t := range targets {
		g.Go(func() error {
			results[i] = d.deliver(ctx, t.id, t.cfg, t.lim, eventType, payload)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// TestWebhook sends a synthetic webhook.test event through the normal delivery path.
func (d *Dispatcher) TestWebhook(ctx context.Context, id string) (model.DeliveryResult, error) {
	if _, _, ok := d.lookup(id); !ok {
		return model.DeliveryResult{}, &errs.NotFoundError{Kind: "Webhook", ID: id}
	}
	payload, err := json.Marshal(Envelope{
		Type:      string(model.EventWebhookTest),
		WebhookID: id,
		Timestamp: d.now().UTC().Format(time.RFC3339),
		Data:      map[string]any{"message": "This is a test webhook from visitguard"},
	})
	if err != nil {
		return model.DeliveryResult{}, fmt.Errorf("marshal test payload: %w", err)
	}
	return d.Deliver(ctx, id, string(model.EventWebhookTest), payload)
}

// Envelope is the JSON body of events built by this package.
type Envelope struct {
	Type      string `json:"type"`
	WebhookID string `json:"webhookId,omitempty"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

func normalizeRetry(rc model.RetryConfig) (model.RetryConfig, error) {
	if rc == (model.RetryConfig{}) {
		return model.DefaultRetryConfig, nil
	}
	if rc.MaxRetries < 0 || rc.InitialDelayMs < 0 || rc.BackoffMultiplier < 0 {
		return rc, fmt.Errorf("%w: retry settings must not be negative: %+v", errs.ErrValidation, rc)
	}
	if rc.MaxRetries > MaxRetries || rc.BackoffMultiplier > MaxBackoffMultiplier || rc.InitialDelayMs > MaxInitialDelayMs {
		return rc, fmt.Errorf("%w: retry settings exceed %d retries, multiplier %g, initial delay %dms: %+v",
			errs.ErrValidation, MaxRetries, MaxBackoffMultiplier, MaxInitialDelayMs, rc)
	}
	if rc.BackoffMultiplier == 0 {
		rc.BackoffMultiplier = model.DefaultRetryConfig.BackoffMultiplier
	}
	return rc, nil
}
