package webhook

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/and161185/visitguard/internal/model"
)

// MaxBackoff caps the delay before any single retry.
const MaxBackoff = 10 * time.Minute

// Backoff is the delay before retry number attempt (0-based):
// InitialDelayMs * BackoffMultiplier^attempt, capped at MaxBackoff.
func Backoff(rc model.RetryConfig, attempt int) time.Duration {
	ms := float64(rc.InitialDelayMs) * math.Pow(rc.BackoffMultiplier, float64(attempt))
	if math.IsNaN(ms) || ms <= 0 {
		return 0
	}
	if ms >= float64(MaxBackoff/time.Millisecond) {
		return MaxBackoff
	}
	return time.Duration(ms * float64(time.Millisecond))
}

func (d *Dispatcher) deliver(ctx context.Context, id string, cfg model.WebhookConfig, lim *rate.Limiter, eventType string, payload []byte) model.DeliveryResult {
	res := model.DeliveryResult{
		ID:        uuid.Must(uuid.NewV4()),
		WebhookID: id,
		EventType: eventType,
		Status:    model.DeliveryFailed,
	}
	log := d.logger.With(zap.String("webhook", id), zap.String("event", eventType), zap.String("url", RedactURL(cfg.URL)))

	var lastErr error
	for attempt := 0; attempt <= cfg.Retry.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := d.sleep(ctx, Backoff(cfg.Retry, attempt-1)); err != nil {
				lastErr = fmt.Errorf("cancelled during backoff: %w", err)
				break
			}
		}
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				lastErr = fmt.Errorf("throttle: %w", err)
				break
			}
		}

		res.Attempts++
		code, err := d.post(ctx, id, cfg, eventType, payload)
		res.StatusCode = code
		if err == nil {
			res.Status = model.DeliverySent
			lastErr = nil
			break
		}
		lastErr = err
		log.Debug("webhook attempt failed", zap.Int("attempt", res.Attempts), zap.Error(err))
	}

	res.DeliveredAt = d.now().UTC()
	if lastErr != nil {
		res.Error = lastErr.Error()
		log.Warn("webhook delivery failed", zap.Int("attempts", res.Attempts), zap.Error(lastErr))
	}
	deliveriesTotal.WithLabelValues(string(res.Status)).Inc()

	if d.opts.Deliveries != nil {
		// Recorded even when ctx is already done.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.opts.Timeout)
		if err := d.opts.Deliveries.RecordDelivery(rctx, res); err != nil {
			log.Error("record delivery", zap.Error(err))
		}
		cancel()
	}
	return res
}

// post performs one signed attempt. Any transport error or non-2xx status is a failure.
func (d *Dispatcher) post(ctx context.Context, id string, cfg model.WebhookConfig, eventType string, payload []byte) (int, error) {
	nonce, err := uuid.NewV4()
	if err != nil {
		return 0, fmt.Errorf("nonce: %w", err)
	}
	start := time.Now()
	resp, err := d.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(HeaderSignature, Sign(payload, cfg.Secret)).
		SetHeader(HeaderNonce, nonce.String()).
		SetHeader(HeaderEvent, eventType).
		SetHeader(HeaderID, id).
		SetBody(payload).
		Post(cfg.URL)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		attemptsTotal.WithLabelValues("error").Inc()
		attemptDuration.WithLabelValues("error").Observe(elapsed)
		return 0, fmt.Errorf("post: %w", err)
	}
	if !resp.IsSuccess() {
		attemptsTotal.WithLabelValues("rejected").Inc()
		attemptDuration.WithLabelValues("rejected").Observe(elapsed)
		return resp.StatusCode(), fmt.Errorf("webhook returned HTTP %d", resp.StatusCode())
	}
	attemptsTotal.WithLabelValues("success").Inc()
	attemptDuration.WithLabelValues("success").Observe(elapsed)
	return resp.StatusCode(), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
