package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/and161185/visitguard/internal/errs"
	"github.com/and161185/visitguard/internal/model"
)

// Sealer encrypts webhook secrets at rest. *crypto.Encryptor implements it.
type Sealer interface {
	EncryptField(ctx context.Context, plaintext string) (model.EncryptedValue, error)
	DecryptField(ctx context.Context, v model.EncryptedValue) (string, error)
}

// WebhookRepo implements WebhookRepository using PostgreSQL.
type WebhookRepo struct {
	db     *DB
	sealer Sealer
}

// NewWebhookRepo constructs a webhook repository.
func NewWebhookRepo(db *DB, s Sealer) *WebhookRepo { return &WebhookRepo{db: db, sealer: s} }

// SaveWebhook upserts a webhook. The secret is stored envelope-encrypted.
func (r *WebhookRepo) SaveWebhook(ctx context.Context, id string, cfg model.WebhookConfig) error {
	ev, err := r.sealer.EncryptField(ctx, cfg.Secret)
	if err != nil {
		return fmt.Errorf("seal secret: %w", err)
	}
	secret, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	events := cfg.Events
	if events == nil {
		events = []string{}
	}

	const q = `
INSERT INTO webhooks (id, url, secret_enc, events, is_active, max_retries, backoff_multiplier, initial_delay_ms)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE
SET url=EXCLUDED.url, secret_enc=EXCLUDED.secret_enc, events=EXCLUDED.events, is_active=EXCLUDED.is_active,
    max_retries=EXCLUDED.max_retries, backoff_multiplier=EXCLUDED.backoff_multiplier,
    initial_delay_ms=EXCLUDED.initial_delay_ms, updated_at=now()`
	_, err = r.db.Pool.Exec(ctx, q, id, cfg.URL, secret, events, cfg.IsActive,
		cfg.Retry.MaxRetries, cfg.Retry.BackoffMultiplier, cfg.Retry.InitialDelayMs)
	return err
}

// DeleteWebhook removes a webhook by id.
func (r *WebhookRepo) DeleteWebhook(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM webhooks WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// ListWebhooks loads and unseals every stored webhook.
func (r *WebhookRepo) ListWebhooks(ctx context.Context) (map[string]model.WebhookConfig, error) {
	const q = `
SELECT id, url, secret_enc, events, is_active, max_retries, backoff_multiplier, initial_delay_ms
FROM webhooks ORDER BY id`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]model.WebhookConfig)
	for rows.Next() {
		var (
			id     string
			cfg    model.WebhookConfig
			sealed []byte
		)
		if err = rows.Scan(&id, &cfg.URL, &sealed, &cfg.Events, &cfg.IsActive,
			&cfg.Retry.MaxRetries, &cfg.Retry.BackoffMultiplier, &cfg.Retry.InitialDelayMs); err != nil {
			return nil, err
		}
		var ev model.EncryptedValue
		if err = json.Unmarshal(sealed, &ev); err != nil {
			return nil, fmt.Errorf("webhook %s: %w: malformed secret", id, errs.ErrDecryption)
		}
		if cfg.Secret, err = r.sealer.DecryptField(ctx, ev); err != nil {
			return nil, fmt.Errorf("webhook %s: %w", id, err)
		}
		out[id] = cfg
	}
	return out, rows.Err()
}
