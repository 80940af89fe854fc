// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/visitguard/internal/model"
)

// WebhookRepository persists the webhook registry.
type WebhookRepository interface {
	// SaveWebhook inserts or replaces the webhook with the given id.
	SaveWebhook(ctx context.Context, id string, cfg model.WebhookConfig) error
	// DeleteWebhook removes a webhook. Unknown ids yield errs.ErrNotFound.
	DeleteWebhook(ctx context.Context, id string) error
	// ListWebhooks loads every stored webhook keyed by id.
	ListWebhooks(ctx context.Context) (map[string]model.WebhookConfig, error)
}
