package repository

import (
	"context"
	"time"

	"github.com/and161185/visitguard/internal/model"
)

// DeliveryRepository is the append-only delivery log.
type DeliveryRepository interface {
	// RecordDelivery stores the final result of one delivery.
	RecordDelivery(ctx context.Context, r model.DeliveryResult) error
	// RecentDeliveries returns the newest results for a webhook, newest first.
	RecentDeliveries(ctx context.Context, webhookID string, limit int) ([]model.DeliveryResult, error)
	// PurgeDeliveries deletes results older than the cutoff.
	PurgeDeliveries(ctx context.Context, before time.Time) (int64, error)
}
