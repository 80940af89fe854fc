package postgres

import (
	"context"
	"time"

	"github.com/and161185/visitguard/internal/model"
)

// DeliveryRepo implements DeliveryRepository using PostgreSQL.
type DeliveryRepo struct{ db *DB }

// NewDeliveryRepo constructs a delivery log repository.
func NewDeliveryRepo(db *DB) *DeliveryRepo { return &DeliveryRepo{db: db} }

// RecordDelivery appends one result. Re-recording the same id is a no-op.
func (r *DeliveryRepo) RecordDelivery(ctx context.Context, d model.DeliveryResult) error {
	const q = `
INSERT INTO webhook_deliveries (id, webhook_id, event_type, status, attempts, status_code, error, delivered_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, q, d.ID, d.WebhookID, d.EventType, string(d.Status),
		d.Attempts, d.StatusCode, d.Error, d.DeliveredAt)
	return err
}

// RecentDeliveries returns up to limit results for a webhook, newest first.
func (r *DeliveryRepo) RecentDeliveries(ctx context.Context, webhookID string, limit int) ([]model.DeliveryResult, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, webhook_id, event_type, status, attempts, status_code, error, delivered_at
FROM webhook_deliveries
WHERE webhook_id=$1
ORDER BY delivered_at DESC
LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, webhookID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DeliveryResult
	for rows.Next() {
		var (
			d      model.DeliveryResult
			status string
		)
		if err = rows.Scan(&d.ID, &d.WebhookID, &d.EventType, &status, &d.Attempts, &d.StatusCode, &d.Error, &d.DeliveredAt); err != nil {
			return nil, err
		}
		d.Status = model.DeliveryStatus(status)
		out = append(out, d)
	}
	return out, rows.Err()
}

// PurgeDeliveries deletes results delivered before the cutoff.
func (r *DeliveryRepo) PurgeDeliveries(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM webhook_deliveries WHERE delivered_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
