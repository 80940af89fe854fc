package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/and161185/visitguard/internal/model"
)

func TestDeliveryRepo_Record(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDeliveryRepo(db)
	d := model.DeliveryResult{
		ID:          uuid.Must(uuid.NewV4()),
		WebhookID:   "h1",
		EventType:   "host_alert",
		Status:      model.DeliveryFailed,
		Attempts:    4,
		StatusCode:  503,
		Error:       "webhook returned HTTP 503",
		DeliveredAt: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	mock.ExpectExec(`INSERT INTO webhook_deliveries \(id, webhook_id, event_type, status, attempts, status_code, error, delivered_at\)`).
		WithArgs(d.ID, "h1", "host_alert", "FAILED", 4, 503, d.Error, d.DeliveredAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.RecordDelivery(context.Background(), d))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeliveryRepo_Recent(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDeliveryRepo(db)
	id := uuid.Must(uuid.NewV4())
	at := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, webhook_id, event_type, status, attempts, status_code, error, delivered_at\s+FROM webhook_deliveries`).
		WithArgs("h1", 50).
		WillReturnRows(pgxmock.NewRows([]string{"id", "webhook_id", "event_type", "status", "attempts", "status_code", "error", "delivered_at"}).
			AddRow(id, "h1", "host_alert", "SENT", 1, 200, "", at))
	got, err := r.RecentDeliveries(context.Background(), "h1", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, model.DeliverySent, got[0].Status)
	require.Equal(t, id, got[0].ID)
	require.Equal(t, at, got[0].DeliveredAt)
}

func TestDeliveryRepo_Purge(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewDeliveryRepo(db)
	cutoff := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(`DELETE FROM webhook_deliveries WHERE delivered_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))
	n, err := r.PurgeDeliveries(context.Background(), cutoff)
	require.NoError(t, err)
	require.EqualValues(t, 7, n)
}
