package limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/and161185/visitguard/internal/model"
)

// PG is a PostgreSQL-backed limiter. Each check is a single upsert, so the row lock
// gives per-key atomicity across replicas.
type PG struct {
	pool   pgxQuerier
	limits Limits
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter. *pgxpool.Pool satisfies the querier.
func NewPG(pool pgxQuerier, limits Limits) (*PG, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &PG{pool: pool, limits: limits}, nil
}

var _ Limiter = (*PG)(nil)

const qTakeVisit = `
INSERT INTO notify_visit_counters (subject_key, event_type, visit_id, count, updated_at)
VALUES ($1,$2,$3,1,now())
ON CONFLICT (subject_key, event_type, visit_id) DO UPDATE
SET count = notify_visit_counters.count + 1, updated_at = now()
WHERE notify_visit_counters.count < $4
RETURNING count`

const qTakeWindow = `
INSERT INTO notify_rate_counters (subject_key, event_type, hour_count, hour_reset_at, day_count, day_reset_at)
VALUES ($1,$2,1,now() + interval '1 hour',1,now() + interval '24 hours')
ON CONFLICT (subject_key, event_type) DO UPDATE
SET
  hour_count    = CASE WHEN notify_rate_counters.hour_reset_at <= now() THEN 1 ELSE notify_rate_counters.hour_count + 1 END,
  hour_reset_at = CASE WHEN notify_rate_counters.hour_reset_at <= now() THEN now() + interval '1 hour' ELSE notify_rate_counters.hour_reset_at END,
  day_count     = CASE WHEN notify_rate_counters.day_reset_at <= now() THEN 1 ELSE notify_rate_counters.day_count + 1 END,
  day_reset_at  = CASE WHEN notify_rate_counters.day_reset_at <= now() THEN now() + interval '24 hours' ELSE notify_rate_counters.day_reset_at END
WHERE (notify_rate_counters.hour_reset_at <= now() OR notify_rate_counters.hour_count < $3)
  AND (notify_rate_counters.day_reset_at <= now() OR notify_rate_counters.day_count < $4)
RETURNING hour_count, day_count`

// CheckLimit implements Limiter. A conflicting row that fails the WHERE clause
// returns no rows, which means the send is rejected.
func (l *PG) CheckLimit(ctx context.Context, subjectKey, eventType, visitID string) (bool, error) {
	if err := ValidateKey(subjectKey, eventType, visitID); err != nil {
		return false, err
	}
	if visitID != "" {
		var n int
		err := l.pool.QueryRow(ctx, qTakeVisit, subjectKey, eventType, visitID, l.limits.MaxPerVisit).Scan(&n)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			return false, nil
		case err != nil:
			return false, fmt.Errorf("take visit slot: %w", err)
		}
	}

	var hour, day int
	err := l.pool.QueryRow(ctx, qTakeWindow, subjectKey, eventType, l.limits.MaxPerHour, l.limits.MaxPerDay).Scan(&hour, &day)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("take window slot: %w", err)
	}
	return true, nil
}

// Reset implements Limiter.
func (l *PG) Reset(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `TRUNCATE notify_rate_counters, notify_visit_counters`)
	return err
}

// CurrentLimits implements Limiter.
func (l *PG) CurrentLimits(ctx context.Context) (map[string]model.LimitState, error) {
	out := make(map[string]model.LimitState)

	rows, err := l.pool.Query(ctx, `SELECT subject_key, event_type, hour_count, hour_reset_at, day_count, day_reset_at FROM notify_rate_counters`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var subject, event string
		st := model.LimitState{Kind: model.LimitWindow}
		if err := rows.Scan(&subject, &event, &st.HourCount, &st.HourResetAt, &st.DayCount, &st.DayResetAt); err != nil {
			rows.Close()
			return nil, err
		}
		out[WindowKey(subject, event)] = st
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = l.pool.Query(ctx, `SELECT subject_key, event_type, visit_id, count FROM notify_visit_counters`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var subject, event, visit string
		st := model.LimitState{Kind: model.LimitVisit}
		if err := rows.Scan(&subject, &event, &visit, &st.VisitCount); err != nil {
			return nil, err
		}
		out[VisitKey(subject, event, visit)] = st
	}
	return out, rows.Err()
}

// PruneVisits deletes per-visit counters untouched for longer than ttl.
func (l *PG) PruneVisits(ctx context.Context, ttl time.Duration) (int64, error) {
	tag, err := l.pool.Exec(ctx, `DELETE FROM notify_visit_counters WHERE updated_at < now() - $1::interval`, ttl)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
