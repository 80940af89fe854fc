// Package audit records PII access decisions.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/visitguard/internal/rbac"
)

// Action names recorded by this package.
const ActionPIIView = "pii.view"

// Event is one access decision.
type Event struct {
	Timestamp  time.Time `json:"timestamp"`
	ActorID    string    `json:"actor_id"`
	Role       rbac.Role `json:"role"`
	Action     string    `json:"action"`
	ResourceID string    `json:"resource_id"`
	Granted    bool      `json:"granted"`
}

// Sink persists or forwards audit events.
type Sink interface {
	Record(ctx context.Context, ev Event) error
}

// ZapSink writes each event as a structured log line.
type ZapSink struct {
	logger *zap.Logger
}

func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger.Named("audit")}
}

func (s *ZapSink) Record(_ context.Context, ev Event) error {
	s.logger.Info("access",
		zap.Time("ts", ev.Timestamp),
		zap.String("actor", ev.ActorID),
		zap.String("role", string(ev.Role)),
		zap.String("action", ev.Action),
		zap.String("resource", ev.ResourceID),
		zap.Bool("granted", ev.Granted),
	)
	return nil
}

var now = time.Now

// ViewPII runs fn if role may view PII and records the decision either way.
// A failing sink is logged and does not block the read.
func ViewPII[T any](ctx context.Context, sink Sink, logger *zap.Logger, actorID string, role rbac.Role, resourceID string, fn func(context.Context) (T, error)) (T, error) {
	err := rbac.Authorize(role, rbac.VisitorPIIView)
	ev := Event{
		Timestamp:  now().UTC(),
		ActorID:    actorID,
		Role:       role,
		Action:     ActionPIIView,
		ResourceID: resourceID,
		Granted:    err == nil,
	}
	if serr := sink.Record(ctx, ev); serr != nil && logger != nil {
		logger.Warn("audit record failed", zap.Error(serr), zap.String("resource", resourceID))
	}
	if err != nil {
		var zero T
		return zero, err
	}
	return fn(ctx)
}
