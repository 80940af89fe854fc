package audit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/and161185/visitguard/internal/errs"
	"github.com/and161185/visitguard/internal/rbac"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (m *memSink) Record(_ context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return m.err
}

func TestViewPII_Granted(t *testing.T) {
	sink := &memSink{}
	got, err := ViewPII(context.Background(), sink, zap.NewNop(), "u1", rbac.RoleReceptionist, "visitor-9",
		func(context.Context) (string, error) { return "john@example.com", nil })
	require.NoError(t, err)
	require.Equal(t, "john@example.com", got)

	require.Len(t, sink.events, 1)
	ev := sink.events[0]
	require.True(t, ev.Granted)
	require.Equal(t, ActionPIIView, ev.Action)
	require.Equal(t, "visitor-9", ev.ResourceID)
	require.Equal(t, rbac.RoleReceptionist, ev.Role)
}

func TestViewPII_DeniedIsRecorded(t *testing.T) {
	sink := &memSink{}
	called := false
	_, err := ViewPII(context.Background(), sink, zap.NewNop(), "u2", rbac.RoleSecurity, "visitor-9",
		func(context.Context) (string, error) { called = true; return "", nil })
	require.ErrorIs(t, err, errs.ErrForbidden)
	require.False(t, called)
	require.Len(t, sink.events, 1)
	require.False(t, sink.events[0].Granted)
}

func TestViewPII_SinkFailureDoesNotBlock(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	sink := &memSink{err: errors.New("disk full")}

	got, err := ViewPII(context.Background(), sink, zap.New(core), "u1", rbac.RoleAdmin, "r",
		func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	require.Equal(t, 42, got)
	require.Equal(t, 1, logs.FilterMessage("audit record failed").Len())
}

func TestZapSink(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	s := NewZapSink(zap.New(core))
	require.NoError(t, s.Record(context.Background(), Event{ActorID: "a", Action: ActionPIIView, Granted: true}))

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "audit", entries[0].LoggerName)
	require.Equal(t, true, entries[0].ContextMap()["granted"])
}
