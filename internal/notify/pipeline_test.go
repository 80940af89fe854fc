package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/visitguard/internal/errs"
	"github.com/and161185/visitguard/internal/limiter"
	"github.com/and161185/visitguard/internal/model"
	"github.com/and161185/visitguard/internal/rbac"
	"github.com/and161185/visitguard/internal/template"
	"github.com/and161185/visitguard/internal/webhook"
)

type captureDispatcher struct {
	mu       sync.Mutex
	events   []string
	payloads [][]byte
}

func (c *captureDispatcher) Dispatch(_ context.Context, eventType string, payload []byte) []model.DeliveryResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, eventType)
	c.payloads = append(c.payloads, payload)
	return []model.DeliveryResult{{WebhookID: "w", EventType: eventType, Status: model.DeliverySent, Attempts: 1}}
}

func newPipeline(t *testing.T, l limiter.Limits) (*Pipeline, *captureDispatcher) {
	t.Helper()
	lim, err := limiter.NewMemory(l)
	require.NoError(t, err)
	d := &captureDispatcher{}
	return New(zap.NewNop(), lim, template.NewRegistry(), d), d
}

func hostAlert(role rbac.Role, visit string) Request {
	return Request{
		ActorRole:   role,
		SubjectKey:  "host-1",
		EventType:   model.EventHostAlert,
		ChannelType: model.ChannelSMS,
		VisitID:     visit,
		Data: map[string]any{
			"visitor":  map[string]any{"firstName": "John", "lastName": "Doe"},
			"location": map[string]any{"name": "Lobby"},
		},
	}
}

func TestNotify_Dispatched(t *testing.T) {
	p, d := newPipeline(t, limiter.DefaultLimits())

	out, err := p.Notify(context.Background(), hostAlert(rbac.RoleReceptionist, ""))
	require.NoError(t, err)
	assert.Equal(t, StatusDispatched, out.Status)
	assert.Equal(t, template.DefaultID(model.EventHostAlert, model.ChannelSMS), out.TemplateID)
	require.Len(t, out.Deliveries, 1)

	require.Len(t, d.payloads, 1)
	var body Payload
	require.NoError(t, json.Unmarshal(d.payloads[0], &body))
	assert.Equal(t, "host_alert", body.Type)
	assert.Equal(t, "sms", body.Channel)
	assert.Equal(t, "John Doe is here to see you at Lobby.", body.Text)
}

func TestNotify_Forbidden(t *testing.T) {
	p, d := newPipeline(t, limiter.DefaultLimits())

	out, err := p.Notify(context.Background(), hostAlert(rbac.Role("GUEST"), ""))
	require.NoError(t, err)
	assert.Equal(t, StatusForbidden, out.Status)
	assert.Empty(t, d.events)
}

func TestNotify_RateLimitedPerVisit(t *testing.T) {
	p, d := newPipeline(t, limiter.Limits{MaxPerHour: 10, MaxPerDay: 10, MaxPerVisit: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		out, err := p.Notify(ctx, hostAlert(rbac.RoleSecurity, "v1"))
		require.NoError(t, err)
		require.Equal(t, StatusDispatched, out.Status)
	}
	out, err := p.Notify(ctx, hostAlert(rbac.RoleSecurity, "v1"))
	require.NoError(t, err)
	assert.Equal(t, StatusRateLimited, out.Status)

	out, err = p.Notify(ctx, hostAlert(rbac.RoleSecurity, "v2"))
	require.NoError(t, err)
	assert.Equal(t, StatusDispatched, out.Status)
	assert.Len(t, d.events, 4)
}

func TestNotify_UnknownTemplateDoesNotConsumeQuota(t *testing.T) {
	p, _ := newPipeline(t, limiter.Limits{MaxPerHour: 1, MaxPerDay: 1, MaxPerVisit: 1})
	ctx := context.Background()

	req := hostAlert(rbac.RoleAdmin, "")
	req.TemplateID = "nope"
	_, err := p.Notify(ctx, req)
	require.ErrorIs(t, err, errs.ErrNotFound)

	out, err := p.Notify(ctx, hostAlert(rbac.RoleAdmin, ""))
	require.NoError(t, err)
	assert.Equal(t, StatusDispatched, out.Status)
}

func TestNotify_Validation(t *testing.T) {
	p, _ := newPipeline(t, limiter.DefaultLimits())
	req := hostAlert(rbac.RoleAdmin, "")
	req.SubjectKey = ""
	_, err := p.Notify(context.Background(), req)
	require.ErrorIs(t, err, errs.ErrValidation)
}

type brokenLimiter struct{ limiter.Limiter }

func (brokenLimiter) CheckLimit(context.Context, string, string, string) (bool, error) {
	return false, errors.New("db down")
}

func TestNotify_LimiterError(t *testing.T) {
	p := New(zap.NewNop(), brokenLimiter{}, template.NewRegistry(), &captureDispatcher{})
	_, err := p.Notify(context.Background(), hostAlert(rbac.RoleAdmin, ""))
	require.Error(t, err)
}

func TestNotify_EndToEndSignedDelivery(t *testing.T) {
	var mu sync.Mutex
	var got []*http.Request
	var bodies [][]byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, r)
		bodies = append(bodies, b)
		mu.Unlock()
	}))
	defer srv.Close()

	ctx := context.Background()
	d := webhook.New(zaptest.NewLogger(t), webhook.NewMemoryNonceStore(0), webhook.Options{})
	require.NoError(t, d.RegisterWebhook(ctx, "slack", model.WebhookConfig{
		URL: srv.URL, Secret: "k", Events: []string{"host_alert"}, IsActive: true,
	}))
	lim, err := limiter.NewMemory(limiter.DefaultLimits())
	require.NoError(t, err)
	p := New(zaptest.NewLogger(t), lim, template.NewRegistry(), d)

	out, err := p.Notify(ctx, hostAlert(rbac.RoleManager, "v1"))
	require.NoError(t, err)
	require.Equal(t, StatusDispatched, out.Status)
	require.Len(t, out.Deliveries, 1)
	assert.Equal(t, model.DeliverySent, out.Deliveries[0].Status)

	require.Len(t, got, 1)
	assert.Equal(t, webhook.Sign(bodies[0], "k"), got[0].Header.Get(webhook.HeaderSignature))
	assert.NotEmpty(t, got[0].Header.Get(webhook.HeaderNonce))
}

func TestOutcome_Err(t *testing.T) {
	assert.ErrorIs(t, Outcome{Status: StatusForbidden}.Err(), errs.ErrForbidden)
	assert.ErrorIs(t, Outcome{Status: StatusRateLimited}.Err(), errs.ErrRateLimited)
	assert.NoError(t, Outcome{Status: StatusDispatched}.Err())
}
