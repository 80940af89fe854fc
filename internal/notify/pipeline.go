// Package notify runs the outbound notification flow: authorize, rate-limit,
// render, then hand the payload to the webhook dispatcher.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/visitguard/internal/errs"
	"github.com/and161185/visitguard/internal/limiter"
	"github.com/and161185/visitguard/internal/model"
	"github.com/and161185/visitguard/internal/rbac"
	"github.com/and161185/visitguard/internal/template"
)

// Status is the outcome of a Notify call.
type Status string

const (
	StatusForbidden   Status = "forbidden"
	StatusRateLimited Status = "rate_limited"
	StatusDispatched  Status = "dispatched"
)

// Dispatcher delivers a payload to all subscribed webhooks.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventType string, payload []byte) []model.DeliveryResult
}

// Renderer resolves templates.
type Renderer interface {
	Template(id string) (model.NotificationTemplate, bool)
	TemplatesByType(event model.EventType, channel model.ChannelType) []model.NotificationTemplate
	RenderTemplate(id string, data map[string]any) (template.Rendered, error)
}

// Request describes one notification.
type Request struct {
	ActorRole   rbac.Role
	SubjectKey  string // usually the host id
	EventType   model.EventType
	ChannelType model.ChannelType
	VisitID     string         // optional
	TemplateID  string         // optional; the first template for event/channel otherwise
	Data        map[string]any // template context
}

// Outcome reports what happened. Deliveries is set only when Status is dispatched.
type Outcome struct {
	Status     Status
	TemplateID string
	Deliveries []model.DeliveryResult
}

// Err reports a forbidden or rate-limited outcome as ErrForbidden or
// ErrRateLimited, and nil otherwise.
func (o Outcome) Err() error {
	switch o.Status {
	case StatusForbidden:
		return errs.ErrForbidden
	case StatusRateLimited:
		return errs.ErrRateLimited
	}
	return nil
}

// Payload is the JSON body handed to the dispatcher.
type Payload struct {
	Type       string `json:"type"`
	Channel    string `json:"channel"`
	TemplateID string `json:"templateId"`
	Subject    string `json:"subject,omitempty"`
	Text       string `json:"text"`
	VisitID    string `json:"visitId,omitempty"`
	Timestamp  string `json:"timestamp"`
}

// Pipeline wires the RBAC check, the limiter, the template registry and the dispatcher.
type Pipeline struct {
	logger     *zap.Logger
	limiter    limiter.Limiter
	templates  Renderer
	dispatcher Dispatcher
	now        func() time.Time
}

func New(logger *zap.Logger, l limiter.Limiter, r Renderer, d Dispatcher) *Pipeline {
	return &Pipeline{
		logger:     logger.Named("notify"),
		limiter:    l,
		templates:  r,
		dispatcher: d,
		now:        time.Now,
	}
}

// Notify runs one notification through the pipeline. Forbidden and rate-limited
// requests are reported in the Outcome, not as errors.
func (p *Pipeline) Notify(ctx context.Context, req Request) (Outcome, error) {
	log := p.logger.With(
		zap.String("event", string(req.EventType)),
		zap.String("channel", string(req.ChannelType)),
		zap.String("subject", req.SubjectKey),
	)

	if err := rbac.Authorize(req.ActorRole, rbac.NotificationSend); err != nil {
		log.Info("notification forbidden", zap.String("role", string(req.ActorRole)))
		return Outcome{Status: StatusForbidden}, nil
	}
	if req.SubjectKey == "" || req.EventType == "" {
		return Outcome{}, fmt.Errorf("%w: subject key and event type are required", errs.ErrValidation)
	}

	tplID := req.TemplateID
	if tplID == "" {
		ts := p.templates.TemplatesByType(req.EventType, req.ChannelType)
		if len(ts) == 0 {
			return Outcome{}, &errs.NotFoundError{Kind: "Template", ID: template.DefaultID(req.EventType, req.ChannelType)}
		}
		tplID = ts[0].ID
	} else if _, ok := p.templates.Template(tplID); !ok {
		return Outcome{}, &errs.NotFoundError{Kind: "Template", ID: tplID}
	}

	ok, err := p.limiter.CheckLimit(ctx, req.SubjectKey, string(req.EventType), req.VisitID)
	if err != nil {
		return Outcome{}, fmt.Errorf("check limit: %w", err)
	}
	if !ok {
		log.Info("notification rate limited", zap.String("visit", req.VisitID))
		return Outcome{Status: StatusRateLimited, TemplateID: tplID}, nil
	}

	r, err := p.templates.RenderTemplate(tplID, req.Data)
	if err != nil {
		return Outcome{}, err
	}
	body, err := json.Marshal(Payload{
		Type:       string(req.EventType),
		Channel:    string(req.ChannelType),
		TemplateID: tplID,
		Subject:    r.Subject,
		Text:       r.Text,
		VisitID:    req.VisitID,
		Timestamp:  p.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("marshal payload: %w", err)
	}

	results := p.dispatcher.Dispatch(ctx, string(req.EventType), body)
	log.Info("notification dispatched", zap.String("template", tplID), zap.Int("webhooks", len(results)))
	return Outcome{Status: StatusDispatched, TemplateID: tplID, Deliveries: results}, nil
}
