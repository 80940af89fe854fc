// Package convert maps between api wire messages and domain types.
package convert

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/and161185/visitguard/internal/api"
	"github.com/and161185/visitguard/internal/crypto"
	"github.com/and161185/visitguard/internal/errs"
	"github.com/and161185/visitguard/internal/model"
	"github.com/and161185/visitguard/internal/notify"
	"github.com/and161185/visitguard/internal/rbac"
	"github.com/and161185/visitguard/internal/webhook"
)

// --- helpers ---

func ts(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// --- Notify ---

// FromAPINotify builds a pipeline request on behalf of role.
func FromAPINotify(in *api.NotifyRequest, role rbac.Role) (notify.Request, error) {
	if in == nil {
		return notify.Request{}, fmt.Errorf("%w: nil NotifyRequest", errs.ErrValidation)
	}
	return notify.Request{
		ActorRole:   role,
		SubjectKey:  strings.TrimSpace(in.SubjectKey),
		EventType:   model.EventType(in.EventType),
		ChannelType: model.ChannelType(strings.ToLower(in.ChannelType)),
		VisitID:     in.VisitID,
		TemplateID:  in.TemplateID,
		Data:        in.Data,
	}, nil
}

// ToAPINotify converts a pipeline outcome.
func ToAPINotify(o notify.Outcome) *api.NotifyResponse {
	return &api.NotifyResponse{
		Status:     string(o.Status),
		TemplateID: o.TemplateID,
		Deliveries: ToAPIDeliveries(o.Deliveries),
	}
}

// --- Deliveries ---

func ToAPIDelivery(d model.DeliveryResult) api.Delivery {
	return api.Delivery{
		ID:          d.ID.String(),
		WebhookID:   d.WebhookID,
		EventType:   d.EventType,
		Status:      string(d.Status),
		Attempts:    d.Attempts,
		StatusCode:  d.StatusCode,
		Error:       d.Error,
		DeliveredAt: ts(d.DeliveredAt),
	}
}

func ToAPIDeliveries(in []model.DeliveryResult) []api.Delivery {
	if len(in) == 0 {
		return nil
	}
	out := make([]api.Delivery, 0, len(in))
	for _, d := range in {
		out = append(out, ToAPIDelivery(d))
	}
	return out
}

// --- Webhooks ---

// FromAPIWebhook validates the id and returns the domain config.
// A nil Retry leaves defaults to the dispatcher.
func FromAPIWebhook(in api.Webhook) (string, model.WebhookConfig, error) {
	id := strings.TrimSpace(in.ID)
	if id == "" {
		return "", model.WebhookConfig{}, fmt.Errorf("%w: webhook id is required", errs.ErrValidation)
	}
	cfg := model.WebhookConfig{
		URL:      strings.TrimSpace(in.URL),
		Secret:   in.Secret,
		Events:   slices.Clone(in.Events),
		IsActive: in.Active,
	}
	if in.Retry != nil {
		cfg.Retry = model.RetryConfig{
			MaxRetries:        in.Retry.MaxRetries,
			BackoffMultiplier: in.Retry.BackoffMultiplier,
			InitialDelayMs:    in.Retry.InitialDelayMs,
		}
	}
	return id, cfg, nil
}

// ToAPIWebhook drops the secret and redacts credentials from the URL.
func ToAPIWebhook(id string, cfg model.WebhookConfig) api.Webhook {
	return api.Webhook{
		ID:     id,
		URL:    webhook.RedactURL(cfg.URL),
		Events: slices.Clone(cfg.Events),
		Active: cfg.IsActive,
		Retry: &api.Retry{
			MaxRetries:        cfg.Retry.MaxRetries,
			BackoffMultiplier: cfg.Retry.BackoffMultiplier,
			InitialDelayMs:    cfg.Retry.InitialDelayMs,
		},
	}
}

// ToAPIWebhooks returns the registry sorted by id.
func ToAPIWebhooks(in map[string]model.WebhookConfig) []api.Webhook {
	out := make([]api.Webhook, 0, len(in))
	for _, id := range slices.Sorted(maps.Keys(in)) {
		out = append(out, ToAPIWebhook(id, in[id]))
	}
	return out
}

// --- Limits ---

// ToAPILimits returns counter snapshots sorted by key.
func ToAPILimits(in map[string]model.LimitState) []api.LimitState {
	out := make([]api.LimitState, 0, len(in))
	for _, k := range slices.Sorted(maps.Keys(in)) {
		st := in[k]
		out = append(out, api.LimitState{
			Key:         k,
			Kind:        string(st.Kind),
			HourCount:   st.HourCount,
			HourResetAt: ts(st.HourResetAt),
			DayCount:    st.DayCount,
			DayResetAt:  ts(st.DayResetAt),
			VisitCount:  st.VisitCount,
		})
	}
	return out
}

// --- Records ---

func ToAPISealed(sr crypto.SealedRecord) *api.SealedRecord {
	out := &api.SealedRecord{
		Encrypted: make(map[string]api.EncryptedValue, len(sr.Encrypted)),
		Index:     make(map[string]string, len(sr.Index)),
		Plain:     maps.Clone(sr.Plain),
	}
	for k, v := range sr.Encrypted {
		out.Encrypted[k] = api.EncryptedValue(v)
	}
	for k, v := range sr.Index {
		out.Index[k] = string(v)
	}
	return out
}

func FromAPISealed(in api.SealedRecord) crypto.SealedRecord {
	out := crypto.SealedRecord{
		Encrypted: make(map[string]model.EncryptedValue, len(in.Encrypted)),
		Index:     make(map[string]model.BlindIndex, len(in.Index)),
		Plain:     maps.Clone(in.Plain),
	}
	for k, v := range in.Encrypted {
		out.Encrypted[k] = model.EncryptedValue(v)
	}
	for k, v := range in.Index {
		out.Index[k] = model.BlindIndex(v)
	}
	return out
}
