// Package template holds notification templates and renders {{dotted.path}} placeholders.
package template

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/and161185/visitguard/internal/errs"
	"github.com/and161185/visitguard/internal/model"
)

// Rendered is the output of RenderTemplate. Subject is empty for channels without one.
type Rendered struct {
	Subject string `json:"subject,omitempty"`
	Text    string `json:"text"`
}

// Registry is a concurrency-safe template store preloaded with defaults.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]model.NotificationTemplate
}

// NewRegistry returns a registry holding one default template per event and channel.
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[string]model.NotificationTemplate)}
	for _, t := range Defaults() {
		r.templates[t.ID] = t
	}
	return r
}

// DefaultID is the id of the built-in template for event and channel.
func DefaultID(event model.EventType, channel model.ChannelType) string {
	return fmt.Sprintf("default_%s_%s", event, channel)
}

// RegisterTemplate inserts or replaces t by ID.
func (r *Registry) RegisterTemplate(t model.NotificationTemplate) error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: template id is required", errs.ErrValidation)
	}
	t.Variables = slices.Clone(t.Variables)
	r.mu.Lock()
	r.templates[t.ID] = t
	r.mu.Unlock()
	return nil
}

// Template returns the template registered under id.
func (r *Registry) Template(id string) (model.NotificationTemplate, bool) {
	r.mu.RLock()
	t, ok := r.templates[id]
	r.mu.RUnlock()
	return t, ok
}

// TemplatesByType filters by event and, when channel is non-empty, by channel.
// The result is sorted by id.
func (r *Registry) TemplatesByType(event model.EventType, channel model.ChannelType) []model.NotificationTemplate {
	r.mu.RLock()
	var out []model.NotificationTemplate
	for _, t := range r.templates {
		if t.EventType != event {
			continue
		}
		if channel != "" && t.ChannelType != channel {
			continue
		}
		out = append(out, t)
	}
	r.mu.RUnlock()
	slices.SortFunc(out, func(a, b model.NotificationTemplate) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// RenderTemplate resolves every placeholder of the template's subject and text against data.
// Missing paths render as "".
func (r *Registry) RenderTemplate(id string, data map[string]any) (Rendered, error) {
	t, ok := r.Template(id)
	if !ok {
		return Rendered{}, notFound(id)
	}
	return Rendered{Subject: Render(t.Subject, data), Text: Render(t.TextTemplate, data)}, nil
}

// MissingVariables lists the declared variables of template id that do not resolve in data.
func (r *Registry) MissingVariables(id string, data map[string]any) ([]string, error) {
	t, ok := r.Template(id)
	if !ok {
		return nil, notFound(id)
	}
	var missing []string
	for _, v := range t.Variables {
		if _, ok := Lookup(data, v); !ok {
			missing = append(missing, v)
		}
	}
	return missing, nil
}

func notFound(id string) error {
	return &errs.NotFoundError{Kind: "Template", ID: id}
}
