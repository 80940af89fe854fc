// Package model defines domain entities shared by the crypto, limiter, webhook and template layers.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// EncryptedValue is an envelope-encrypted field. All members are base64 (std) strings.
type EncryptedValue struct {
	Ciphertext     string `json:"ciphertext"`
	WrappedDataKey string `json:"wrappedDataKey"`
	IV             string `json:"iv"`
	AuthTag        string `json:"authTag"`
}

// Complete reports whether every member is present.
func (v EncryptedValue) Complete() bool {
	return v.Ciphertext != "" && v.WrappedDataKey != "" && v.IV != "" && v.AuthTag != ""
}

// EventType names a notification kind.
type EventType string

const (
	EventHostAlert           EventType = "host_alert"
	EventVisitorConfirmation EventType = "visitor_confirmation"
	EventCheckoutAlert       EventType = "checkout_alert"
	EventWebhookTest         EventType = "webhook.test"
)

// NotificationEvents lists the event types that have default templates.
var NotificationEvents = []EventType{EventHostAlert, EventVisitorConfirmation, EventCheckoutAlert}

// ChannelType names a delivery channel.
type ChannelType string

const (
	ChannelSMS   ChannelType = "sms"
	ChannelEmail ChannelType = "email"
	ChannelSlack ChannelType = "slack"
	ChannelTeams ChannelType = "teams"
)

// Channels lists every channel with default templates.
var Channels = []ChannelType{ChannelSMS, ChannelEmail, ChannelSlack, ChannelTeams}

// NotificationTemplate is a message template registered by ID.
type NotificationTemplate struct {
	ID           string
	Name         string
	EventType    EventType
	ChannelType  ChannelType
	Subject      string // optional; empty for sms/slack/teams defaults
	TextTemplate string
	Variables    []string
	IsDefault    bool
}

// RetryConfig controls webhook redelivery.
type RetryConfig struct {
	MaxRetries        int     `json:"maxRetries"`
	BackoffMultiplier float64 `json:"backoffMultiplier"`
	InitialDelayMs    int     `json:"initialDelayMs"`
}

// DefaultRetryConfig is applied to webhooks registered with a zero RetryConfig.
var DefaultRetryConfig = RetryConfig{MaxRetries: 3, BackoffMultiplier: 2, InitialDelayMs: 1000}

// WebhookConfig describes a registered webhook endpoint.
type WebhookConfig struct {
	URL      string
	Secret   string
	Events   []string
	IsActive bool
	Retry    RetryConfig
}

// Subscribed reports whether the webhook wants the given event.
func (c WebhookConfig) Subscribed(event string) bool {
	for _, e := range c.Events {
		if e == event || e == "*" {
			return true
		}
	}
	return false
}

// DeliveryStatus is the final state of one event delivery.
type DeliveryStatus string

const (
	DeliverySent   DeliveryStatus = "SENT"
	DeliveryFailed DeliveryStatus = "FAILED"
)

// DeliveryResult reports the outcome of delivering one event to one webhook.
type DeliveryResult struct {
	ID          uuid.UUID
	WebhookID   string
	EventType   string
	Status      DeliveryStatus
	Attempts    int
	StatusCode  int    // last HTTP status, 0 if no response
	Error       string // last error, empty on success
	DeliveredAt time.Time
}

// LimitKind distinguishes window counters from per-visit counters in snapshots.
type LimitKind string

const (
	LimitWindow LimitKind = "window"
	LimitVisit  LimitKind = "visit"
)

// LimitState is a point-in-time view of one rate limit counter.
type LimitState struct {
	Kind        LimitKind
	HourCount   int
	HourResetAt time.Time
	DayCount    int
	DayResetAt  time.Time
	VisitCount  int
}
