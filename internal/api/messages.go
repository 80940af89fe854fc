// Package api defines the visitguard.v1.Guard gRPC wire messages, the JSON codec
// they travel with, and a typed client.
package api

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "visitguard.v1.Guard"

// Full method names, as seen by interceptors.
const (
	MethodNotify            = "/" + ServiceName + "/Notify"
	MethodRegisterWebhook   = "/" + ServiceName + "/RegisterWebhook"
	MethodUnregisterWebhook = "/" + ServiceName + "/UnregisterWebhook"
	MethodListWebhooks      = "/" + ServiceName + "/ListWebhooks"
	MethodTestWebhook       = "/" + ServiceName + "/TestWebhook"
	MethodVerifySignature   = "/" + ServiceName + "/VerifySignature"
	MethodRenderTemplate    = "/" + ServiceName + "/RenderTemplate"
	MethodCurrentLimits     = "/" + ServiceName + "/CurrentLimits"
	MethodResetLimits       = "/" + ServiceName + "/ResetLimits"
	MethodSealRecord        = "/" + ServiceName + "/SealRecord"
	MethodOpenRecord        = "/" + ServiceName + "/OpenRecord"
)

type Empty struct{}

type NotifyRequest struct {
	SubjectKey  string         `json:"subjectKey"`
	EventType   string         `json:"eventType"`
	ChannelType string         `json:"channelType"`
	VisitID     string         `json:"visitId,omitempty"`
	TemplateID  string         `json:"templateId,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

type Delivery struct {
	ID          string `json:"id"`
	WebhookID   string `json:"webhookId"`
	EventType   string `json:"eventType"`
	Status      string `json:"status"`
	Attempts    int    `json:"attempts"`
	StatusCode  int    `json:"statusCode,omitempty"`
	Error       string `json:"error,omitempty"`
	DeliveredAt string `json:"deliveredAt"` // RFC 3339
}

type NotifyResponse struct {
	Status     string     `json:"status"`
	TemplateID string     `json:"templateId,omitempty"`
	Deliveries []Delivery `json:"deliveries,omitempty"`
}

type Retry struct {
	MaxRetries        int     `json:"maxRetries"`
	BackoffMultiplier float64 `json:"backoffMultiplier"`
	InitialDelayMs    int     `json:"initialDelayMs"`
}

// Webhook is a registry entry. Secret is write-only: responses never carry it.
type Webhook struct {
	ID     string   `json:"id"`
	URL    string   `json:"url"`
	Secret string   `json:"secret,omitempty"`
	Events []string `json:"events"`
	Active bool     `json:"active"`
	Retry  *Retry   `json:"retry,omitempty"`
}

type RegisterWebhookRequest struct {
	Webhook Webhook `json:"webhook"`
}

type WebhookRef struct {
	ID string `json:"id"`
}

type ListWebhooksResponse struct {
	Webhooks []Webhook `json:"webhooks"`
}

// VerifySignatureRequest checks an inbound payload against a registered webhook's secret.
type VerifySignatureRequest struct {
	WebhookID string `json:"webhookId"`
	Payload   []byte `json:"payload"`
	Signature string `json:"signature"`
	Nonce     string `json:"nonce"`
}

type VerifySignatureResponse struct {
	Valid bool `json:"valid"`
}

type RenderTemplateRequest struct {
	TemplateID string         `json:"templateId"`
	Data       map[string]any `json:"data,omitempty"`
}

type RenderTemplateResponse struct {
	Subject string `json:"subject,omitempty"`
	Text    string `json:"text"`
}

type LimitState struct {
	Key         string `json:"key"`
	Kind        string `json:"kind"`
	HourCount   int    `json:"hourCount,omitempty"`
	HourResetAt string `json:"hourResetAt,omitempty"`
	DayCount    int    `json:"dayCount,omitempty"`
	DayResetAt  string `json:"dayResetAt,omitempty"`
	VisitCount  int    `json:"visitCount,omitempty"`
}

type LimitsResponse struct {
	Limits []LimitState `json:"limits"`
}

type EncryptedValue struct {
	Ciphertext     string `json:"ciphertext"`
	WrappedDataKey string `json:"wrappedDataKey"`
	IV             string `json:"iv"`
	AuthTag        string `json:"authTag"`
}

type SealedRecord struct {
	Encrypted map[string]EncryptedValue `json:"encrypted"`
	Index     map[string]string         `json:"index,omitempty"`
	Plain     map[string]string         `json:"plain,omitempty"`
}

type SealRecordRequest struct {
	Entity string            `json:"entity"`
	Record map[string]string `json:"record"`
}

type OpenRecordRequest struct {
	Entity     string       `json:"entity"`
	ResourceID string       `json:"resourceId"`
	Sealed     SealedRecord `json:"sealed"`
}

// OpenRecordResponse carries the plaintext record, or its masked form when the
// caller may not view PII.
type OpenRecordResponse struct {
	Record map[string]string `json:"record"`
	Masked bool              `json:"masked"`
}
