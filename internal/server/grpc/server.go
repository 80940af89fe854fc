// Package grpcserver exposes the visitguard.v1.Guard gRPC API handlers.
package grpcserver

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/and161185/visitguard/internal/api"
	"github.com/and161185/visitguard/internal/audit"
	"github.com/and161185/visitguard/internal/convert"
	"github.com/and161185/visitguard/internal/crypto"
	"github.com/and161185/visitguard/internal/errs"
	"github.com/and161185/visitguard/internal/limiter"
	"github.com/and161185/visitguard/internal/model"
	"github.com/and161185/visitguard/internal/notify"
	"github.com/and161185/visitguard/internal/rbac"
	"github.com/and161185/visitguard/internal/template"
)

// Notifier runs the notification pipeline.
type Notifier interface {
	Notify(ctx context.Context, req notify.Request) (notify.Outcome, error)
}

// Webhooks is the registry and delivery surface of the dispatcher.
type Webhooks interface {
	RegisterWebhook(ctx context.Context, id string, cfg model.WebhookConfig) error
	UnregisterWebhook(ctx context.Context, id string) error
	Webhooks() map[string]model.WebhookConfig
	TestWebhook(ctx context.Context, id string) (model.DeliveryResult, error)
	ValidateSignature(ctx context.Context, payload []byte, signature, secret, nonce string) bool
}

// Templates renders registered templates.
type Templates interface {
	RenderTemplate(id string, data map[string]any) (template.Rendered, error)
}

// Records seals and opens PII records.
type Records interface {
	SealRecord(ctx context.Context, entity string, rec map[string]string) (crypto.SealedRecord, error)
	OpenRecord(ctx context.Context, entity string, sr crypto.SealedRecord) (map[string]string, error)
}

// Deps are the collaborators a Server needs. All are required.
type Deps struct {
	Notifier  Notifier
	Webhooks  Webhooks
	Templates Templates
	Limiter   limiter.Limiter
	Records   Records
	Audit     audit.Sink
}

// Server wires the domain services into gRPC handlers.
type Server struct {
	logger *zap.Logger
	d      Deps
}

// New constructs a gRPC server with injected services.
func New(logger *zap.Logger, d Deps) *Server {
	return &Server{logger: logger.Named("grpc"), d: d}
}

// DefaultPolicy is the permission table for every Guard method.
var DefaultPolicy = Policy{
	api.MethodNotify:            {rbac.NotificationSend},
	api.MethodRegisterWebhook:   {rbac.WebhookManage},
	api.MethodUnregisterWebhook: {rbac.WebhookManage},
	api.MethodListWebhooks:      {rbac.WebhookManage},
	api.MethodTestWebhook:       {rbac.WebhookManage},
	api.MethodVerifySignature:   {rbac.WebhookManage, rbac.NotificationManage},
	api.MethodRenderTemplate:    {rbac.NotificationSend, rbac.NotificationManage},
	api.MethodCurrentLimits:     {rbac.NotificationManage},
	api.MethodResetLimits:       {rbac.NotificationManage},
	api.MethodSealRecord:        {rbac.VisitorCreate, rbac.VisitorUpdate},
	api.MethodOpenRecord:        {rbac.VisitorRead},
}

func principal(ctx context.Context) (Principal, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return Principal{}, status.Error(codes.Unauthenticated, "no auth")
	}
	return p, nil
}

// Notify sends one notification as the calling principal.
func (s *Server) Notify(ctx context.Context, in *api.NotifyRequest) (*api.NotifyResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	req, err := convert.FromAPINotify(in, p.Role)
	if err != nil {
		return nil, err
	}
	out, err := s.d.Notifier.Notify(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := out.Err(); err != nil {
		return nil, err
	}
	return convert.ToAPINotify(out), nil
}

// --- Webhooks ---

func (s *Server) RegisterWebhook(ctx context.Context, in *api.RegisterWebhookRequest) (*api.Empty, error) {
	id, cfg, err := convert.FromAPIWebhook(in.Webhook)
	if err != nil {
		return nil, err
	}
	if err := s.d.Webhooks.RegisterWebhook(ctx, id, cfg); err != nil {
		return nil, err
	}
	return &api.Empty{}, nil
}

func (s *Server) UnregisterWebhook(ctx context.Context, in *api.WebhookRef) (*api.Empty, error) {
	if err := s.d.Webhooks.UnregisterWebhook(ctx, in.ID); err != nil {
		return nil, err
	}
	return &api.Empty{}, nil
}

func (s *Server) ListWebhooks(_ context.Context, _ *api.Empty) (*api.ListWebhooksResponse, error) {
	return &api.ListWebhooksResponse{Webhooks: convert.ToAPIWebhooks(s.d.Webhooks.Webhooks())}, nil
}

func (s *Server) TestWebhook(ctx context.Context, in *api.WebhookRef) (*api.Delivery, error) {
	res, err := s.d.Webhooks.TestWebhook(ctx, in.ID)
	if err != nil {
		return nil, err
	}
	d := convert.ToAPIDelivery(res)
	return &d, nil
}

// VerifySignature checks an inbound payload with the secret of a registered webhook.
// The nonce is consumed only when the signature matches.
func (s *Server) VerifySignature(ctx context.Context, in *api.VerifySignatureRequest) (*api.VerifySignatureResponse, error) {
	cfg, ok := s.d.Webhooks.Webhooks()[in.WebhookID]
	if !ok {
		return nil, &errs.NotFoundError{Kind: "Webhook", ID: in.WebhookID}
	}
	valid := s.d.Webhooks.ValidateSignature(ctx, in.Payload, in.Signature, cfg.Secret, in.Nonce)
	return &api.VerifySignatureResponse{Valid: valid}, nil
}

// --- Templates ---

func (s *Server) RenderTemplate(_ context.Context, in *api.RenderTemplateRequest) (*api.RenderTemplateResponse, error) {
	r, err := s.d.Templates.RenderTemplate(in.TemplateID, in.Data)
	if err != nil {
		return nil, err
	}
	return &api.RenderTemplateResponse{Subject: r.Subject, Text: r.Text}, nil
}

// --- Limits ---

func (s *Server) CurrentLimits(ctx context.Context, _ *api.Empty) (*api.LimitsResponse, error) {
	st, err := s.d.Limiter.CurrentLimits(ctx)
	if err != nil {
		return nil, err
	}
	return &api.LimitsResponse{Limits: convert.ToAPILimits(st)}, nil
}

func (s *Server) ResetLimits(ctx context.Context, _ *api.Empty) (*api.Empty, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.d.Limiter.Reset(ctx); err != nil {
		return nil, err
	}
	s.logger.Info("rate limits reset", zap.String("actor", p.ID.String()))
	return &api.Empty{}, nil
}

// --- Records ---

func (s *Server) SealRecord(ctx context.Context, in *api.SealRecordRequest) (*api.SealedRecord, error) {
	sr, err := s.d.Records.SealRecord(ctx, in.Entity, in.Record)
	if err != nil {
		return nil, err
	}
	return convert.ToAPISealed(sr), nil
}

// OpenRecord returns plaintext to roles that may view PII and a masked record
// to everyone else. Both outcomes are audited.
func (s *Server) OpenRecord(ctx context.Context, in *api.OpenRecordRequest) (*api.OpenRecordResponse, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	sealed := convert.FromAPISealed(in.Sealed)
	resource := fmt.Sprintf("%s/%s", in.Entity, in.ResourceID)
	open := func(ctx context.Context) (map[string]string, error) {
		return s.d.Records.OpenRecord(ctx, in.Entity, sealed)
	}

	rec, err := audit.ViewPII(ctx, s.d.Audit, s.logger, p.ID.String(), p.Role, resource, open)
	if errors.Is(err, errs.ErrForbidden) {
		rec, err = open(ctx)
		if err != nil {
			return nil, err
		}
		return &api.OpenRecordResponse{Record: crypto.MaskOpened(in.Entity, sealed, rec), Masked: true}, nil
	}
	if err != nil {
		return nil, err
	}
	return &api.OpenRecordResponse{Record: rec}, nil
}

// --- registration ---

// GuardServer is implemented by *Server.
type GuardServer interface {
	Notify(context.Context, *api.NotifyRequest) (*api.NotifyResponse, error)
	RegisterWebhook(context.Context, *api.RegisterWebhookRequest) (*api.Empty, error)
	UnregisterWebhook(context.Context, *api.WebhookRef) (*api.Empty, error)
	ListWebhooks(context.Context, *api.Empty) (*api.ListWebhooksResponse, error)
	TestWebhook(context.Context, *api.WebhookRef) (*api.Delivery, error)
	VerifySignature(context.Context, *api.VerifySignatureRequest) (*api.VerifySignatureResponse, error)
	RenderTemplate(context.Context, *api.RenderTemplateRequest) (*api.RenderTemplateResponse, error)
	CurrentLimits(context.Context, *api.Empty) (*api.LimitsResponse, error)
	ResetLimits(context.Context, *api.Empty) (*api.Empty, error)
	SealRecord(context.Context, *api.SealRecordRequest) (*api.SealedRecord, error)
	OpenRecord(context.Context, *api.OpenRecordRequest) (*api.OpenRecordResponse, error)
}

func unary[Req, Resp any](name string, fn func(GuardServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	full := "/" + api.ServiceName + "/" + name
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, ic grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			h := func(ctx context.Context, req any) (any, error) {
				return fn(srv.(GuardServer), ctx, req.(*Req))
			}
			if ic == nil {
				return h(ctx, in)
			}
			return ic(ctx, in, &grpc.UnaryServerInfo{Server: srv, FullMethod: full}, h)
		},
	}
}

// ServiceDesc describes visitguard.v1.Guard for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: api.ServiceName,
	HandlerType: (*GuardServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Notify", GuardServer.Notify),
		unary("RegisterWebhook", GuardServer.RegisterWebhook),
		unary("UnregisterWebhook", GuardServer.UnregisterWebhook),
		unary("ListWebhooks", GuardServer.ListWebhooks),
		unary("TestWebhook", GuardServer.TestWebhook),
		unary("VerifySignature", GuardServer.VerifySignature),
		unary("RenderTemplate", GuardServer.RenderTemplate),
		unary("CurrentLimits", GuardServer.CurrentLimits),
		unary("ResetLimits", GuardServer.ResetLimits),
		unary("SealRecord", GuardServer.SealRecord),
		unary("OpenRecord", GuardServer.OpenRecord),
	},
	Metadata: "visitguard/v1/guard",
}

// Register attaches srv to a gRPC registrar.
func Register(r grpc.ServiceRegistrar, srv GuardServer) {
	r.RegisterService(&ServiceDesc, srv)
}
