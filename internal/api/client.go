package api

import (
	"context"

	"google.golang.org/grpc"
)

// Client calls the Guard service over any gRPC connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}

func (c *Client) Notify(ctx context.Context, in *NotifyRequest, opts ...grpc.CallOption) (*NotifyResponse, error) {
	out := new(NotifyResponse)
	if err := c.invoke(ctx, MethodNotify, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RegisterWebhook(ctx context.Context, in *RegisterWebhookRequest, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.invoke(ctx, MethodRegisterWebhook, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) UnregisterWebhook(ctx context.Context, in *WebhookRef, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.invoke(ctx, MethodUnregisterWebhook, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ListWebhooks(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*ListWebhooksResponse, error) {
	out := new(ListWebhooksResponse)
	if err := c.invoke(ctx, MethodListWebhooks, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TestWebhook(ctx context.Context, in *WebhookRef, opts ...grpc.CallOption) (*Delivery, error) {
	out := new(Delivery)
	if err := c.invoke(ctx, MethodTestWebhook, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) VerifySignature(ctx context.Context, in *VerifySignatureRequest, opts ...grpc.CallOption) (*VerifySignatureResponse, error) {
	out := new(VerifySignatureResponse)
	if err := c.invoke(ctx, MethodVerifySignature, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RenderTemplate(ctx context.Context, in *RenderTemplateRequest, opts ...grpc.CallOption) (*RenderTemplateResponse, error) {
	out := new(RenderTemplateResponse)
	if err := c.invoke(ctx, MethodRenderTemplate, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CurrentLimits(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*LimitsResponse, error) {
	out := new(LimitsResponse)
	if err := c.invoke(ctx, MethodCurrentLimits, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ResetLimits(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Empty, error) {
	out := new(Empty)
	if err := c.invoke(ctx, MethodResetLimits, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) SealRecord(ctx context.Context, in *SealRecordRequest, opts ...grpc.CallOption) (*SealedRecord, error) {
	out := new(SealedRecord)
	if err := c.invoke(ctx, MethodSealRecord, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) OpenRecord(ctx context.Context, in *OpenRecordRequest, opts ...grpc.CallOption) (*OpenRecordResponse, error) {
	out := new(OpenRecordResponse)
	if err := c.invoke(ctx, MethodOpenRecord, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
