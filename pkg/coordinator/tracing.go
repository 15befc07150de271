package coordinator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingClient wraps a Client and wraps every round trip in a span, so a
// batch-lifecycle trace shows the coordinator calls it waited on.
type TracingClient struct {
	Client
	tracer trace.Tracer
}

// NewTracingClient wraps client so every call starts a "coordinator.<op>"
// span under tracer.
func NewTracingClient(client Client, tracer trace.Tracer) *TracingClient {
	return &TracingClient{Client: client, tracer: tracer}
}

func (c *TracingClient) start(ctx context.Context, op, key string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "coordinator."+op, trace.WithAttributes(attribute.String("coordinator.key", key)))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (c *TracingClient) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, span := c.start(ctx, "get", key)
	v, ok, err := c.Client.Get(ctx, key)
	finish(span, err)
	return v, ok, err
}

func (c *TracingClient) Set(ctx context.Context, key, value string) error {
	ctx, span := c.start(ctx, "set", key)
	err := c.Client.Set(ctx, key, value)
	finish(span, err)
	return err
}

func (c *TracingClient) Acquire(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, span := c.start(ctx, "acquire", key)
	ok, err := c.Client.Acquire(ctx, key, value, ttl)
	finish(span, err)
	return ok, err
}

func (c *TracingClient) Swap(ctx context.Context, key, newValue string) (string, bool, error) {
	ctx, span := c.start(ctx, "swap", key)
	prev, ok, err := c.Client.Swap(ctx, key, newValue)
	finish(span, err)
	return prev, ok, err
}

func (c *TracingClient) Refresh(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, span := c.start(ctx, "refresh", key)
	err := c.Client.Refresh(ctx, key, value, ttl)
	finish(span, err)
	return err
}

func (c *TracingClient) Delete(ctx context.Context, key string) error {
	ctx, span := c.start(ctx, "delete", key)
	err := c.Client.Delete(ctx, key)
	finish(span, err)
	return err
}
