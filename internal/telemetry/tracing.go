// Package telemetry traces operations flowing through a link chain.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/doclink/internal/link"
	"github.com/roach88/doclink/internal/query"
)

const instrumentationName = "github.com/roach88/doclink/internal/telemetry"

// Attribute keys set on operation spans.
const (
	AttrKind         = attribute.Key("doclink.kind")
	AttrDoctype      = attribute.Key("doclink.doctype")
	AttrMutationType = attribute.Key("doclink.mutation.type")
	AttrDocuments    = attribute.Key("doclink.response.documents")
	AttrNext         = attribute.Key("doclink.response.next")
)

type tracingLink struct {
	link.NopHooks
	tracer trace.Tracer
}

// TracingLink returns a link opening one span per operation around the
// rest of the chain. A nil provider means the global one.
func TracingLink(tp trace.TracerProvider) link.Link {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &tracingLink{tracer: tp.Tracer(instrumentationName)}
}

func (l *tracingLink) Request(ctx context.Context, op query.Operation, prev *query.Response, next link.Next) (*query.Response, error) {
	name, attrs := describe(op)
	ctx, span := l.tracer.Start(ctx, name, trace.WithAttributes(attrs...), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	resp, err := next(ctx, op, prev)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if resp != nil {
		span.SetAttributes(AttrDocuments.Int(len(resp.Data)), AttrNext.Bool(resp.Next))
	}
	return resp, nil
}

func describe(op query.Operation) (string, []attribute.KeyValue) {
	attrs := []attribute.KeyValue{AttrKind.String(string(op.Kind()))}
	switch o := op.(type) {
	case query.Definition:
		attrs = append(attrs, AttrDoctype.String(o.Doctype))
		return "doclink.query " + o.Doctype, attrs
	case query.Mutation:
		attrs = append(attrs, AttrDoctype.String(o.Doctype()), AttrMutationType.String(string(o.Type)))
		return "doclink.mutation " + string(o.Type), attrs
	default:
		return "doclink." + string(op.Kind()), attrs
	}
}

// TracerOption configures NewTracerProvider.
type TracerOption func(*tracerConfig)

type tracerConfig struct {
	serviceName   string
	samplingRatio float64
	processors    []sdktrace.SpanProcessor
}

// WithServiceName sets the service.name resource attribute.
func WithServiceName(name string) TracerOption {
	return func(c *tracerConfig) {
		c.serviceName = name
	}
}

// WithSamplingRatio sets the fraction of traces sampled.
func WithSamplingRatio(ratio float64) TracerOption {
	return func(c *tracerConfig) {
		c.samplingRatio = ratio
	}
}

// WithSpanProcessor adds a span processor, an exporter pipeline or a
// recorder in tests.
func WithSpanProcessor(p sdktrace.SpanProcessor) TracerOption {
	return func(c *tracerConfig) {
		c.processors = append(c.processors, p)
	}
}

// NewTracerProvider builds an SDK tracer provider. Callers own its
// shutdown.
func NewTracerProvider(opts ...TracerOption) *sdktrace.TracerProvider {
	cfg := &tracerConfig{serviceName: "doclink", samplingRatio: 1}
	for _, opt := range opts {
		opt(cfg)
	}

	res := resource.NewSchemaless(attribute.String("service.name", cfg.serviceName))
	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.samplingRatio))),
	}
	for _, p := range cfg.processors {
		tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(p))
	}
	return sdktrace.NewTracerProvider(tpOpts...)
}
