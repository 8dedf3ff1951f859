// Package otelsink exports measurements as OpenTelemetry client spans.
package otelsink

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/jkbrsn/httpscope"
)

const instrumentationName = "github.com/jkbrsn/httpscope"

// Setup builds a tracer provider exporting to an OTLP gRPC collector at endpoint. With an
// empty endpoint a no-op provider is returned.
func Setup(ctx context.Context, endpoint, service string) (trace.TracerProvider, func(context.Context) error, error) {
	if endpoint == "" {
		return noop.NewTracerProvider(), func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure())
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	return tp, tp.Shutdown, nil
}

// Sink turns measurements into spans backdated to the measured interval, and exceptions into
// zero-length error spans. It implements httpscope.Timeline and httpscope.ExceptionSink.
type Sink struct {
	tracer trace.Tracer
}

// New creates a Sink using a tracer from tp.
func New(tp trace.TracerProvider) *Sink {
	return &Sink{tracer: tp.Tracer(instrumentationName)}
}

// AddMeasure records m as a client span parented to the request context.
func (s *Sink) AddMeasure(m httpscope.Measurement) {
	ctx := context.Background()
	method := ""
	if m.Request != nil {
		ctx = m.Request.Context()
		method = m.Request.Method
	}

	_, span := s.tracer.Start(ctx, spanName(method),
		trace.WithTimestamp(m.Start),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attributes(m)...),
	)
	if m.Err != nil {
		span.RecordError(m.Err, trace.WithTimestamp(m.End))
		span.SetStatus(codes.Error, m.Err.Error())
	}
	span.End(trace.WithTimestamp(m.End))
}

// AddException records err on a span of its own.
func (s *Sink) AddException(err error) {
	now := time.Now()
	_, span := s.tracer.Start(context.Background(), "http.exception",
		trace.WithTimestamp(now),
		trace.WithSpanKind(trace.SpanKindClient))
	span.RecordError(err, trace.WithTimestamp(now))
	span.SetStatus(codes.Error, err.Error())
	span.End(trace.WithTimestamp(now))
}

func spanName(method string) string {
	if method == "" {
		return "HTTP"
	}
	return "HTTP " + method
}

func attributes(m httpscope.Measurement) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("httpscope.label", m.Label),
		attribute.String("httpscope.key", string(m.Key)),
	}
	if m.Request != nil {
		attrs = append(attrs, semconv.HTTPMethodKey.String(m.Request.Method))
		if m.Request.URL != nil {
			attrs = append(attrs, attribute.String("http.url", m.Request.URL.String()))
		}
	}
	if code := m.StatusCode(); code > 0 {
		attrs = append(attrs, semconv.HTTPStatusCodeKey.Int(code))
	}
	for name, value := range m.Parameters {
		attrs = append(attrs, attribute.String("httpscope.param."+name, value))
	}
	if t := m.Timing; t != nil {
		attrs = append(attrs, attribute.Int64("httpscope.latency_ms", t.Latency.Milliseconds()))
		for key, d := range map[string]*time.Duration{
			"httpscope.dns_ms":     t.DNSLookup,
			"httpscope.connect_ms": t.TCPConnect,
			"httpscope.tls_ms":     t.TLSHandshake,
			"httpscope.server_ms":  t.ServerProcessing,
		} {
			if d != nil {
				attrs = append(attrs, attribute.Int64(key, d.Milliseconds()))
			}
		}
	}
	return attrs
}
