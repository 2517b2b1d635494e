package observability

import (
	"context"
	"fmt"
	"net/url"

	"dealflow/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Shutdown flushes pending spans and stops the provider.
type Shutdown func(context.Context) error

const defaultSampleRatio = 0.1

// SetupTracing 初始化 OpenTelemetry：OTLP gRPC 导出、W3C 传播、按比例采样。
// 关闭追踪时返回空操作的 Shutdown
func SetupTracing(ctx context.Context, cfg *config.Config, version string) (Shutdown, error) {
	tc := cfg.Monitoring.Tracing
	if !tc.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	exp, err := newExporter(ctx, tc)
	if err != nil {
		return nil, err
	}
	res, err := newResource(ctx, tc, version)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio(tc.SampleRatio)))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{},
	))
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, tc config.TracingConfig) (sdktrace.SpanExporter, error) {
	endpoint := tc.Endpoint
	if endpoint == "" {
		endpoint = "localhost:4317"
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(grpcTarget(endpoint))}
	if tc.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exp, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	return exp, nil
}

func newResource(ctx context.Context, tc config.TracingConfig, version string) (*resource.Resource, error) {
	name := tc.ServiceName
	if name == "" {
		name = "dealflow"
	}
	attrs := []attribute.KeyValue{attribute.String("service.name", name)}
	if version != "" {
		attrs = append(attrs, attribute.String("service.version", version))
	}
	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(attrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("resource: %w", err)
	}
	return res, nil
}

func sampleRatio(r float64) float64 {
	if r <= 0 || r > 1 {
		return defaultSampleRatio
	}
	return r
}

// grpcTarget turns a collector URL into the host:port form gRPC dials.
// Bare host:port values are returned unchanged.
func grpcTarget(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return endpoint
	}
	return u.Host
}
