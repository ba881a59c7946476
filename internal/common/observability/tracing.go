package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type tracing struct {
	provider *sdktrace.TracerProvider
}

func newTracing(serviceName, endpoint string) (*tracing, error) {
	var opts []jaeger.CollectorEndpointOption
	if endpoint != "" {
		opts = append(opts, jaeger.WithEndpoint(endpoint))
	}
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(opts...))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", serviceName),
		)),
	)
	otel.SetTracerProvider(provider)

	return &tracing{provider: provider}, nil
}
