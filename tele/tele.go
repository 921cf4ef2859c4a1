package tele

import (
	"context"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

// newResource describes the running service. Attributes from
// OTEL_RESOURCE_ATTRIBUTES are merged in.
func newResource(serviceName string) (*resource.Resource, error) {
	return resource.New(context.Background(),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
}
