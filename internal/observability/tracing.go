package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const TracerName = "github.com/danmuck/mrcplink/client"

// Tracer returns the client tracer from the global provider. Without a
// configured provider spans are no-ops.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
