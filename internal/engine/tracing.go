package engine

import "go.opentelemetry.io/otel"

// tracer emits one span per Run() call. With no TracerProvider configured
// (the default), otel.Tracer returns a no-op implementation, so this is
// always safe to call even when tracing is disabled in config.
var tracer = otel.Tracer("github.com/haasonsaas/coda/internal/engine")
