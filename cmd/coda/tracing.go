package main

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/haasonsaas/coda/internal/config"
)

// setupTracing installs a process-wide TracerProvider when tracing is
// enabled in config, so internal/engine's spans are sampled and recorded
// instead of discarded by the no-op default. No exporter is wired yet —
// this is the SDK half of the scaffolding, ready for an OTLP exporter to
// be added to the resource's span processors once one is chosen.
// The returned shutdown func is always safe to defer-call, including when
// tracing is disabled.
func setupTracing(cfg config.TracingConfig) (shutdown func(context.Context) error, err error) {
	noop := func(context.Context) error { return nil }
	if !cfg.Enabled {
		return noop, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(attribute.String("service.name", cfg.ServiceName)),
	)
	if err != nil {
		return noop, err
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
