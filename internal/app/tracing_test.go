package app

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestInitTracing_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := initTracing(context.Background(), DefaultConfig(), log.WithField("test", "tracing"))
	if err != nil {
		t.Fatalf("initTracing: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown: %v", err)
	}
	if fields := otel.GetTextMapPropagator().Fields(); len(fields) == 0 {
		t.Fatal("propagator must be installed even without exporter")
	}
}

func TestInitTracing_WithEndpoint(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	cfg := DefaultConfig()
	cfg.OTLPEndpoint = "127.0.0.1:4318"

	shutdown, err := initTracing(context.Background(), cfg, log.WithField("test", "tracing"))
	if err != nil {
		t.Fatalf("initTracing: %v", err)
	}
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("expected sdk tracer provider, got %T", otel.GetTracerProvider())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
