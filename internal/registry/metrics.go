package registry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("assetsync.registry")
	meter  = otel.Meter("assetsync.registry")
)

var (
	resolveTotal  metric.Int64Counter
	resolveMisses metric.Int64Counter
	activeScopes  metric.Int64UpDownCounter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		resolveTotal, err = meter.Int64Counter(
			"registry_resolve_total",
			metric.WithDescription("Checksums requested from the registry"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		resolveMisses, err = meter.Int64Counter(
			"registry_resolve_misses_total",
			metric.WithDescription("Requested checksums that were not found"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		activeScopes, err = meter.Int64UpDownCounter(
			"registry_active_scopes",
			metric.WithDescription("Currently registered scopes"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordResolve(ctx context.Context, requested, missing int, scoped bool) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("scoped", scoped))
	resolveTotal.Add(ctx, int64(requested), attrs)
	if missing > 0 {
		resolveMisses.Add(ctx, int64(missing), attrs)
	}
}

func recordScopeDelta(delta int64) {
	if err := initMetrics(); err != nil {
		return
	}
	activeScopes.Add(context.Background(), delta)
}

func startResolveSpan(ctx context.Context, name string, h Handle, requested int) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(
			attribute.Int64("scope.handle", int64(h)),
			attribute.Int("resolve.requested", requested),
		),
	)
}
