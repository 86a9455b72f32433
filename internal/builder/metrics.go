package builder

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/assetsync/internal/kind"
)

var (
	tracer = otel.Tracer("assetsync.builder")
	meter  = otel.Meter("assetsync.builder")
)

var (
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		cacheHits, err = meter.Int64Counter(
			"builder_cache_hits_total",
			metric.WithDescription("Nodes served from the identity cache"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheMisses, err = meter.Int64Counter(
			"builder_cache_misses_total",
			metric.WithDescription("Nodes built because no cached node existed"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordCacheHit(ctx context.Context, k kind.Kind) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", k.String())))
}

func recordCacheMiss(ctx context.Context, k kind.Kind) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", k.String())))
}

func startBuildSpan(ctx context.Context, solution string, projects int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Builder.Build",
		trace.WithAttributes(
			attribute.String("solution.id", solution),
			attribute.Int("solution.projects", projects),
		),
	)
}
