// Package observability provides OpenTelemetry tracing and metrics for
// gatosd.
//
// # Tracing
//
// Initialize the provider at application startup:
//
//	p, err := observability.New(ctx, observability.DefaultConfig())
//	defer p.Shutdown(ctx)
//
// Create spans manually:
//
//	ctx, span := p.StartSpan(ctx, "journal.append")
//	defer span.End()
//
// # Metrics
//
// Wrap the provider's meter as a ports.Metrics implementation:
//
//	metrics := observability.NewMetricsAdapter(p)
//	metrics.IncrCounter("gatos_journal_append_total", map[string]string{"namespace": ns})
package observability
