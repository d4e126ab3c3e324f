package events

import (
	"context"
	"log/slog"

	"github.com/johnthebelovedcoder/contralock/internal/contracts"
)

// LoggingPublisher writes events to the structured log instead of a broker.
// It is the fallback when no broker URL is configured, so local runs still
// show the full event stream.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) PublishDomain(ctx context.Context, event contracts.EventEnvelope) error {
	p.logger.InfoContext(ctx, "domain event published",
		"module", "events",
		"layer", "adapter",
		"operation", "publish_domain",
		"outcome", "success",
		"event_id", event.EventID,
		"event_type", event.EventType,
		"partition_key", event.PartitionKey,
		"trace_id", event.TraceID,
	)
	return nil
}

func (p *LoggingPublisher) PublishAnalytics(ctx context.Context, event contracts.EventEnvelope) error {
	p.logger.InfoContext(ctx, "analytics event published",
		"module", "events",
		"layer", "adapter",
		"operation", "publish_analytics",
		"outcome", "success",
		"event_id", event.EventID,
		"event_type", event.EventType,
	)
	return nil
}

func (p *LoggingPublisher) PublishDLQ(ctx context.Context, record contracts.DLQRecord) error {
	p.logger.ErrorContext(ctx, "event routed to dead letter queue",
		"module", "events",
		"layer", "adapter",
		"operation", "publish_dlq",
		"outcome", "failure",
		"event_id", record.OriginalEvent.EventID,
		"event_type", record.OriginalEvent.EventType,
		"error_summary", record.ErrorSummary,
		"retry_count", record.RetryCount,
	)
	return nil
}
