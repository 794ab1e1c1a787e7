package mlrcontent

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) ContentCreated(ctx context.Context, item *ContentItem) error {
	return nil
}

func (n *NoopEventSink) ContentVersionAdded(ctx context.Context, item *ContentItem, version *ContentVersion) error {
	return nil
}

func (n *NoopEventSink) ContentStatusChanged(ctx context.Context, item *ContentItem, from ContentStatus) error {
	return nil
}

func (n *NoopEventSink) ContentDeleted(ctx context.Context, id uuid.UUID) error {
	return nil
}

func (n *NoopEventSink) FeedbackRecorded(ctx context.Context, feedback *ReviewFeedback, event string) error {
	return nil
}

// LogEventSink writes lifecycle events to a structured logger.
type LogEventSink struct {
	logger *slog.Logger
}

// NewLogEventSink creates an event sink that logs through logger, or slog.Default when nil.
func NewLogEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEventSink{logger: logger}
}

func (l *LogEventSink) ContentCreated(ctx context.Context, item *ContentItem) error {
	l.logger.InfoContext(ctx, "content created", "content_id", item.ID, "content_type", item.ContentType, "audience", item.Audience)
	return nil
}

func (l *LogEventSink) ContentVersionAdded(ctx context.Context, item *ContentItem, version *ContentVersion) error {
	l.logger.InfoContext(ctx, "content version added", "content_id", item.ID, "sequence", version.Sequence, "change_source", version.ChangeSource)
	return nil
}

func (l *LogEventSink) ContentStatusChanged(ctx context.Context, item *ContentItem, from ContentStatus) error {
	l.logger.InfoContext(ctx, "content status changed", "content_id", item.ID, "from", from, "to", item.Status, "proof_id", item.ExternalProofID)
	return nil
}

func (l *LogEventSink) ContentDeleted(ctx context.Context, id uuid.UUID) error {
	l.logger.InfoContext(ctx, "content deleted", "content_id", id)
	return nil
}

func (l *LogEventSink) FeedbackRecorded(ctx context.Context, feedback *ReviewFeedback, event string) error {
	l.logger.InfoContext(ctx, "review feedback recorded", "proof_id", feedback.ProofID, "event", event, "decision", feedback.Decision)
	return nil
}

// MultiEventSink fans events out to several sinks, returning the first error.
type MultiEventSink []EventSink

func (m MultiEventSink) ContentCreated(ctx context.Context, item *ContentItem) error {
	return m.each(func(s EventSink) error { return s.ContentCreated(ctx, item) })
}

func (m MultiEventSink) ContentVersionAdded(ctx context.Context, item *ContentItem, version *ContentVersion) error {
	return m.each(func(s EventSink) error { return s.ContentVersionAdded(ctx, item, version) })
}

func (m MultiEventSink) ContentStatusChanged(ctx context.Context, item *ContentItem, from ContentStatus) error {
	return m.each(func(s EventSink) error { return s.ContentStatusChanged(ctx, item, from) })
}

func (m MultiEventSink) ContentDeleted(ctx context.Context, id uuid.UUID) error {
	return m.each(func(s EventSink) error { return s.ContentDeleted(ctx, id) })
}

func (m MultiEventSink) FeedbackRecorded(ctx context.Context, feedback *ReviewFeedback, event string) error {
	return m.each(func(s EventSink) error { return s.FeedbackRecorded(ctx, feedback, event) })
}

func (m MultiEventSink) each(fn func(EventSink) error) error {
	var first error
	for _, s := range m {
		if err := fn(s); err != nil && first == nil {
			first = err
		}
	}
	return first
}
