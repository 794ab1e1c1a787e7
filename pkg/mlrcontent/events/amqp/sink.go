// Package amqp publishes content lifecycle events to a RabbitMQ topic exchange.
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tendant/mlr-content/pkg/mlrcontent"
)

// Routing keys
const (
	KeyContentCreated       = "content.created"
	KeyContentVersionAdded  = "content.version_added"
	KeyContentStatusChanged = "content.status_changed"
	KeyContentDeleted       = "content.deleted"
	KeyFeedbackRecorded     = "review.feedback_recorded"
)

// DefaultExchange is used when no exchange name is configured.
const DefaultExchange = "mlr.content"

// Publisher is the subset of *amqp.Channel the sink needs.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Envelope is the JSON body of every published message.
type Envelope struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data"`
}

// Sink implements mlrcontent.EventSink
type Sink struct {
	publisher Publisher
	exchange  string
	now       func() time.Time
}

var _ mlrcontent.EventSink = (*Sink)(nil)

// NewSink publishes to exchange through publisher.
func NewSink(publisher Publisher, exchange string) *Sink {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Sink{publisher: publisher, exchange: exchange, now: func() time.Time { return time.Now().UTC() }}
}

// Dial connects to url, opens a channel and declares a durable topic exchange.
// The returned close function closes the channel and the connection.
func Dial(url, exchange string) (*Sink, func() error, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, nil, fmt.Errorf("declare exchange: %w", err)
	}
	closeFn := func() error {
		if err := ch.Close(); err != nil {
			_ = conn.Close()
			return err
		}
		return conn.Close()
	}
	return NewSink(ch, exchange), closeFn, nil
}

type statusChange struct {
	*mlrcontent.ContentItem
	From mlrcontent.ContentStatus `json:"from"`
}

type versionAdded struct {
	ContentID    uuid.UUID                `json:"contentId"`
	Sequence     int                      `json:"sequence"`
	ChangeSource mlrcontent.ChangeSource  `json:"changeSource"`
	ChangeNotes  string                   `json:"changeNotes,omitempty"`
	Status       mlrcontent.ContentStatus `json:"status"`
}

type feedbackRecorded struct {
	*mlrcontent.ReviewFeedback
	Event string `json:"event"`
}

func (s *Sink) ContentCreated(ctx context.Context, item *mlrcontent.ContentItem) error {
	return s.publish(ctx, KeyContentCreated, item)
}

func (s *Sink) ContentVersionAdded(ctx context.Context, item *mlrcontent.ContentItem, version *mlrcontent.ContentVersion) error {
	return s.publish(ctx, KeyContentVersionAdded, versionAdded{
		ContentID:    item.ID,
		Sequence:     version.Sequence,
		ChangeSource: version.ChangeSource,
		ChangeNotes:  version.ChangeNotes,
		Status:       item.Status,
	})
}

func (s *Sink) ContentStatusChanged(ctx context.Context, item *mlrcontent.ContentItem, from mlrcontent.ContentStatus) error {
	return s.publish(ctx, KeyContentStatusChanged, statusChange{ContentItem: item, From: from})
}

func (s *Sink) ContentDeleted(ctx context.Context, id uuid.UUID) error {
	return s.publish(ctx, KeyContentDeleted, map[string]uuid.UUID{"id": id})
}

func (s *Sink) FeedbackRecorded(ctx context.Context, feedback *mlrcontent.ReviewFeedback, event string) error {
	return s.publish(ctx, KeyFeedbackRecorded, feedbackRecorded{ReviewFeedback: feedback, Event: event})
}

func (s *Sink) publish(ctx context.Context, key string, data any) error {
	env := Envelope{ID: uuid.New(), Type: key, OccurredAt: s.now(), Data: data}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", key, err)
	}
	return s.publisher.PublishWithContext(ctx, s.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    env.ID.String(),
		Timestamp:    env.OccurredAt,
		Type:         key,
		Body:         body,
	})
}
