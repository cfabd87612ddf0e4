package events

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// amqpChannel is the part of *amqp.Channel the sink uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink forwards bus events to a durable topic exchange, using the event type as routing key.
type AMQPSink struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
	logger   *zerolog.Logger
}

func DialAMQPSink(url, exchange string, logger *zerolog.Logger) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	sink := newAMQPSink(ch, exchange, logger)
	sink.conn = conn
	return sink, nil
}

func newAMQPSink(ch amqpChannel, exchange string, logger *zerolog.Logger) *AMQPSink {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "amqp_sink").Logger()
	return &AMQPSink{ch: ch, exchange: exchange, logger: &l}
}

// Handle is an EventHandler. Publish failures are logged and returned; the bus ignores them.
func (s *AMQPSink) Handle(event *Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err := s.ch.PublishWithContext(ctx, s.exchange, event.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.CreatedAt,
		Type:         event.Type,
		Body:         event.Payload,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", event.Type).Msg("failed to publish event")
		return err
	}
	return nil
}

// Attach subscribes the sink to every event on the bus.
func (s *AMQPSink) Attach(bus *EventBus) {
	bus.SubscribeAll(s.Handle)
}

func (s *AMQPSink) Close() error {
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
