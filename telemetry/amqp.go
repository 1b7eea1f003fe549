package telemetry

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPEmitter publishes JSON points to a topic exchange with routing key
// `<meter>.<measurement>`.
type AMQPEmitter struct {
	conn *amqp.Connection
	ch *amqp.Channel
	exchange string
}

func NewAMQPEmitter(url, exchange string) (*AMQPEmitter, error) {
	conn, err := amqp.Dial(url)

	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}

	ch, err := conn.Channel()

	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,
	)

	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
	}

	return &AMQPEmitter{conn: conn, ch: ch, exchange: exchange}, nil
}

func RoutingKey(p Point) string {
	return p.Meter + "." + p.Measurement
}

func (e *AMQPEmitter) Emit(ctx context.Context, p Point) error {
	return e.ch.PublishWithContext(ctx, e.exchange, RoutingKey(p), false, false, amqp.Publishing{
		ContentType: "application/json",
		Timestamp:   p.Time,
		Body:        FormatJSON.Encode(p),
	})
}

func (e *AMQPEmitter) Close() error {
	e.ch.Close()
	return e.conn.Close()
}
