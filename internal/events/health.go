package events

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
)

var ErrConnectionClosed = errors.New("broker connection closed")

// AMQPCheck reports whether the RabbitMQ connection is still open.
type AMQPCheck struct {
	Conn *amqp.Connection
}

func (c AMQPCheck) Ping(context.Context) error {
	if c.Conn == nil || c.Conn.IsClosed() {
		return ErrConnectionClosed
	}
	return nil
}

// KafkaCheck dials the first reachable broker.
type KafkaCheck struct {
	Brokers []string
}

func (c KafkaCheck) Ping(ctx context.Context) error {
	var lastErr error = ErrConnectionClosed
	for _, broker := range c.Brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = fmt.Errorf("dial %s: %w", broker, err)
			continue
		}
		return conn.Close()
	}
	return lastErr
}
