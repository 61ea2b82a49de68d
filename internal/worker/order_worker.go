package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/flicky/coffeeshop/internal/model"
)

const (
	dlxExchange = "orders.dlx"
	dlqSuffix   = ".dlq"
)

// OrderWorker consumes order lifecycle events from RabbitMQ.
type OrderWorker struct {
	channel  *amqp.Channel
	queue    string
	notifier *Notifier
	log      *slog.Logger
	done     chan struct{}
	stopped  chan struct{}
}

func NewOrderWorker(ch *amqp.Channel, queue string, notifier *Notifier, log *slog.Logger) *OrderWorker {
	return &OrderWorker{
		channel:  ch,
		queue:    queue,
		notifier: notifier,
		log:      log,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
}

// SetupRabbitMQ declares the event queue with a dead-letter exchange and queue.
func SetupRabbitMQ(ch *amqp.Channel, queue string) error {
	dlq := queue + dlqSuffix
	if err := ch.ExchangeDeclare(dlxExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(dlq, queue, dlxExchange, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    dlxExchange,
		"x-dead-letter-routing-key": queue,
	}); err != nil {
		return fmt.Errorf("declare event queue: %w", err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}
	return nil
}

func (w *OrderWorker) Start(ctx context.Context) error {
	msgs, err := w.channel.Consume(w.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	go w.run(ctx, msgs)
	w.log.Info("order event worker started", "queue", w.queue)
	return nil
}

// Stop ends the consume loop and waits for the message in hand to finish.
func (w *OrderWorker) Stop() {
	close(w.done)
	<-w.stopped
}

func (w *OrderWorker) run(ctx context.Context, msgs <-chan amqp.Delivery) {
	defer close(w.stopped)
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			w.processMessage(ctx, msg)
		case <-w.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *OrderWorker) processMessage(ctx context.Context, msg amqp.Delivery) {
	var event model.OrderEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		w.log.Error("unmarshal order event", "error", err, "message_id", msg.MessageId)
		_ = msg.Nack(false, false) // to DLQ
		return
	}

	if err := w.notifier.Handle(ctx, event); err != nil {
		log := w.log.With("event_id", event.EventID.String(), "order_id", event.OrderID.String())
		if errors.Is(err, errTransient) && !msg.Redelivered {
			log.Warn("handle order event, requeueing", "error", err)
			_ = msg.Nack(false, true)
			return
		}
		log.Error("handle order event", "error", err)
		_ = msg.Nack(false, false) // to DLQ
		return
	}
	_ = msg.Ack(false)
}
