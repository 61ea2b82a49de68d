package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/flicky/coffeeshop/internal/model"
)

const kafkaRetryBackoff = time.Second

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads order lifecycle events from a topic as part of a consumer group.
// Kafka has no dead-letter queue here: poison messages are logged and committed.
type KafkaConsumer struct {
	reader   messageReader
	notifier *Notifier
	log      *slog.Logger
	stopped  chan struct{}
}

func NewKafkaConsumer(brokers []string, topic, groupID string, notifier *Notifier, log *slog.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
	return newKafkaConsumer(reader, notifier, log)
}

func newKafkaConsumer(reader messageReader, notifier *Notifier, log *slog.Logger) *KafkaConsumer {
	return &KafkaConsumer{reader: reader, notifier: notifier, log: log, stopped: make(chan struct{})}
}

// Start consumes until ctx is cancelled.
func (k *KafkaConsumer) Start(ctx context.Context) {
	go k.run(ctx)
	k.log.Info("kafka event consumer started")
}

// Wait blocks until the consume loop has exited and closes the reader.
func (k *KafkaConsumer) Wait() error {
	<-k.stopped
	return k.reader.Close()
}

func (k *KafkaConsumer) run(ctx context.Context) {
	defer close(k.stopped)
	for {
		msg, err := k.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				k.log.Error("fetch kafka message", "error", err)
			}
			return
		}
		if !k.handle(ctx, msg) {
			return
		}
		if err := k.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			k.log.Error("commit kafka message", "error", err, "offset", msg.Offset)
		}
	}
}

// handle processes one message, retrying transient failures until ctx ends.
// It reports false when ctx ended before the message was settled.
func (k *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) bool {
	var event model.OrderEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		k.log.Error("unmarshal order event", "error", err, "offset", msg.Offset)
		return true
	}
	for {
		err := k.notifier.Handle(ctx, event)
		if err == nil {
			return true
		}
		if !errors.Is(err, errTransient) {
			k.log.Error("handle order event, skipping", "error", err, "event_id", event.EventID.String())
			return true
		}
		k.log.Warn("handle order event, retrying", "error", err, "event_id", event.EventID.String())
		select {
		case <-ctx.Done():
			return false
		case <-time.After(kafkaRetryBackoff):
		}
	}
}
