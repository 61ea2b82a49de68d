package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flicky/coffeeshop/internal/model"
)

const idempotencyTTL = 24 * time.Hour

// errTransient marks failures worth retrying later, as opposed to poison messages.
var errTransient = errors.New("transient failure")

// Messenger delivers a text message to a phone number.
type Messenger interface {
	Send(ctx context.Context, phone, text string) error
}

// LogMessenger only logs what would have been sent.
type LogMessenger struct {
	Log *slog.Logger
}

func (m LogMessenger) Send(ctx context.Context, phone, text string) error {
	m.Log.InfoContext(ctx, "sms", "phone", phone, "text", text)
	return nil
}

// Notifier turns order lifecycle events into text messages. Each event is
// delivered at most once per idempotency window when Redis is available.
type Notifier struct {
	messenger   Messenger
	redisClient *redis.Client
	log         *slog.Logger
}

func NewNotifier(messenger Messenger, redisClient *redis.Client, log *slog.Logger) *Notifier {
	return &Notifier{messenger: messenger, redisClient: redisClient, log: log}
}

func (n *Notifier) Handle(ctx context.Context, event model.OrderEvent) error {
	log := n.log.With("event_id", event.EventID.String(), "order_id", event.OrderID.String(), "type", event.Type)

	key := "order_event:" + event.EventID.String()
	if n.redisClient != nil {
		exists, err := n.redisClient.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("check idempotency key: %w: %w", errTransient, err)
		}
		if exists > 0 {
			log.Info("event already handled, skipping")
			return nil
		}
	}

	text, ok := messageText(event)
	if !ok {
		return fmt.Errorf("unknown event type %q", event.Type)
	}
	if event.Phone == "" {
		log.Info("no phone number on order, nothing to send")
	} else if err := n.messenger.Send(ctx, event.Phone, text); err != nil {
		return fmt.Errorf("send message: %w: %w", errTransient, err)
	}

	if n.redisClient != nil {
		if err := n.redisClient.Set(ctx, key, "1", idempotencyTTL).Err(); err != nil {
			log.Error("set idempotency key", "error", err)
		}
	}
	log.Info("event handled")
	return nil
}

func messageText(e model.OrderEvent) (string, bool) {
	short := e.OrderID.String()[:8]
	switch e.Type {
	case model.EventOrderCreated:
		return fmt.Sprintf("سفارش %s ثبت شد. مبلغ قابل پرداخت: %d تومان", short, e.Total), true
	case model.EventOrderStatusChanged:
		return fmt.Sprintf("وضعیت سفارش %s به «%s» تغییر کرد", short, e.NewStatus.Label()), true
	case model.EventOrderExpired:
		return fmt.Sprintf("مهلت پرداخت سفارش %s به پایان رسید و سفارش لغو شد", short), true
	}
	return "", false
}
