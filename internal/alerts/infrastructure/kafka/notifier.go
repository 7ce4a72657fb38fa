package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/emekauja/shopflow/internal/alerts/application"
	"github.com/emekauja/shopflow/pkg/tracing"
)

// Notifier publishes stock alerts to the notification subsystem's topic. The
// email/templating side lives behind that topic and is not this service's
// concern.
type Notifier struct {
	log    *slog.Logger
	writer *kafka.Writer
}

func NewNotifier(log *slog.Logger, brokers []string, topic string) *Notifier {
	return &Notifier{
		log: log,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

type envelope struct {
	Kind    application.NotificationKind `json:"kind"`
	Payload any                          `json:"payload"`
	At      time.Time                    `json:"at"`
}

func (n *Notifier) Notify(ctx context.Context, kind application.NotificationKind, payload any) error {
	value, err := json.Marshal(envelope{Kind: kind, Payload: payload, At: time.Now().UTC()})
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:     []byte(kind),
		Value:   value,
		Headers: tracing.InjectKafkaHeaders(ctx, nil),
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		n.log.Error("alert publish failed", "kind", kind, "err", err)
		return err
	}
	return nil
}

func (n *Notifier) Close() error {
	return n.writer.Close()
}
