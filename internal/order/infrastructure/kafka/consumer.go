package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/emekauja/shopflow/internal/order/application"
	"github.com/emekauja/shopflow/internal/order/domain"
	"github.com/emekauja/shopflow/pkg/idempotency"
	"github.com/emekauja/shopflow/pkg/tracing"
)

// paymentEvent is the shape the payment gateway's webhook bridge publishes.
type paymentEvent struct {
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	Reference string `json:"reference"`
}

// Consumer applies payment-gateway callbacks to orders, deduplicating
// redelivered messages through the idempotency store.
type Consumer struct {
	log    *slog.Logger
	reader *kafka.Reader
	svc    *application.Service
	idem   *idempotency.Store
	tracer trace.Tracer
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, svc *application.Service, idem *idempotency.Store) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return &Consumer{
		log:    log,
		reader: r,
		svc:    svc,
		idem:   idem,
		tracer: otel.Tracer("payment-consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			return err
		}
		key := c.idem.MessageKey(msg.Topic, msg.Partition, msg.Offset)
		seen, err := c.idem.Seen(ctx, key)
		if err != nil {
			c.log.Error("idempotency check failed", "err", err)
			continue
		}
		if seen {
			c.log.Info("duplicate message skipped", "key", key)
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
		msgCtx, span := c.tracer.Start(msgCtx, "ConsumePaymentEvent")

		var ev paymentEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			c.log.Error("unmarshal failed", "err", err)
			span.End()
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		if _, err := c.svc.UpdatePaymentStatus(msgCtx, ev.OrderID, domain.PaymentStatus(ev.Status)); err != nil {
			c.log.Error("payment status apply failed", "order_id", ev.OrderID, "status", ev.Status, "err", err)
		} else {
			c.log.Info("payment status applied", "order_id", ev.OrderID, "status", ev.Status, "reference", ev.Reference)
		}
		span.End()
		_ = c.reader.CommitMessages(ctx, msg)
	}
}
