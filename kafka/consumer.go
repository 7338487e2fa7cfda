package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/faithboy007/world-conquest-veterinary-home/models"
	"github.com/faithboy007/world-conquest-veterinary-home/payment"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

func InitConsumer(brokers []string, logger *zap.Logger) (sarama.Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	logger.Info("Kafka consumer initialized", zap.Strings("brokers", brokers))
	return consumer, nil
}

// StartConsumer feeds payment results published by the payment backend into
// the pending widget callbacks until ctx is done.
func StartConsumer(ctx context.Context, consumer sarama.Consumer, topic string, pending *payment.Pending, logger *zap.Logger) error {
	partitionConsumer, err := consumer.ConsumePartition(topic, 0, sarama.OffsetNewest)
	if err != nil {
		return fmt.Errorf("failed to consume partition: %w", err)
	}
	defer partitionConsumer.Close()

	logger.Info("Kafka consumer started", zap.String("topic", topic))

	for {
		select {
		case <-ctx.Done():
			logger.Info("Kafka consumer stopped", zap.String("topic", topic))
			return nil
		case message, ok := <-partitionConsumer.Messages():
			if !ok {
				return nil
			}
			if err := handleMessage(message, pending, logger); err != nil {
				logger.Error("Failed to handle message", zap.Error(err))
			}
		case err, ok := <-partitionConsumer.Errors():
			if !ok {
				return nil
			}
			logger.Error("Kafka consumer error", zap.Error(err))
		}
	}
}

func handleMessage(message *sarama.ConsumerMessage, pending *payment.Pending, logger *zap.Logger) error {
	// Extract trace context from Kafka message headers
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), saramaHeaderCarrierConsumer(message.Headers))
	_, span := otel.Tracer("checkout-service").Start(ctx, "ProcessPaymentEvent")
	defer span.End()

	var event models.PaymentEvent
	if err := json.Unmarshal(message.Value, &event); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	span.SetAttributes(
		attribute.String("event.type", event.EventType),
		attribute.String("payment.reference", event.Reference),
	)

	var err error
	switch event.EventType {
	case models.EventPaymentSuccess:
		err = pending.Succeed(payment.Confirmation{Reference: event.Reference, Status: event.Status})
	case models.EventPaymentCancelled:
		err = pending.Cancel(event.Reference)
	default:
		return nil
	}

	// References opened by another instance land here too.
	if errors.Is(err, payment.ErrUnknownReference) {
		logger.Debug("Ignoring payment event for unknown reference",
			zap.String("event_type", event.EventType),
			zap.String("reference", event.Reference),
		)
		return nil
	}
	if err != nil {
		span.RecordError(err)
		return err
	}

	logger.Info("Payment event applied",
		zap.String("event_type", event.EventType),
		zap.String("reference", event.Reference),
	)
	return nil
}

// saramaHeaderCarrierConsumer implements the TextMapCarrier interface for Kafka headers (for consumer)
type saramaHeaderCarrierConsumer []*sarama.RecordHeader

func (c saramaHeaderCarrierConsumer) Get(key string) string {
	for _, h := range c {
		if string(h.Key) == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c saramaHeaderCarrierConsumer) Set(key, value string) {}

func (c saramaHeaderCarrierConsumer) Keys() []string {
	keys := make([]string, len(c))
	for i, h := range c {
		keys[i] = string(h.Key)
	}
	return keys
}
