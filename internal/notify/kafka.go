// Package notify provides best-effort publishers for order lifecycle events.
// Delivery failures are logged and swallowed: the order state in PostgreSQL is
// the source of truth, and a lost event never fails the originating request.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/pchaiwong/shophub-orders/internal/domain/order"
)

// Event types carried in the envelope.
const (
	EventOrderCreated       = "OrderCreated"
	EventOrderStatusChanged = "OrderStatusChanged"
)

// Envelope wraps every published event with routing metadata.
type Envelope struct {
	EventID      string          `json:"event_id"`
	EventType    string          `json:"event_type"`
	EventVersion int             `json:"event_version"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Producer     string          `json:"producer"`
	Payload      json.RawMessage `json:"payload"`
}

// OrderCreatedPayload describes a freshly placed order.
type OrderCreatedPayload struct {
	OrderID     string  `json:"order_id"`
	OrderNumber string  `json:"order_number"`
	UserID      string  `json:"user_id"`
	Status      string  `json:"status"`
	Total       float64 `json:"total"`
}

// StatusChangedPayload describes a status transition on an existing order.
type StatusChangedPayload struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	From        string `json:"from"`
	To          string `json:"to"`
	Note        string `json:"note,omitempty"`
}

const publishTimeout = 5 * time.Second

var _ order.Notifier = (*KafkaNotifier)(nil)

// KafkaNotifier publishes order events to a Kafka topic, keyed by order id so
// all events of one order stay in partition order.
type KafkaNotifier struct {
	writer   *kafka.Writer
	producer string
	lg       *zap.Logger
}

// NewKafkaNotifier creates a notifier writing to the given brokers and topic.
func NewKafkaNotifier(brokers []string, topic, producer string, lg *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 50 * time.Millisecond,
		},
		producer: producer,
		lg:       lg,
	}
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

// OrderCreated publishes an OrderCreated event.
func (n *KafkaNotifier) OrderCreated(ctx context.Context, o *order.Order) {
	n.publish(ctx, o.ID, EventOrderCreated, OrderCreatedPayload{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		UserID:      o.UserID,
		Status:      string(o.Status),
		Total:       o.Total.InexactFloat64(),
	})
}

// OrderStatusChanged publishes an OrderStatusChanged event.
func (n *KafkaNotifier) OrderStatusChanged(ctx context.Context, o *order.Order, from order.Status, note string) {
	n.publish(ctx, o.ID, EventOrderStatusChanged, StatusChangedPayload{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		From:        string(from),
		To:          string(o.Status),
		Note:        note,
	})
}

func (n *KafkaNotifier) publish(ctx context.Context, orderID, eventType string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.lg.Error("marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	msg, err := json.Marshal(Envelope{
		EventID:      uuid.New().String(),
		EventType:    eventType,
		EventVersion: 1,
		OccurredAt:   time.Now().UTC(),
		Producer:     n.producer,
		Payload:      body,
	})
	if err != nil {
		n.lg.Error("marshal event envelope", zap.String("event_type", eventType), zap.Error(err))
		return
	}

	// Detach from the request context deadline but keep a bound of our own;
	// the caller does not wait on delivery guarantees.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err = n.writer.WriteMessages(pubCtx, kafka.Message{
		Key:   []byte(orderID),
		Value: msg,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(eventType)},
			{Key: "x-event-version", Value: []byte("1")},
		},
	})
	if err != nil {
		n.lg.Warn("publish order event",
			zap.String("event_type", eventType),
			zap.String("order_id", orderID),
			zap.Error(err),
		)
	}
}
