package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/pchaiwong/shophub-orders/internal/domain/order"
)

var _ order.Notifier = (*LogNotifier)(nil)

// LogNotifier records order events in the application log. Used when no
// broker is configured.
type LogNotifier struct {
	lg *zap.Logger
}

// NewLogNotifier creates a notifier that only logs.
func NewLogNotifier(lg *zap.Logger) *LogNotifier {
	return &LogNotifier{lg: lg}
}

func (n *LogNotifier) OrderCreated(_ context.Context, o *order.Order) {
	n.lg.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.Number),
		zap.String("user_id", o.UserID),
		zap.String("total", o.Total.String()),
	)
}

func (n *LogNotifier) OrderStatusChanged(_ context.Context, o *order.Order, from order.Status, note string) {
	n.lg.Info("order status changed",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.Number),
		zap.String("from", string(from)),
		zap.String("to", string(o.Status)),
		zap.String("note", note),
	)
}
