package notify

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes deliveries to the log with the credential masked.
// Used in development and when no broker is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

func (n *LogNotifier) SendDelivery(ctx context.Context, d Delivery) error {
	n.logger.Info("delivery ready",
		zap.String("order_id", d.OrderID),
		zap.String("email", d.Email),
		zap.String("product", d.ProductLabel),
		zap.String("username", mask(d.Credential.Username)))
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
