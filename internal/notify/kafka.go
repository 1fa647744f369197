package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"atstore-api/internal/vault"
)

// MessageWriter is the subset of *kafka.Writer the notifier needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DeliveryEvent is the message published for a downstream mailer. The
// credential stays vault-encrypted on the wire.
type DeliveryEvent struct {
	OrderID           string    `json:"orderId"`
	Email             string    `json:"email"`
	ProductLabel      string    `json:"productLabel"`
	EncryptedUsername string    `json:"encryptedUsername"`
	EncryptedPassword string    `json:"encryptedPassword"`
	PaidAt            time.Time `json:"paidAt"`
}

// KafkaNotifier publishes delivery events keyed by order id.
type KafkaNotifier struct {
	writer MessageWriter
	vault  *vault.Vault
	logger *zap.Logger
}

// NewKafkaWriter creates a low-latency writer for the delivery topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}
}

// NewKafkaNotifier creates a notifier publishing through w.
func NewKafkaNotifier(w MessageWriter, v *vault.Vault, logger *zap.Logger) *KafkaNotifier {
	return &KafkaNotifier{writer: w, vault: v, logger: logger.Named("notify")}
}

func (n *KafkaNotifier) SendDelivery(ctx context.Context, d Delivery) error {
	enc, err := n.vault.EncryptCredential(d.Credential)
	if err != nil {
		return fmt.Errorf("failed to seal delivery credential: %w", err)
	}

	payload, err := json.Marshal(DeliveryEvent{
		OrderID:           d.OrderID,
		Email:             d.Email,
		ProductLabel:      d.ProductLabel,
		EncryptedUsername: enc.Username,
		EncryptedPassword: enc.Password,
		PaidAt:            time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to serialize delivery event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(d.OrderID),
		Value: payload,
	}
	if err := n.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish delivery event: %w", err)
	}

	n.logger.Info("delivery event published", zap.String("order_id", d.OrderID))
	return nil
}

// Close flushes and closes the underlying writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}

var _ Notifier = (*KafkaNotifier)(nil)
