package service

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"atstore-api/internal/cache"
	"atstore-api/internal/metrics"
	"atstore-api/internal/model"
	"atstore-api/internal/notify"
	"atstore-api/pkg/apierror"
)

const apiKeyScheme = "Apikey "

// FulfillmentConfig holds webhook authentication and narrative matching settings.
type FulfillmentConfig struct {
	WebhookAPIKey      string
	ProtocolTag        string
	SubAccountTag      string
	CheckoutCodePrefix string
	DeliveryTimeout    time.Duration
	LockTTL            time.Duration
}

// PaymentNotification is the parsed webhook body.
type PaymentNotification struct {
	Content        string
	TransferAmount int64
}

// WebhookResult is the webhook response body.
type WebhookResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	OrderID string `json:"orderId,omitempty"`
}

// FulfillmentService turns a verified payment notification into a paid
// order with exactly one reserved inventory item, then delivers it.
type FulfillmentService struct {
	cfg         FulfillmentConfig
	codePattern *regexp.Regexp
	orders      *OrderService
	inventory   *InventoryService
	locker      cache.Locker
	notifier    notify.Notifier
	metrics     *metrics.Metrics
	logger      *zap.Logger
	tracer      trace.Tracer
}

// NewFulfillmentService creates a new fulfillment service.
func NewFulfillmentService(
	cfg FulfillmentConfig,
	orders *OrderService,
	inventory *InventoryService,
	locker cache.Locker,
	notifier notify.Notifier,
	m *metrics.Metrics,
	logger *zap.Logger,
) *FulfillmentService {
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = 15 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	cfg.ProtocolTag = strings.ToUpper(cfg.ProtocolTag)
	cfg.SubAccountTag = strings.ToUpper(cfg.SubAccountTag)
	cfg.CheckoutCodePrefix = strings.ToUpper(cfg.CheckoutCodePrefix)

	return &FulfillmentService{
		cfg:         cfg,
		codePattern: regexp.MustCompile(regexp.QuoteMeta(cfg.CheckoutCodePrefix) + `(\d{6})(?:\D|$)`),
		orders:      orders,
		inventory:   inventory,
		locker:      locker,
		notifier:    notifier,
		metrics:     m,
		logger:      logger.Named("fulfillment"),
		tracer:      otel.Tracer("atstore-api/fulfillment"),
	}
}

// Authenticate checks an "Apikey <secret>" Authorization header.
func (s *FulfillmentService) Authenticate(header string) error {
	secret, ok := strings.CutPrefix(strings.TrimSpace(header), apiKeyScheme)
	if !ok || secret == "" {
		return apierror.Unauthorized("Missing or malformed API key")
	}
	if subtle.ConstantTimeCompare([]byte(secret), []byte(s.cfg.WebhookAPIKey)) != 1 {
		return apierror.Unauthorized("Invalid API key")
	}
	return nil
}

// ParsePaymentNotification decodes the webhook body. A missing or non-numeric
// amount parses as zero and is rejected later.
func ParsePaymentNotification(body []byte) (*PaymentNotification, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, apierror.ValidationError("Invalid JSON body")
	}

	content, ok := raw["content"].(string)
	if !ok {
		return nil, fieldError("content", "content must be a string")
	}

	n := &PaymentNotification{Content: content}
	if num, ok := raw["transferAmount"].(json.Number); ok {
		if v, err := num.Int64(); err == nil {
			n.TransferAmount = v
		} else if f, err := num.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) < math.MaxInt64 {
			n.TransferAmount = int64(f)
		}
	}
	return n, nil
}

// ExtractCheckoutCode normalizes a payment narrative, requires both bank
// tags and returns the checkout code it carries.
func (s *FulfillmentService) ExtractCheckoutCode(content string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(content))
	if !strings.Contains(normalized, s.cfg.ProtocolTag) || !strings.Contains(normalized, s.cfg.SubAccountTag) {
		return "", fieldError("content", "payment content is missing the required tags")
	}

	stripped := strings.ReplaceAll(normalized, s.cfg.ProtocolTag, " ")
	stripped = strings.ReplaceAll(stripped, s.cfg.SubAccountTag, " ")

	m := s.codePattern.FindStringSubmatch(stripped)
	if m == nil {
		return "", fieldError("content", "no checkout code found in payment content")
	}
	return s.cfg.CheckoutCodePrefix + m[1], nil
}

// HandleWebhook runs the whole payment flow for one notification. Errors are
// *apierror.Error values; on success the order is paid and exactly one item
// is sold.
func (s *FulfillmentService) HandleWebhook(ctx context.Context, authHeader string, body []byte) (*WebhookResult, error) {
	ctx, span := s.tracer.Start(ctx, "fulfillment.HandleWebhook")
	defer span.End()

	result, err := s.handle(ctx, span, authHeader, body)
	outcome := "success"
	if err != nil {
		outcome = "error"
		if apiErr, ok := apierror.As(err); ok {
			outcome = strings.ToLower(apiErr.Code)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	s.metrics.WebhookHandled(outcome)
	return result, err
}

func (s *FulfillmentService) handle(ctx context.Context, span trace.Span, authHeader string, body []byte) (*WebhookResult, error) {
	if err := s.Authenticate(authHeader); err != nil {
		s.logger.Warn("webhook rejected: bad api key")
		return nil, err
	}

	n, err := ParsePaymentNotification(body)
	if err != nil {
		return nil, err
	}

	code, err := s.ExtractCheckoutCode(n.Content)
	if err != nil {
		s.logger.Info("webhook ignored: no checkout code", zap.String("content", n.Content))
		return nil, err
	}
	span.SetAttributes(attribute.String("checkout.code", code))

	if n.TransferAmount <= 0 {
		return nil, fieldError("transferAmount", "transferAmount must be greater than zero")
	}

	order, reservation, err := s.settle(ctx, code, n.TransferAmount)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", order.OrderID))

	s.deliver(ctx, order, reservation)

	s.logger.Info("payment fulfilled",
		zap.String("order_id", order.OrderID),
		zap.String("checkout_code", code),
		zap.Int64("paid_amount", n.TransferAmount))
	return &WebhookResult{Success: true, Message: "Payment confirmed", OrderID: order.OrderID}, nil
}

// settle reserves an item and marks the order paid while holding the
// checkout-code lock. Either both writes persist or neither does.
func (s *FulfillmentService) settle(ctx context.Context, code string, amount int64) (*model.Order, *Reservation, error) {
	unlock, err := s.locker.Lock(ctx, "checkout:"+code, s.cfg.LockTTL)
	if err != nil {
		return nil, nil, apierror.ServiceUnavailable("Unable to lock order for settlement").WithCause(err)
	}
	defer unlock()

	order, err := s.orders.FindPendingByCheckoutCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}

	if amount < order.TotalPrice {
		s.logger.Warn("underpayment",
			zap.String("order_id", order.OrderID),
			zap.Int64("paid_amount", amount),
			zap.Int64("total_price", order.TotalPrice))
		return nil, nil, apierror.Underpayment(
			fmt.Sprintf("Transferred amount %d is less than the order total %d", amount, order.TotalPrice))
	}

	reservation, err := s.inventory.ReserveOldestAvailable(ctx, order.AccountID, order.CategoryName)
	if err != nil {
		return nil, nil, err
	}
	if reservation == nil {
		s.metrics.UnfulfilledPayment()
		s.logger.Error("payment received but no inventory available, order held for reconciliation",
			zap.String("order_id", order.OrderID),
			zap.String("checkout_code", code),
			zap.String("listing_id", order.AccountID),
			zap.String("category", order.CategoryName),
			zap.Int64("paid_amount", amount))
		return nil, nil, apierror.OutOfStock("Payment received but no account is available; the order is held for manual review")
	}

	if err := s.orders.MarkPaid(ctx, order.OrderID, amount); err != nil {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if relErr := s.inventory.Release(releaseCtx, reservation); relErr != nil {
			s.logger.Error("failed to release reservation after settlement failure",
				zap.String("order_id", order.OrderID),
				zap.String("item_id", reservation.ItemID),
				zap.Error(relErr))
		}
		return nil, nil, err
	}

	order.Status = model.OrderPaid
	return order, reservation, nil
}

// deliver hands the credential to the notifier. Failures are logged only:
// the order stays paid.
func (s *FulfillmentService) deliver(ctx context.Context, order *model.Order, r *Reservation) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.DeliveryTimeout)
	defer cancel()

	err := s.notifier.SendDelivery(ctx, notify.Delivery{
		Email:        order.Email,
		OrderID:      order.OrderID,
		ProductLabel: fmt.Sprintf("%s / %s / %s", order.Game, order.AccountType, order.CategoryName),
		Credential:   r.Credential,
	})
	if err != nil {
		s.logger.Error("delivery failed, order remains paid",
			zap.String("order_id", order.OrderID),
			zap.Error(err))
	}
}
