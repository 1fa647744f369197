package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/mail"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"atstore-api/internal/metrics"
	"atstore-api/internal/model"
	"atstore-api/internal/repository"
	"atstore-api/pkg/apierror"
)

const (
	orderIDPrefix       = "ORD"
	maxGenerateAttempts = 10

	defaultPageLimit = 10
	maxPageLimit     = 100
)

// OrderConfig holds order creation settings.
type OrderConfig struct {
	TTL                time.Duration
	CheckoutCodePrefix string
	QRBaseURL          string
	AccountNo          string
	BankCode           string
}

// CreateOrderInput is a buyer's request to buy one item of a listing category.
type CreateOrderInput struct {
	AccountID    string `json:"accountId"`
	CategoryName string `json:"categoryName"`
	Quantity     int    `json:"quantity"`
	Email        string `json:"email"`
	UserID       string `json:"-"`
}

// ListOrdersFilter selects a page of paid orders.
type ListOrdersFilter struct {
	Page      int
	Limit     int
	Search    string
	StartDate *time.Time
	EndDate   *time.Time
}

// OrderPage is one page of orders plus pagination totals.
type OrderPage struct {
	Orders     []*model.Order `json:"orders"`
	Total      int64          `json:"total"`
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	TotalPages int            `json:"totalPages"`
}

// OrderService is the order ledger: creation with collision-checked
// identifiers, status changes and queries.
type OrderService struct {
	orders   repository.OrderRepository
	listings repository.ListingRepository
	cfg      OrderConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger

	now    func() time.Time
	digits func() string
}

// NewOrderService creates a new order service.
func NewOrderService(
	orders repository.OrderRepository,
	listings repository.ListingRepository,
	cfg OrderConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *OrderService {
	if cfg.TTL <= 0 {
		cfg.TTL = 45 * time.Minute
	}
	if cfg.CheckoutCodePrefix == "" {
		cfg.CheckoutCodePrefix = "AT"
	}
	return &OrderService{
		orders:   orders,
		listings: listings,
		cfg:      cfg,
		metrics:  m,
		logger:   logger.Named("orders"),
		now:      func() time.Time { return time.Now().UTC() },
		digits:   randomDigits,
	}
}

// randomDigits returns a 6-digit number in [100000, 999999].
func randomDigits() string {
	return strconv.Itoa(100000 + rand.IntN(900000))
}

// generate draws candidates until exists reports a free one, at most maxGenerateAttempts times.
func (s *OrderService) generate(ctx context.Context, prefix, what string, exists func(context.Context, string) (bool, error)) (string, error) {
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		candidate := prefix + s.digits()
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", translate(err, "order")
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", apierror.Conflict(fmt.Sprintf("Unable to generate unique %s. Please try again.", what))
}

// GenerateUniqueOrderID returns an unused ORD###### identifier.
func (s *OrderService) GenerateUniqueOrderID(ctx context.Context) (string, error) {
	return s.generate(ctx, orderIDPrefix, "order ID", s.orders.ExistsOrderID)
}

// GenerateUniqueCheckoutCode returns an unused checkout code such as AT123456.
func (s *OrderService) GenerateUniqueCheckoutCode(ctx context.Context) (string, error) {
	return s.generate(ctx, s.cfg.CheckoutCodePrefix, "checkout code", s.orders.ExistsCheckoutCode)
}

// QRCodeURL builds the payment QR image URL for an amount and narrative.
func (s *OrderService) QRCodeURL(amount int64, description string) string {
	params := url.Values{}
	params.Set("acc", s.cfg.AccountNo)
	params.Set("bank", s.cfg.BankCode)
	params.Set("amount", strconv.FormatInt(amount, 10))
	params.Set("des", description)
	return s.cfg.QRBaseURL + "?" + params.Encode()
}

func validateCreateOrder(in *CreateOrderInput) error {
	if strings.TrimSpace(in.AccountID) == "" {
		return fieldError("accountId", "accountId is required")
	}
	if strings.TrimSpace(in.CategoryName) == "" {
		return fieldError("categoryName", "categoryName is required")
	}
	if in.Quantity == 0 {
		in.Quantity = 1
	}
	if in.Quantity != 1 {
		return fieldError("quantity", "quantity must be 1")
	}
	addr, err := mail.ParseAddress(in.Email)
	if err != nil || addr.Address != in.Email {
		return fieldError("email", "a valid email is required")
	}
	return nil
}

// CreateOrder prices the order from the listing and stores it as pending.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*model.Order, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := validateCreateOrder(&in); err != nil {
		return nil, err
	}

	listing, err := s.listings.Get(ctx, in.AccountID)
	if err != nil {
		return nil, translate(err, "listing")
	}
	ci := listing.CategoryIndexByName(in.CategoryName)
	if ci < 0 {
		return nil, apierror.NotFound("category not found")
	}
	category := listing.Categories[ci]
	if category.AvailableCount() == 0 {
		return nil, apierror.OutOfStock("no accounts left in this category")
	}

	orderID, err := s.GenerateUniqueOrderID(ctx)
	if err != nil {
		return nil, err
	}
	code, err := s.GenerateUniqueCheckoutCode(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	total := category.Price * int64(in.Quantity)
	order := &model.Order{
		OrderID:      orderID,
		CheckoutCode: code,
		AccountID:    listing.ID,
		AccountType:  listing.Type,
		CategoryName: category.Name,
		Quantity:     in.Quantity,
		UnitPrice:    category.Price,
		TotalPrice:   total,
		Email:        in.Email,
		Game:         listing.Game,
		Server:       listing.Server,
		DisplayImage: listing.DisplayImage,
		UserID:       in.UserID,
		Status:       model.OrderPending,
		QRCodeURL:    s.QRCodeURL(total, code),
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.cfg.TTL),
		UpdatedAt:    now,
	}

	if err := s.orders.Create(ctx, order); err != nil {
		return nil, translate(err, "order")
	}
	s.metrics.OrderCreated()

	s.logger.Info("order created",
		zap.String("order_id", orderID),
		zap.String("checkout_code", code),
		zap.String("listing_id", listing.ID),
		zap.Int64("total_price", total))
	return order, nil
}

// GetOrder loads an order by id.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	o, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, translate(err, "order")
	}
	return o, nil
}

// FindPendingByCheckoutCode returns the pending order for a checkout code.
func (s *OrderService) FindPendingByCheckoutCode(ctx context.Context, code string) (*model.Order, error) {
	o, err := s.orders.FindPendingByCheckoutCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apierror.NotFound("no pending order for this code")
		}
		return nil, translate(err, "order")
	}
	return o, nil
}

// ListByUser returns a user's orders, newest first.
func (s *OrderService) ListByUser(ctx context.Context, userID string) ([]*model.Order, error) {
	if userID == "" {
		return nil, apierror.Unauthorized("")
	}
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, translate(err, "order")
	}
	return orders, nil
}

// ListAll pages through paid orders. The date range is applied by the store,
// the search filter in memory, then the result is sliced.
func (s *OrderService) ListAll(ctx context.Context, f ListOrdersFilter) (*OrderPage, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = defaultPageLimit
	}
	if f.Limit > maxPageLimit {
		f.Limit = maxPageLimit
	}

	orders, err := s.orders.ListByStatus(ctx, model.OrderPaid, model.DateRange{From: f.StartDate, To: f.EndDate})
	if err != nil {
		return nil, translate(err, "order")
	}

	if search := strings.ToLower(strings.TrimSpace(f.Search)); search != "" {
		filtered := orders[:0]
		for _, o := range orders {
			if matchesSearch(o, search) {
				filtered = append(filtered, o)
			}
		}
		orders = filtered
	}

	total := len(orders)
	start := (f.Page - 1) * f.Limit
	end := start + f.Limit
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	return &OrderPage{
		Orders:     orders[start:end],
		Total:      int64(total),
		Page:       f.Page,
		Limit:      f.Limit,
		TotalPages: (total + f.Limit - 1) / f.Limit,
	}, nil
}

func matchesSearch(o *model.Order, needle string) bool {
	for _, field := range []string{o.OrderID, o.Email, o.Game, o.AccountType} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// UpdateStatus writes a status unconditionally, stamping updatedAt and, for
// paid, paidAt. Callers are responsible for only moving eligible orders.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, status model.OrderStatus) error {
	if !status.Valid() {
		return fieldError("status", "unknown order status")
	}
	err := s.orders.TransitionStatus(ctx, orderID, model.StatusChange{To: status, At: s.now()})
	return translate(err, "order")
}

// MarkPaid moves a pending order to paid with the verified amount.
// It fails with a conflict if the order is no longer pending.
func (s *OrderService) MarkPaid(ctx context.Context, orderID string, paidAmount int64) error {
	err := s.orders.TransitionStatus(ctx, orderID, model.StatusChange{
		From:       model.OrderPending,
		To:         model.OrderPaid,
		At:         s.now(),
		PaidAmount: &paidAmount,
	})
	return translate(err, "order")
}
