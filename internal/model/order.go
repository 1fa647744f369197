package model

import "time"

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderExpired   OrderStatus = "expired"
	OrderCancelled OrderStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPaid, OrderExpired, OrderCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderPaid || s == OrderExpired || s == OrderCancelled
}

// CanTransition reports whether from -> to is a legal lifecycle step.
// Only pending orders move, and only to a terminal status.
func CanTransition(from, to OrderStatus) bool {
	return from == OrderPending && to.IsTerminal()
}

// Order is a buyer's claim on one item of a listing category.
type Order struct {
	OrderID      string      `json:"orderId" bson:"_id"`
	CheckoutCode string      `json:"checkoutCode" bson:"checkout_code"`
	AccountID    string      `json:"accountId" bson:"account_id"`
	AccountType  string      `json:"accountType" bson:"account_type"`
	CategoryName string      `json:"categoryName" bson:"category_name"`
	Quantity     int         `json:"quantity" bson:"quantity"`
	UnitPrice    int64       `json:"unitPrice" bson:"unit_price"`
	TotalPrice   int64       `json:"totalPrice" bson:"total_price"`
	Email        string      `json:"email" bson:"email"`
	Game         string      `json:"game" bson:"game"`
	Server       string      `json:"server" bson:"server"`
	DisplayImage string      `json:"displayImage" bson:"display_image"`
	UserID       string      `json:"userId,omitempty" bson:"user_id,omitempty"`
	Status       OrderStatus `json:"status" bson:"status"`
	QRCodeURL    string      `json:"qrCodeUrl" bson:"qr_code_url"`
	CreatedAt    time.Time   `json:"createdAt" bson:"created_at"`
	ExpiresAt    time.Time   `json:"expiresAt" bson:"expires_at"`
	PaidAt       *time.Time  `json:"paidAt,omitempty" bson:"paid_at,omitempty"`
	PaidAmount   *int64      `json:"paidAmount,omitempty" bson:"paid_amount,omitempty"`
	UpdatedAt    time.Time   `json:"updatedAt" bson:"updated_at"`
}

// StatusChange describes one status write. When From is set the write only
// applies if the stored status still equals From.
type StatusChange struct {
	From       OrderStatus
	To         OrderStatus
	At         time.Time
	PaidAmount *int64
}

// Apply mutates o as the change describes. paidAt is stamped only for paid.
func (c StatusChange) Apply(o *Order) {
	o.Status = c.To
	o.UpdatedAt = c.At
	if c.To == OrderPaid {
		at := c.At
		o.PaidAt = &at
		if c.PaidAmount != nil {
			amount := *c.PaidAmount
			o.PaidAmount = &amount
		}
	}
}

// DateRange bounds a createdAt query. Nil ends are open.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls inside the range (inclusive).
func (r DateRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}
