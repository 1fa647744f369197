package notify

import (
	"context"

	"atstore-api/internal/vault"
)

// Delivery is one purchased credential on its way to the buyer.
type Delivery struct {
	Email        string
	OrderID      string
	ProductLabel string
	Credential   vault.Credential
}

// Notifier hands a delivered credential to the buyer. Implementations must
// not log the credential in clear.
type Notifier interface {
	SendDelivery(ctx context.Context, d Delivery) error
}

// mask keeps the first and last rune of s.
func mask(s string) string {
	r := []rune(s)
	if len(r) <= 2 {
		return "**"
	}
	return string(r[0]) + "***" + string(r[len(r)-1])
}
