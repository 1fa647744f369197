package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"atstore-api/internal/cache"
	"atstore-api/internal/model"
	"atstore-api/internal/repository"
	"atstore-api/pkg/apierror"
)

const validAuth = "Apikey " + testAPIKey

func TestFulfillment_Authenticate(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		header string
		ok     bool
	}{
		{"Valid", validAuth, true},
		{"SurroundingSpace", "  " + validAuth + " ", true},
		{"Empty", "", false},
		{"WrongScheme", "Bearer " + testAPIKey, false},
		{"LowercaseScheme", "apikey " + testAPIKey, false},
		{"NoSecret", "Apikey ", false},
		{"WrongSecret", "Apikey nope", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := env.fulfillment.Authenticate(tt.header)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, apierror.HasCode(err, apierror.CodeUnauthorized), "got %v", err)
		})
	}
}

func TestParsePaymentNotification(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		content string
		amount  int64
		wantErr bool
	}{
		{"Valid", `{"content":"SEVQR TKPAT1 AT123456","transferAmount":10000}`, "SEVQR TKPAT1 AT123456", 10000, false},
		{"WholeFloat", `{"content":"x","transferAmount":10000.0}`, "x", 10000, false},
		{"FractionalAmount", `{"content":"x","transferAmount":10.5}`, "x", 0, false},
		{"StringAmount", `{"content":"x","transferAmount":"10000"}`, "x", 0, false},
		{"MissingAmount", `{"content":"x"}`, "x", 0, false},
		{"ExtraFields", `{"id":1,"gateway":"BIDV","content":"x","transferAmount":5}`, "x", 5, false},
		{"ContentNotString", `{"content":123,"transferAmount":5}`, "", 0, true},
		{"MissingContent", `{"transferAmount":5}`, "", 0, true},
		{"NotJSON", `content=x`, "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := ParsePaymentNotification([]byte(tt.body))
			if tt.wantErr {
				assert.True(t, apierror.HasCode(err, apierror.CodeValidation), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.content, n.Content)
			assert.Equal(t, tt.amount, n.TransferAmount)
		})
	}
}

func TestFulfillment_ExtractCheckoutCode(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		content string
		code    string
	}{
		{"Canonical", "SEVQR TKPAT1 AT123456", "AT123456"},
		{"Lowercase", "sevqr tkpat1 at123456", "AT123456"},
		{"NoSpaces", "SEVQRTKPAT1AT123456", "AT123456"},
		{"BankSuffix", "MBVCB.1234 SEVQR TKPAT1 AT654321 FT2401", "AT654321"},
		{"CodeFirst", "AT111111 SEVQR TKPAT1", "AT111111"},
		{"MissingProtocolTag", "TKPAT1 AT123456", ""},
		{"MissingSubAccountTag", "SEVQR AT123456", ""},
		{"NoCode", "SEVQR TKPAT1 hello", ""},
		{"TooFewDigits", "SEVQR TKPAT1 AT12345", ""},
		{"TooManyDigits", "SEVQR TKPAT1 AT1234567", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, err := env.fulfillment.ExtractCheckoutCode(tt.content)
			if tt.code == "" {
				assert.True(t, apierror.HasCode(err, apierror.CodeValidation), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.code, code)
		})
	}
}

// newPendingOrder creates a listing with n items and one pending order on it.
func newPendingOrder(t *testing.T, env *testEnv, price int64, n int) (*model.OwnerListing, *model.Order) {
	t.Helper()
	l := env.seedListing(t, price, n)
	o, err := env.ledger.CreateOrder(context.Background(), CreateOrderInput{
		AccountID: l.ID, CategoryName: "Standard", Email: "buyer@example.com",
	})
	require.NoError(t, err)
	return l, o
}

func TestFulfillment_PaymentSettlesOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.ledger.digits = scriptedDigits("654321", "123456")
	l, o := newPendingOrder(t, env, 10000, 2)
	require.Equal(t, "AT123456", o.CheckoutCode)

	env.clock.Advance(5 * time.Minute)
	res, err := env.fulfillment.HandleWebhook(ctx, validAuth, webhookBody("SEVQR TKPAT1 AT123456", 10000))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, o.OrderID, res.OrderID)

	paid, err := env.ledger.GetOrder(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPaid, paid.Status)
	require.NotNil(t, paid.PaidAmount)
	assert.Equal(t, int64(10000), *paid.PaidAmount)
	assert.Equal(t, env.clock.Now(), *paid.PaidAt)

	available, sold := env.availableCount(t, l.ID)
	assert.Equal(t, 1, available)
	assert.Equal(t, 1, sold)

	require.Equal(t, 1, env.notifier.count())
	d := env.notifier.deliveries[0]
	assert.Equal(t, "buyer@example.com", d.Email)
	assert.Equal(t, o.OrderID, d.OrderID)
	assert.Equal(t, "user1", d.Credential.Username)
	assert.Equal(t, "pass1", d.Credential.Password)
	assert.Equal(t, "genshin / starter / Standard", d.ProductLabel)

	// A replayed notification finds no pending order and changes nothing.
	_, err = env.fulfillment.HandleWebhook(ctx, validAuth, webhookBody("SEVQR TKPAT1 AT123456", 10000))
	assert.True(t, apierror.HasCode(err, apierror.CodeNotFound), "got %v", err)
	available, sold = env.availableCount(t, l.ID)
	assert.Equal(t, 1, available)
	assert.Equal(t, 1, sold)
	assert.Equal(t, 1, env.notifier.count())
}

func TestFulfillment_OverpaymentRecordsAmount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, o := newPendingOrder(t, env, 10000, 1)

	_, err := env.fulfillment.HandleWebhook(ctx, validAuth, webhookBody("SEVQR TKPAT1 "+o.CheckoutCode, 15000))
	require.NoError(t, err)

	paid, err := env.ledger.GetOrder(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, int64(15000), *paid.PaidAmount)
	assert.Equal(t, int64(10000), paid.TotalPrice)
}

func TestFulfillment_RejectsWithoutSideEffects(t *testing.T) {
	tests := []struct {
		name string
		auth string
		body func(code string) []byte
		code string
	}{
		{"BadKey", "Apikey wrong", func(c string) []byte { return webhookBody("SEVQR TKPAT1 "+c, 10000) }, apierror.CodeUnauthorized},
		{"Underpayment", validAuth, func(c string) []byte { return webhookBody("SEVQR TKPAT1 "+c, 9999) }, apierror.CodeUnderpayment},
		{"ZeroAmount", validAuth, func(c string) []byte { return webhookBody("SEVQR TKPAT1 "+c, 0) }, apierror.CodeValidation},
		{"NegativeAmount", validAuth, func(c string) []byte { return webhookBody("SEVQR TKPAT1 "+c, -5) }, apierror.CodeValidation},
		{"MissingTags", validAuth, func(c string) []byte { return webhookBody(c, 10000) }, apierror.CodeValidation},
		{"UnknownCode", validAuth, func(string) []byte { return webhookBody("SEVQR TKPAT1 AT000001", 10000) }, apierror.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			ctx := context.Background()
			l, o := newPendingOrder(t, env, 10000, 2)

			_, err := env.fulfillment.HandleWebhook(ctx, tt.auth, tt.body(o.CheckoutCode))
			assert.True(t, apierror.HasCode(err, tt.code), "got %v", err)

			stored, err := env.ledger.GetOrder(ctx, o.OrderID)
			require.NoError(t, err)
			assert.Equal(t, model.OrderPending, stored.Status)
			assert.Nil(t, stored.PaidAt)
			available, _ := env.availableCount(t, l.ID)
			assert.Equal(t, 2, available)
			assert.Zero(t, env.notifier.count())
		})
	}
}

func TestFulfillment_OutOfStockHoldsOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	l, first := newPendingOrder(t, env, 10000, 1)
	second, err := env.ledger.CreateOrder(ctx, CreateOrderInput{AccountID: l.ID, CategoryName: "Standard", Email: "late@example.com"})
	require.NoError(t, err)

	_, err = env.fulfillment.HandleWebhook(ctx, validAuth, webhookBody("SEVQR TKPAT1 "+first.CheckoutCode, 10000))
	require.NoError(t, err)

	_, err = env.fulfillment.HandleWebhook(ctx, validAuth, webhookBody("SEVQR TKPAT1 "+second.CheckoutCode, 10000))
	assert.True(t, apierror.HasCode(err, apierror.CodeOutOfStock), "got %v", err)

	held, err := env.ledger.GetOrder(ctx, second.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, held.Status)
	assert.Equal(t, 1, env.notifier.count())
}

func TestFulfillment_ExpiredOrderIsNotSettled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	l, o := newPendingOrder(t, env, 10000, 1)

	env.clock.Advance(46 * time.Minute)
	n, err := env.sweeper.RunExpire(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = env.fulfillment.HandleWebhook(ctx, validAuth, webhookBody("SEVQR TKPAT1 "+o.CheckoutCode, 10000))
	assert.True(t, apierror.HasCode(err, apierror.CodeNotFound), "got %v", err)

	available, _ := env.availableCount(t, l.ID)
	assert.Equal(t, 1, available)
}

func TestFulfillment_DeliveryFailureKeepsOrderPaid(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.notifier.err = errors.New("smtp down")
	l, o := newPendingOrder(t, env, 10000, 1)

	res, err := env.fulfillment.HandleWebhook(ctx, validAuth, webhookBody("SEVQR TKPAT1 "+o.CheckoutCode, 10000))
	require.NoError(t, err)
	assert.True(t, res.Success)

	paid, err := env.ledger.GetOrder(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPaid, paid.Status)
	_, sold := env.availableCount(t, l.ID)
	assert.Equal(t, 1, sold)
}

// failingTransitions lets reads through but fails every status write.
type failingTransitions struct {
	repository.OrderRepository
}

func (failingTransitions) TransitionStatus(context.Context, string, model.StatusChange) error {
	return errors.New("write timeout")
}

func TestFulfillment_ReleasesItemWhenMarkPaidFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	l, o := newPendingOrder(t, env, 10000, 2)

	ledger := NewOrderService(failingTransitions{env.orders}, env.listings, OrderConfig{}, nil, zap.NewNop())
	fulfillment := NewFulfillmentService(FulfillmentConfig{
		WebhookAPIKey:      testAPIKey,
		ProtocolTag:        "SEVQR",
		SubAccountTag:      "TKPAT1",
		CheckoutCodePrefix: "AT",
	}, ledger, env.inventory, cache.NewMemoryLocker(), env.notifier, nil, zap.NewNop())

	_, err := fulfillment.HandleWebhook(ctx, validAuth, webhookBody("SEVQR TKPAT1 "+o.CheckoutCode, 10000))
	require.Error(t, err)

	available, sold := env.availableCount(t, l.ID)
	assert.Equal(t, 2, available)
	assert.Zero(t, sold)
	assert.Zero(t, env.notifier.count())

	stored, err := env.ledger.GetOrder(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, stored.Status)
}

func TestFulfillment_DuplicateWebhooksSettleOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	l, o := newPendingOrder(t, env, 10000, 5)
	body := webhookBody("SEVQR TKPAT1 "+o.CheckoutCode, 10000)

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		notFound  atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.fulfillment.HandleWebhook(ctx, validAuth, body)
			switch {
			case err == nil:
				successes.Add(1)
			case apierror.HasCode(err, apierror.CodeNotFound):
				notFound.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(19), notFound.Load())
	available, sold := env.availableCount(t, l.ID)
	assert.Equal(t, 4, available)
	assert.Equal(t, 1, sold)
	assert.Equal(t, 1, env.notifier.count())
}
