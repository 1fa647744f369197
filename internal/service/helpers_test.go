package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"atstore-api/internal/cache"
	"atstore-api/internal/model"
	"atstore-api/internal/notify"
	"atstore-api/internal/repository"
	"atstore-api/internal/vault"
)

const (
	testOwner  = "owner-1"
	testAPIKey = "hook-secret"
)

type fakeNotifier struct {
	mu         sync.Mutex
	deliveries []notify.Delivery
	err        error
}

func (n *fakeNotifier) SendDelivery(ctx context.Context, d notify.Delivery) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliveries = append(n.deliveries, d)
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.deliveries)
}

// fixedClock is a settable time source shared by the services under test.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	listings    *repository.MemoryListingRepository
	orders      *repository.MemoryOrderRepository
	vault       *vault.Vault
	cache       *cache.MemoryCache
	clock       *fixedClock
	notifier    *fakeNotifier
	inventory   *InventoryService
	ledger      *OrderService
	fulfillment *FulfillmentService
	sweeper     *Sweeper
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	v, err := vault.New("test-encryption-key")
	require.NoError(t, err)

	env := &testEnv{
		listings: repository.NewMemoryListingRepository(),
		orders:   repository.NewMemoryOrderRepository(),
		vault:    v,
		cache:    cache.NewMemoryCache(),
		clock:    &fixedClock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)},
		notifier: &fakeNotifier{},
	}
	t.Cleanup(func() { env.cache.Close() })

	logger := zap.NewNop()
	env.inventory = NewInventoryService(env.listings, v, env.cache, time.Minute, nil, logger)
	env.inventory.now = env.clock.Now

	env.ledger = NewOrderService(env.orders, env.listings, OrderConfig{
		TTL:                45 * time.Minute,
		CheckoutCodePrefix: "AT",
		QRBaseURL:          "https://qr.sepay.vn/img",
		AccountNo:          "96247VVHYNOL806",
		BankCode:           "BIDV",
	}, nil, logger)
	env.ledger.now = env.clock.Now
	env.ledger.digits = sequentialDigits()

	env.fulfillment = NewFulfillmentService(FulfillmentConfig{
		WebhookAPIKey:      testAPIKey,
		ProtocolTag:        "SEVQR",
		SubAccountTag:      "TKPAT1",
		CheckoutCodePrefix: "AT",
	}, env.ledger, env.inventory, cache.NewMemoryLocker(), env.notifier, nil, logger)

	env.sweeper = NewSweeper(env.orders, SweeperConfig{}, nil, logger)
	env.sweeper.now = env.clock.Now
	return env
}

// sequentialDigits yields 100001, 100002, ... so generated ids are unique and predictable.
func sequentialDigits() func() string {
	var (
		mu sync.Mutex
		n  = 100000
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%06d", n)
	}
}

// seedListing creates a listing with one "Standard" category holding n items.
func (e *testEnv) seedListing(t *testing.T, price int64, n int) *model.OwnerListing {
	t.Helper()
	items := make([]vault.Credential, n)
	for i := range items {
		items[i] = vault.Credential{Username: fmt.Sprintf("user%d", i+1), Password: fmt.Sprintf("pass%d", i+1)}
	}
	l, err := e.inventory.CreateListing(context.Background(), testOwner, CreateListingInput{
		Game:         "genshin",
		Server:       "asia",
		Type:         "starter",
		DisplayImage: "https://img.example/cover.png",
		Categories:   []CategoryInput{{Name: "Standard", Price: price, Items: items}},
	})
	require.NoError(t, err)
	return l
}

func (e *testEnv) availableCount(t *testing.T, listingID string) (available, sold int) {
	t.Helper()
	l, err := e.listings.Get(context.Background(), listingID)
	require.NoError(t, err)
	for _, item := range l.Categories[0].Items {
		if item.IsAvailable() {
			available++
		} else {
			sold++
		}
	}
	return available, sold
}

func webhookBody(content string, amount int64) []byte {
	return []byte(fmt.Sprintf(`{"content":%q,"transferAmount":%d}`, content, amount))
}

// scriptedDigits returns values in order, then continues sequentially.
func scriptedDigits(values ...string) func() string {
	next := sequentialDigits()
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		if len(values) > 0 {
			v := values[0]
			values = values[1:]
			return v
		}
		return next()
	}
}
