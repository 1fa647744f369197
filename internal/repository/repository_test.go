package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"atstore-api/internal/model"
)

type backend struct {
	name     string
	listings func(t *testing.T) ListingRepository
	orders   func(t *testing.T) OrderRepository
}

func openSQLiteForTest(t *testing.T) *SQLListingRepository {
	t.Helper()
	db, err := OpenSQL(context.Background(), SQLite, ":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLListingRepository(db, SQLite)
}

func backends() []backend {
	return []backend{
		{
			name:     "Memory",
			listings: func(t *testing.T) ListingRepository { return NewMemoryListingRepository() },
			orders:   func(t *testing.T) OrderRepository { return NewMemoryOrderRepository() },
		},
		{
			name:     "SQLite",
			listings: func(t *testing.T) ListingRepository { return openSQLiteForTest(t) },
			orders: func(t *testing.T) OrderRepository {
				l := openSQLiteForTest(t)
				return NewSQLOrderRepository(l.db, SQLite)
			},
		},
	}
}

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func newListing(id, game, owner string, createdAt time.Time) *model.Listing {
	return &model.Listing{
		ID:           id,
		Game:         game,
		Type:         "starter",
		DisplayImage: "https://img.example/cover.png",
		DetailImages: []string{"https://img.example/1.png"},
		OwnerID:      owner,
		Categories: []model.Category{{
			ID:    "cat-1",
			Name:  "Standard",
			Price: 50000,
			Items: []model.InventoryItem{
				{ID: "item-1", Username: "enc-u1", Password: "enc-p1", Status: model.ItemAvailable},
			},
		}},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestListingRepository(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("CreateAndGet", func(t *testing.T) {
				repo := b.listings(t)
				require.NoError(t, repo.Create(ctx, newListing("l1", "genshin", "owner-1", base)))

				got, err := repo.Get(ctx, "l1")
				require.NoError(t, err)
				assert.Equal(t, "genshin", got.Game)
				assert.Equal(t, "owner-1", got.OwnerID)
				require.Len(t, got.Categories, 1)
				assert.Equal(t, "enc-u1", got.Categories[0].Items[0].Username)
				assert.True(t, got.CreatedAt.Equal(base))

				assert.ErrorIs(t, repo.Create(ctx, newListing("l1", "genshin", "", base)), ErrDuplicate)
			})

			t.Run("GetMissing", func(t *testing.T) {
				repo := b.listings(t)
				_, err := repo.Get(ctx, "nope")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("ListNewestFirst", func(t *testing.T) {
				repo := b.listings(t)
				require.NoError(t, repo.Create(ctx, newListing("old", "genshin", "o1", base)))
				require.NoError(t, repo.Create(ctx, newListing("new", "genshin", "o1", base.Add(time.Hour))))
				require.NoError(t, repo.Create(ctx, newListing("other", "valorant", "o2", base)))

				byGame, err := repo.ListByGame(ctx, "genshin")
				require.NoError(t, err)
				require.Len(t, byGame, 2)
				assert.Equal(t, "new", byGame[0].ID)
				assert.Equal(t, "old", byGame[1].ID)

				byOwner, err := repo.ListByOwner(ctx, "o2")
				require.NoError(t, err)
				require.Len(t, byOwner, 1)
				assert.Equal(t, "other", byOwner[0].ID)

				none, err := repo.ListByGame(ctx, "dota")
				require.NoError(t, err)
				assert.Empty(t, none)
			})

			t.Run("UpdateBumpsRevision", func(t *testing.T) {
				repo := b.listings(t)
				require.NoError(t, repo.Create(ctx, newListing("l1", "genshin", "o1", base)))

				updated, err := repo.Update(ctx, "l1", func(l *model.Listing) error {
					l.Categories[0].Items[0].Status = model.ItemSold
					return nil
				})
				require.NoError(t, err)
				assert.Equal(t, int64(1), updated.Revision)

				got, err := repo.Get(ctx, "l1")
				require.NoError(t, err)
				assert.Equal(t, model.ItemSold, got.Categories[0].Items[0].Status)
				assert.Equal(t, int64(1), got.Revision)
			})

			t.Run("UpdateAbortWritesNothing", func(t *testing.T) {
				repo := b.listings(t)
				require.NoError(t, repo.Create(ctx, newListing("l1", "genshin", "o1", base)))

				boom := errors.New("boom")
				_, err := repo.Update(ctx, "l1", func(l *model.Listing) error {
					l.Game = "changed"
					return boom
				})
				assert.ErrorIs(t, err, boom)

				got, err := repo.Get(ctx, "l1")
				require.NoError(t, err)
				assert.Equal(t, "genshin", got.Game)
				assert.Equal(t, int64(0), got.Revision)
			})

			t.Run("UpdateMissing", func(t *testing.T) {
				repo := b.listings(t)
				_, err := repo.Update(ctx, "nope", func(l *model.Listing) error { return nil })
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("ConcurrentUpdatesNeverLost", func(t *testing.T) {
				repo := b.listings(t)
				require.NoError(t, repo.Create(ctx, newListing("l1", "genshin", "o1", base)))

				const writers = 10
				var (
					wg        sync.WaitGroup
					mu        sync.Mutex
					succeeded int
				)
				for i := 0; i < writers; i++ {
					wg.Add(1)
					go func(i int) {
						defer wg.Done()
						_, err := repo.Update(ctx, "l1", func(l *model.Listing) error {
							l.Categories[0].Items = append(l.Categories[0].Items, model.InventoryItem{ID: fmt.Sprintf("w-%d", i)})
							return nil
						})
						if err == nil {
							mu.Lock()
							succeeded++
							mu.Unlock()
							return
						}
						assert.ErrorIs(t, err, ErrConflict)
					}(i)
				}
				wg.Wait()

				got, err := repo.Get(ctx, "l1")
				require.NoError(t, err)
				assert.Len(t, got.Categories[0].Items, 1+succeeded)
				assert.Equal(t, int64(succeeded), got.Revision)
			})

			t.Run("Delete", func(t *testing.T) {
				repo := b.listings(t)
				require.NoError(t, repo.Create(ctx, newListing("l1", "genshin", "o1", base)))
				require.NoError(t, repo.Delete(ctx, "l1"))
				assert.ErrorIs(t, repo.Delete(ctx, "l1"), ErrNotFound)
				_, err := repo.Get(ctx, "l1")
				assert.ErrorIs(t, err, ErrNotFound)
			})
		})
	}
}

func newOrder(id, code string, createdAt time.Time) *model.Order {
	return &model.Order{
		OrderID:      id,
		CheckoutCode: code,
		AccountID:    "l1",
		AccountType:  "starter",
		CategoryName: "Standard",
		Quantity:     1,
		UnitPrice:    50000,
		TotalPrice:   50000,
		Email:        "buyer@example.com",
		Game:         "genshin",
		Server:       "asia",
		DisplayImage: "https://img.example/cover.png",
		Status:       model.OrderPending,
		QRCodeURL:    "https://qr.example/img?des=" + code,
		CreatedAt:    createdAt,
		ExpiresAt:    createdAt.Add(45 * time.Minute),
		UpdatedAt:    createdAt,
	}
}

func TestOrderRepository(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("CreateAndGet", func(t *testing.T) {
				repo := b.orders(t)
				require.NoError(t, repo.Create(ctx, newOrder("ORD000001", "AT000001", base)))

				got, err := repo.Get(ctx, "ORD000001")
				require.NoError(t, err)
				assert.Equal(t, "AT000001", got.CheckoutCode)
				assert.Equal(t, model.OrderPending, got.Status)
				assert.Empty(t, got.UserID)
				assert.Nil(t, got.PaidAt)
				assert.Nil(t, got.PaidAmount)
				assert.True(t, got.ExpiresAt.Equal(base.Add(45*time.Minute)))

				_, err = repo.Get(ctx, "ORD999999")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("Duplicates", func(t *testing.T) {
				repo := b.orders(t)
				require.NoError(t, repo.Create(ctx, newOrder("ORD000001", "AT000001", base)))
				assert.ErrorIs(t, repo.Create(ctx, newOrder("ORD000001", "AT000002", base)), ErrDuplicate)
				assert.ErrorIs(t, repo.Create(ctx, newOrder("ORD000002", "AT000001", base)), ErrDuplicate)

				ok, err := repo.ExistsOrderID(ctx, "ORD000001")
				require.NoError(t, err)
				assert.True(t, ok)
				ok, err = repo.ExistsCheckoutCode(ctx, "AT000002")
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("TransitionStatus", func(t *testing.T) {
				repo := b.orders(t)
				require.NoError(t, repo.Create(ctx, newOrder("ORD000001", "AT000001", base)))

				found, err := repo.FindPendingByCheckoutCode(ctx, "AT000001")
				require.NoError(t, err)
				assert.Equal(t, "ORD000001", found.OrderID)

				paidAt := base.Add(5 * time.Minute)
				amount := int64(50000)
				require.NoError(t, repo.TransitionStatus(ctx, "ORD000001", model.StatusChange{
					From: model.OrderPending, To: model.OrderPaid, At: paidAt, PaidAmount: &amount,
				}))

				got, err := repo.Get(ctx, "ORD000001")
				require.NoError(t, err)
				assert.Equal(t, model.OrderPaid, got.Status)
				require.NotNil(t, got.PaidAt)
				assert.True(t, got.PaidAt.Equal(paidAt))
				require.NotNil(t, got.PaidAmount)
				assert.Equal(t, amount, *got.PaidAmount)

				_, err = repo.FindPendingByCheckoutCode(ctx, "AT000001")
				assert.ErrorIs(t, err, ErrNotFound)

				err = repo.TransitionStatus(ctx, "ORD000001", model.StatusChange{
					From: model.OrderPending, To: model.OrderExpired, At: paidAt,
				})
				assert.ErrorIs(t, err, ErrConflict)

				err = repo.TransitionStatus(ctx, "ORD404404", model.StatusChange{To: model.OrderCancelled, At: paidAt})
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("ListByUserAndStatus", func(t *testing.T) {
				repo := b.orders(t)
				for i := 0; i < 4; i++ {
					o := newOrder(fmt.Sprintf("ORD00000%d", i), fmt.Sprintf("AT00000%d", i), base.Add(time.Duration(i)*time.Hour))
					if i%2 == 0 {
						o.UserID = "user-1"
						o.Status = model.OrderPaid
					}
					require.NoError(t, repo.Create(ctx, o))
				}

				mine, err := repo.ListByUser(ctx, "user-1")
				require.NoError(t, err)
				require.Len(t, mine, 2)
				assert.Equal(t, "ORD000002", mine[0].OrderID)
				assert.Equal(t, "ORD000000", mine[1].OrderID)

				paid, err := repo.ListByStatus(ctx, model.OrderPaid, model.DateRange{})
				require.NoError(t, err)
				assert.Len(t, paid, 2)

				from := base.Add(time.Hour)
				ranged, err := repo.ListByStatus(ctx, model.OrderPaid, model.DateRange{From: &from})
				require.NoError(t, err)
				require.Len(t, ranged, 1)
				assert.Equal(t, "ORD000002", ranged[0].OrderID)
			})

			t.Run("ExpireAndPurge", func(t *testing.T) {
				repo := b.orders(t)
				for i := 0; i < 5; i++ {
					require.NoError(t, repo.Create(ctx, newOrder(fmt.Sprintf("ORD00000%d", i), fmt.Sprintf("AT00000%d", i), base)))
				}
				fresh := newOrder("ORD000009", "AT000009", base.Add(time.Hour))
				require.NoError(t, repo.Create(ctx, fresh))

				now := base.Add(50 * time.Minute)
				n, err := repo.ExpirePending(ctx, now)
				require.NoError(t, err)
				assert.Equal(t, int64(5), n)

				got, err := repo.Get(ctx, "ORD000009")
				require.NoError(t, err)
				assert.Equal(t, model.OrderPending, got.Status)

				n, err = repo.PurgeExpired(ctx, now.Add(-time.Minute), 2)
				require.NoError(t, err)
				assert.Zero(t, n)

				n, err = repo.PurgeExpired(ctx, now, 2)
				require.NoError(t, err)
				assert.Equal(t, int64(5), n)

				ok, err := repo.ExistsOrderID(ctx, "ORD000000")
				require.NoError(t, err)
				assert.False(t, ok)
				ok, err = repo.ExistsOrderID(ctx, "ORD000009")
				require.NoError(t, err)
				assert.True(t, ok)
			})
		})
	}
}
