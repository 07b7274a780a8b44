package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"giftpool/internal/database"
	"giftpool/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// stores runs fn against every Store implementation.
func stores(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("gorm", func(t *testing.T) {
		t.Parallel()
		fn(t, NewStore(newSQLiteDB(t)))
	})
	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		fn(t, NewMemoryStore())
	})
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedUser(t *testing.T, s Store, name, email string) *models.User {
	t.Helper()
	u := &models.User{Name: name, Email: email, Password: "hash"}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func seedGift(t *testing.T, s Store, ownerID, price string, created time.Time) *models.Gift {
	t.Helper()
	g := &models.Gift{
		OwnerID:   ownerID,
		Code:      "ABC123",
		Name:      "Gift " + price,
		Price:     money(price),
		CreatedAt: created,
	}
	require.NoError(t, s.Gifts().Save(context.Background(), g))
	return g
}

func TestStore_Users(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		ana := seedUser(t, s, "Ana", "Ana@Example.com")
		assert.NotEmpty(t, ana.ID)
		assert.Equal(t, "ana@example.com", ana.Email)

		got, err := s.Users().GetByID(ctx, ana.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ana", got.Name)

		byEmail, err := s.Users().GetByEmail(ctx, "ANA@example.com")
		require.NoError(t, err)
		require.NotNil(t, byEmail)
		assert.Equal(t, ana.ID, byEmail.ID)

		missing, err := s.Users().GetByEmail(ctx, "nobody@example.com")
		require.NoError(t, err)
		assert.Nil(t, missing)

		_, err = s.Users().GetByID(ctx, "nope")
		assert.True(t, models.IsNotFound(err))

		dup := &models.User{Name: "Impostor", Email: "ana@example.com", Password: "other"}
		err = s.Users().Create(ctx, dup)
		assert.Equal(t, models.CodeDuplicateEmail, models.ErrorCode(err))

		still, err := s.Users().GetByEmail(ctx, "ana@example.com")
		require.NoError(t, err)
		assert.Equal(t, "Ana", still.Name, "original user is untouched")
		assert.Equal(t, "hash", still.Password)

		edit := *ana
		edit.Name = "Ana María"
		edit.PaymentLink = "https://pay.example.com/ana"
		edit.Password = ""
		edit.Email = "other@example.com"
		require.NoError(t, s.Users().Update(ctx, &edit))
		got, err = s.Users().GetByID(ctx, ana.ID)
		require.NoError(t, err)
		assert.Equal(t, "Ana María", got.Name)
		assert.Equal(t, "https://pay.example.com/ana", got.PaymentLink)

		byEmail, err = s.Users().GetByEmail(ctx, "ana@example.com")
		require.NoError(t, err)
		require.NotNil(t, byEmail)
		assert.Equal(t, "hash", byEmail.Password, "profile updates never touch the password")

		err = s.Users().Update(ctx, &models.User{ID: "ghost", Name: "x", Email: "ghost@example.com"})
		assert.True(t, models.IsNotFound(err))

		bob := seedUser(t, s, "Bob", "bob@example.com")
		some, err := s.Users().ListByIDs(ctx, []string{bob.ID, "ghost"})
		require.NoError(t, err)
		require.Len(t, some, 1)
		assert.Equal(t, bob.ID, some[0].ID)

		none, err := s.Users().ListByIDs(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, none)

		all, err := s.Users().List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestStore_GiftsUpsertAndImages(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		owner := seedUser(t, s, "Owner", "owner@example.com")

		g := &models.Gift{
			OwnerID:   owner.ID,
			Code:      "XYZ",
			Name:      "Cámara",
			Price:     money("199.99"),
			Images:    []string{"https://img.example.com/1.webp", "https://img.example.com/2.webp"},
			Category:  "Tecnología",
			CreatedAt: time.Now().UTC().Truncate(time.Second),
		}
		require.NoError(t, s.Gifts().Save(ctx, g))
		require.NotEmpty(t, g.ID)

		got, err := s.Gifts().GetByID(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, g.Images, got.Images)
		assert.True(t, got.Price.Equal(money("199.99")))

		got.Name = "Cámara instantánea"
		got.Price = money("150")
		require.NoError(t, s.Gifts().Save(ctx, got))

		again, err := s.Gifts().GetByID(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, "Cámara instantánea", again.Name)
		assert.True(t, again.Price.Equal(money("150")))

		list, err := s.Gifts().List(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 1, "save with an existing id updates in place")

		_, err = s.Gifts().GetByID(ctx, "missing")
		assert.True(t, models.IsNotFound(err))
	})
}

func TestStore_GiftOrdering(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := seedUser(t, s, "A", "a@example.com")
		b := seedUser(t, s, "B", "b@example.com")

		base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		old := seedGift(t, s, a.ID, "10", base)
		newer := seedGift(t, s, a.ID, "20", base.Add(time.Hour))
		other := seedGift(t, s, b.ID, "30", base.Add(2*time.Hour))

		all, err := s.Gifts().List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{other.ID, newer.ID, old.ID}, []string{all[0].ID, all[1].ID, all[2].ID})

		mine, err := s.Gifts().ListByOwner(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, newer.ID, mine[0].ID)
	})
}

func TestStore_DeleteGiftCascades(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		owner := seedUser(t, s, "Owner", "owner@example.com")
		friend := seedUser(t, s, "Friend", "friend@example.com")
		gift := seedGift(t, s, owner.ID, "100", time.Now().UTC())
		keep := seedGift(t, s, owner.ID, "50", time.Now().UTC())

		for _, amount := range []string{"30", "40"} {
			require.NoError(t, s.Contributions().Create(ctx, &models.Contribution{
				GiftID: gift.ID, UserID: friend.ID, Amount: money(amount),
			}))
		}
		require.NoError(t, s.Contributions().Create(ctx, &models.Contribution{
			GiftID: keep.ID, UserID: friend.ID, Amount: money("5"),
		}))

		require.NoError(t, s.Gifts().Delete(ctx, gift.ID))

		_, err := s.Gifts().GetByID(ctx, gift.ID)
		assert.True(t, models.IsNotFound(err))

		all, err := s.Contributions().List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, keep.ID, all[0].GiftID)

		err = s.Gifts().Delete(ctx, gift.ID)
		assert.True(t, models.IsNotFound(err))
	})
}

func TestStore_Contributions(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		owner := seedUser(t, s, "Owner", "owner@example.com")
		friend := seedUser(t, s, "Friend", "friend@example.com")
		gift := seedGift(t, s, owner.ID, "100", time.Now().UTC())

		first := &models.Contribution{
			GiftID: gift.ID, UserID: friend.ID, Amount: money("30"),
			Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		require.NoError(t, s.Contributions().Create(ctx, first))
		second := &models.Contribution{GiftID: gift.ID, UserID: friend.ID, Amount: money("40")}
		require.NoError(t, s.Contributions().Create(ctx, second))
		assert.NotEmpty(t, second.ID)
		assert.False(t, second.Date.IsZero())

		require.NoError(t, s.Contributions().UpdateAmount(ctx, first.ID, money("60")))
		got, err := s.Contributions().GetByID(ctx, first.ID)
		require.NoError(t, err)
		assert.True(t, got.Amount.Equal(money("60")))
		assert.True(t, got.Date.Equal(first.Date), "date survives an amount edit")

		byUser, err := s.Contributions().ListByUser(ctx, friend.ID)
		require.NoError(t, err)
		require.Len(t, byUser, 2)
		assert.Equal(t, second.ID, byUser[0].ID, "newest first")

		byGift, err := s.Contributions().ListByGift(ctx, gift.ID)
		require.NoError(t, err)
		require.Len(t, byGift, 2)
		assert.Equal(t, first.ID, byGift[0].ID, "oldest first")

		require.NoError(t, s.Contributions().Delete(ctx, second.ID))
		assert.True(t, models.IsNotFound(s.Contributions().Delete(ctx, second.ID)))
		assert.True(t, models.IsNotFound(s.Contributions().UpdateAmount(ctx, "nope", money("1"))))

		_, err = s.Contributions().GetByID(ctx, second.ID)
		assert.True(t, models.IsNotFound(err))
	})
}

func TestStore_WithinGiftSerializesWriters(t *testing.T) {
	stores(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		owner := seedUser(t, s, "Owner", "owner@example.com")
		friend := seedUser(t, s, "Friend", "friend@example.com")
		gift := seedGift(t, s, owner.ID, "50", time.Now().UTC())

		errFull := errors.New("full")
		var wg sync.WaitGroup
		results := make(chan error, 12)
		for range 12 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- s.WithinGift(ctx, gift.ID, func(tx Store) error {
					existing, err := tx.Contributions().ListByGift(ctx, gift.ID)
					if err != nil {
						return err
					}
					sum := decimal.Zero
					for _, c := range existing {
						sum = sum.Add(c.Amount)
					}
					if sum.Add(money("10")).GreaterThan(gift.Price) {
						return errFull
					}
					return tx.Contributions().Create(ctx, &models.Contribution{
						GiftID: gift.ID, UserID: friend.ID, Amount: money("10"),
					})
				})
			}()
		}
		wg.Wait()
		close(results)

		accepted := 0
		for err := range results {
			if err == nil {
				accepted++
			} else {
				assert.ErrorIs(t, err, errFull)
			}
		}
		assert.Equal(t, 5, accepted)

		all, err := s.Contributions().ListByGift(ctx, gift.ID)
		require.NoError(t, err)
		sum := decimal.Zero
		for _, c := range all {
			sum = sum.Add(c.Amount)
		}
		assert.True(t, sum.Equal(money("50")), "sum %s", sum)
	})
}
