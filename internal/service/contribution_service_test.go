package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"giftpool/internal/database"
	"giftpool/internal/ledger"
	"giftpool/internal/models"
	"giftpool/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ledgerFixture struct {
	store  *repository.MemoryStore
	svc    *ContributionService
	owner  *models.User
	friend *models.User
	gift   *models.Gift
	c30    *models.Contribution
	c40    *models.Contribution
}

// newLedgerFixture builds a gift priced 100 with contributions of 30 and 40.
func newLedgerFixture(t *testing.T, observers ...ledger.Observer) *ledgerFixture {
	t.Helper()
	store := repository.NewMemoryStore()
	f := &ledgerFixture{store: store}
	f.owner = createUser(t, store, "owner")
	f.friend = createUser(t, store, "friend")
	f.gift = createGift(t, store, f.owner.ID, "Bicicleta", "100")
	f.c30 = addContribution(t, store, f.gift.ID, f.friend.ID, "30")
	f.c40 = addContribution(t, store, f.gift.ID, f.friend.ID, "40")
	f.svc = NewContributionService(store, ledger.NewLocalLocker(), time.Second, observers...)
	return f
}

func (f *ledgerFixture) progress(t *testing.T) ledger.Progress {
	t.Helper()
	all, err := f.store.Contributions().List(context.Background())
	require.NoError(t, err)
	gifts, err := f.store.Gifts().List(context.Background())
	require.NoError(t, err)
	return ledger.GetProgress(f.gift.ID, gifts, all)
}

type recordingObserver struct {
	mu     sync.Mutex
	events []ledger.ContributionEvent
	err    error
}

func (o *recordingObserver) ContributionAdded(_ context.Context, e ledger.ContributionEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
	return o.err
}

func TestContributionService_AddContribution(t *testing.T) {
	t.Parallel()

	t.Run("accepts the exact remaining amount and notifies", func(t *testing.T) {
		t.Parallel()
		obs := &recordingObserver{}
		f := newLedgerFixture(t, obs)

		c, err := f.svc.AddContribution(context.Background(), AddContributionInput{
			GiftID: f.gift.ID, UserID: f.friend.ID, Amount: money("30"),
		})
		require.NoError(t, err)
		assert.NotEmpty(t, c.ID)
		assert.False(t, c.Date.IsZero())

		p := f.progress(t)
		assert.True(t, p.Remaining.IsZero())
		assert.True(t, p.Funded())

		require.Len(t, obs.events, 1)
		e := obs.events[0]
		assert.Equal(t, "Bicicleta", e.GiftName)
		assert.Equal(t, f.owner.ID, e.OwnerID)
		assert.Equal(t, "friend", e.ContributorName)
		assert.True(t, e.Remaining.IsZero())
		assert.True(t, e.Percentage.Equal(money("100")))
	})

	t.Run("over the remaining amount leaves state unchanged", func(t *testing.T) {
		t.Parallel()
		obs := &recordingObserver{}
		f := newLedgerFixture(t, obs)

		_, err := f.svc.AddContribution(context.Background(), AddContributionInput{
			GiftID: f.gift.ID, UserID: f.friend.ID, Amount: money("31"),
		})
		assertValidationError(t, err)
		assert.Contains(t, err.Error(), ledger.ErrExceedsRemaining)

		p := f.progress(t)
		assert.True(t, p.Current.Equal(money("70")))
		assert.Empty(t, obs.events)
	})

	t.Run("non-positive amounts are rejected", func(t *testing.T) {
		t.Parallel()
		f := newLedgerFixture(t)
		for _, amount := range []string{"0", "-5"} {
			_, err := f.svc.AddContribution(context.Background(), AddContributionInput{
				GiftID: f.gift.ID, UserID: f.friend.ID, Amount: money(amount),
			})
			assertValidationError(t, err)
		}
	})

	t.Run("missing gift has nothing remaining", func(t *testing.T) {
		t.Parallel()
		f := newLedgerFixture(t)
		_, err := f.svc.AddContribution(context.Background(), AddContributionInput{
			GiftID: "missing", UserID: f.friend.ID, Amount: money("1"),
		})
		assertValidationError(t, err)
	})

	t.Run("observer failure does not undo the contribution", func(t *testing.T) {
		t.Parallel()
		failing := &recordingObserver{err: errors.New("redis down")}
		after := &recordingObserver{}
		f := newLedgerFixture(t, failing, after)

		c, err := f.svc.AddContribution(context.Background(), AddContributionInput{
			GiftID: f.gift.ID, UserID: f.friend.ID, Amount: money("10"),
		})
		require.NoError(t, err)
		_, err = f.store.Contributions().GetByID(context.Background(), c.ID)
		require.NoError(t, err)
		assert.Len(t, after.events, 1, "later observers still run")
	})

	t.Run("observers added later are notified", func(t *testing.T) {
		t.Parallel()
		f := newLedgerFixture(t)
		obs := &recordingObserver{}
		f.svc.AddObserver(ledger.ObserverFunc(obs.ContributionAdded))

		_, err := f.svc.AddContribution(context.Background(), AddContributionInput{
			GiftID: f.gift.ID, UserID: f.owner.ID, Amount: money("5"),
		})
		require.NoError(t, err)
		assert.Len(t, obs.events, 1)
	})
}

func TestContributionService_EditContribution(t *testing.T) {
	t.Parallel()

	t.Run("edit up to remaining plus old amount", func(t *testing.T) {
		t.Parallel()
		f := newLedgerFixture(t)

		updated, err := f.svc.EditContribution(context.Background(), EditContributionInput{
			ContributionID: f.c30.ID, UserID: f.friend.ID, Amount: money("60"),
		})
		require.NoError(t, err)
		assert.True(t, updated.Amount.Equal(money("60")))
		assert.True(t, updated.Date.Equal(f.c30.Date), "date is preserved")

		p := f.progress(t)
		assert.True(t, p.Current.Equal(money("100")))
	})

	t.Run("one more than allowed fails", func(t *testing.T) {
		t.Parallel()
		f := newLedgerFixture(t)

		_, err := f.svc.EditContribution(context.Background(), EditContributionInput{
			ContributionID: f.c30.ID, UserID: f.friend.ID, Amount: money("61"),
		})
		assertValidationError(t, err)
		assert.Contains(t, err.Error(), "max 60.00")

		stored, err := f.store.Contributions().GetByID(context.Background(), f.c30.ID)
		require.NoError(t, err)
		assert.True(t, stored.Amount.Equal(money("30")))
	})

	t.Run("lowering is always allowed", func(t *testing.T) {
		t.Parallel()
		f := newLedgerFixture(t)
		_, err := f.svc.EditContribution(context.Background(), EditContributionInput{
			ContributionID: f.c40.ID, UserID: f.friend.ID, Amount: money("0.01"),
		})
		require.NoError(t, err)
	})

	t.Run("errors in order", func(t *testing.T) {
		t.Parallel()
		f := newLedgerFixture(t)
		ctx := context.Background()

		_, err := f.svc.EditContribution(ctx, EditContributionInput{ContributionID: "missing", UserID: f.friend.ID, Amount: money("1")})
		assertCode(t, models.CodeNotFound, err)

		_, err = f.svc.EditContribution(ctx, EditContributionInput{ContributionID: f.c30.ID, UserID: f.owner.ID, Amount: money("1")})
		assertCode(t, models.CodeForbidden, err)

		_, err = f.svc.EditContribution(ctx, EditContributionInput{ContributionID: f.c30.ID, UserID: f.friend.ID, Amount: decimal.Zero})
		assertValidationError(t, err)
	})
}

func TestContributionService_RemoveContribution(t *testing.T) {
	t.Parallel()
	f := newLedgerFixture(t)
	ctx := context.Background()

	assertCode(t, models.CodeForbidden, f.svc.RemoveContribution(ctx, f.c30.ID, f.owner.ID))
	require.NoError(t, f.svc.RemoveContribution(ctx, f.c30.ID, f.friend.ID))
	assertCode(t, models.CodeNotFound, f.svc.RemoveContribution(ctx, f.c30.ID, f.friend.ID))

	all, err := f.svc.ListContributions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, f.c40.ID, all[0].ID)
}

func TestContributionService_ListMineAndCertificate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	owner := createUser(t, store, "owner")
	friend := createUser(t, store, "friend")
	stranger := createUser(t, store, "stranger")
	kept := createGift(t, store, owner.ID, "Cafetera", "80")
	gone := createGift(t, store, owner.ID, "Viaje", "500")

	base := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	older := &models.Contribution{GiftID: kept.ID, UserID: friend.ID, Amount: money("20.50"), Date: base}
	newer := &models.Contribution{GiftID: gone.ID, UserID: friend.ID, Amount: money("50"), Date: base.Add(48 * time.Hour)}
	require.NoError(t, store.Contributions().Create(ctx, older))
	require.NoError(t, store.Contributions().Create(ctx, newer))

	svc := NewContributionService(store, nil, 0)

	// The deleted gift's contribution goes too; keep a copy with a dangling gift id.
	require.NoError(t, store.Gifts().Delete(ctx, gone.ID))
	orphan := &models.Contribution{GiftID: gone.ID, UserID: friend.ID, Amount: money("50"), Date: base.Add(48 * time.Hour)}
	require.NoError(t, store.Contributions().Create(ctx, orphan))

	mine, err := svc.ListMine(ctx, friend.ID)
	require.NoError(t, err)
	require.Len(t, mine.Items, 2)
	assert.Equal(t, orphan.ID, mine.Items[0].ID, "newest first")
	assert.Equal(t, DeletedGiftName, mine.Items[0].GiftName)
	assert.True(t, mine.Items[0].GiftDeleted)
	assert.Equal(t, "Cafetera", mine.Items[1].GiftName)
	assert.True(t, mine.Total.Equal(money("70.50")))

	empty, err := svc.ListMine(ctx, stranger.ID)
	require.NoError(t, err)
	assert.Empty(t, empty.Items)
	assert.True(t, empty.Total.IsZero())

	cert, err := svc.Certificate(ctx, older.ID, friend.ID)
	require.NoError(t, err)
	assert.Len(t, cert.Number, 8)
	assert.Equal(t, cert.Number, certificateNumber(older.ID))
	assert.Equal(t, "friend", cert.ContributorName)
	assert.Equal(t, "Cafetera", cert.GiftName)
	assert.Equal(t, "owner", cert.OwnerName)
	assert.True(t, cert.Amount.Equal(money("20.50")))

	ownerView, err := svc.Certificate(ctx, older.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, cert.Number, ownerView.Number)

	_, err = svc.Certificate(ctx, older.ID, stranger.ID)
	assertCode(t, models.CodeForbidden, err)

	orphanCert, err := svc.Certificate(ctx, orphan.ID, friend.ID)
	require.NoError(t, err)
	assert.Equal(t, DeletedGiftName, orphanCert.GiftName)
	assert.Empty(t, orphanCert.OwnerName)
}

func TestCertificateNumber(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "9B2F0C4E", certificateNumber("9b2f0c4e-1d2a-4c55-8f00-123456789abc"))
	assert.Equal(t, "AB", certificateNumber("ab"))
}

func TestContributionService_LockTimeout(t *testing.T) {
	t.Parallel()
	store := repository.NewMemoryStore()
	owner := createUser(t, store, "owner")
	gift := createGift(t, store, owner.ID, "Consola", "100")

	locker := ledger.NewLocalLocker()
	unlock, err := locker.Lock(context.Background(), ledger.GiftLockKey(gift.ID))
	require.NoError(t, err)
	defer unlock()

	svc := NewContributionService(store, locker, 30*time.Millisecond)
	_, err = svc.AddContribution(context.Background(), AddContributionInput{
		GiftID: gift.ID, UserID: owner.ID, Amount: money("10"),
	})
	assertCode(t, models.CodeInternal, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	all, err := store.Contributions().ListByGift(context.Background(), gift.ID)
	require.NoError(t, err)
	assert.Empty(t, all)
}

// raceAdds fires n concurrent pledges of amount at the gift and returns how many were accepted.
func raceAdds(t *testing.T, svc *ContributionService, giftID, userID string, n int, amount string) int {
	t.Helper()
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AddContribution(context.Background(), AddContributionInput{
				GiftID: giftID, UserID: userID, Amount: money(amount),
			})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
				return
			}
			assert.Equal(t, models.CodeValidation, models.ErrorCode(err), "unexpected error: %v", err)
		}()
	}
	wg.Wait()
	return accepted
}

func TestContributionService_ConcurrentAddsNeverOverfund(t *testing.T) {
	t.Parallel()

	run := func(t *testing.T, store repository.Store) {
		ctx := context.Background()
		owner := createUser(t, store, "owner")
		friend := createUser(t, store, "friend")
		gift := createGift(t, store, owner.ID, "Sofá", "100")
		addContribution(t, store, gift.ID, friend.ID, "5")

		svc := NewContributionService(store, ledger.NewLocalLocker(), 10*time.Second)
		accepted := raceAdds(t, svc, gift.ID, friend.ID, 25, "10")
		assert.Equal(t, 9, accepted)

		all, err := store.Contributions().ListByGift(ctx, gift.ID)
		require.NoError(t, err)
		sum := decimal.Zero
		for _, c := range all {
			sum = sum.Add(c.Amount)
		}
		assert.True(t, sum.LessThanOrEqual(gift.Price), "sum %s exceeds price", sum)
		assert.True(t, sum.Equal(money("95")), "sum %s", sum)
	}

	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		run(t, repository.NewMemoryStore())
	})

	t.Run("sqlite", func(t *testing.T) {
		t.Parallel()
		db, err := database.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
		require.NoError(t, err)
		require.NoError(t, db.AutoMigrate(database.PersistentModels()...))
		t.Cleanup(func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
		run(t, repository.NewStore(db))
	})
}
