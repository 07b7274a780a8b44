// Package seed fills a database with demo users, gifts and contributions for
// development. Everything goes through the service layer, so seeded data obeys the
// same rules as real traffic.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"giftpool/internal/ledger"
	"giftpool/internal/middleware"
	"giftpool/internal/models"
	"giftpool/internal/repository"
	"giftpool/internal/service"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every seeded account.
const DefaultPassword = "regalo2024"

// Options control random seeding.
type Options struct {
	Users                   int
	GiftsPerUser            int
	MaxContributionsPerGift int
	Password                string
	// RandSeed makes the run repeatable when non-zero.
	RandSeed int64
}

// Summary counts what a seeding run created.
type Summary struct {
	Users         int
	Gifts         int
	Contributions int
}

// Seeder creates demo data through the services.
type Seeder struct {
	store         repository.Store
	auth          *service.AuthService
	gifts         *service.GiftService
	contributions *service.ContributionService
}

// NewSeeder builds a seeder over store. fastHash trades bcrypt strength for speed.
func NewSeeder(store repository.Store, fastHash bool) *Seeder {
	locker := ledger.NewLocalLocker()
	auth := service.NewAuthService(store.Users())
	if fastHash {
		auth.WithHashCost(bcrypt.MinCost)
	}
	return &Seeder{
		store:         store,
		auth:          auth,
		gifts:         service.NewGiftService(store, locker, 0),
		contributions: service.NewContributionService(store, locker, 0),
	}
}

// Seed generates opts.Users accounts, their gifts and pledges from the other accounts.
func (s *Seeder) Seed(ctx context.Context, opts Options) (*Summary, error) {
	if opts.Password == "" {
		opts.Password = DefaultPassword
	}
	f := NewFactory(opts.RandSeed)
	sum := &Summary{}

	users := make([]*models.User, 0, opts.Users)
	for range opts.Users {
		u, err := s.auth.Register(ctx, f.User(opts.Password))
		if err != nil {
			if models.ErrorCode(err) == models.CodeDuplicateEmail {
				continue
			}
			return sum, fmt.Errorf("seed user: %w", err)
		}
		users = append(users, u)
		sum.Users++
	}
	middleware.Logger.Info("seeded users", slog.Int("count", sum.Users))

	var gifts []*models.Gift
	for _, u := range users {
		for range opts.GiftsPerUser {
			g, err := s.gifts.SaveGift(ctx, f.Gift(u.ID))
			if err != nil {
				return sum, fmt.Errorf("seed gift: %w", err)
			}
			gifts = append(gifts, g)
			sum.Gifts++
		}
	}
	middleware.Logger.Info("seeded gifts", slog.Int("count", sum.Gifts))

	if len(users) < 2 || opts.MaxContributionsPerGift <= 0 {
		return sum, nil
	}
	for _, g := range gifts {
		for range f.Pick(opts.MaxContributionsPerGift + 1) {
			progress, err := s.gifts.Progress(ctx, g.ID)
			if err != nil {
				return sum, err
			}
			if !progress.Remaining.IsPositive() {
				break
			}
			contributor := users[f.Pick(len(users))]
			if contributor.ID == g.OwnerID {
				continue
			}
			_, err = s.contributions.AddContribution(ctx, service.AddContributionInput{
				GiftID: g.ID,
				UserID: contributor.ID,
				Amount: f.Amount(progress.Remaining),
			})
			if err != nil {
				return sum, fmt.Errorf("seed contribution: %w", err)
			}
			sum.Contributions++
		}
	}
	middleware.Logger.Info("seeded contributions", slog.Int("count", sum.Contributions))
	return sum, nil
}

// ClearAll deletes every contribution, gift and user.
func ClearAll(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&models.Contribution{}, &models.Gift{}, &models.User{}} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
