package repository

import (
	"context"

	"giftpool/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormStore struct {
	db            *gorm.DB
	users         UserRepository
	gifts         GiftRepository
	contributions ContributionRepository
}

// NewStore returns a Store backed by db (postgres or sqlite).
func NewStore(db *gorm.DB) Store {
	return &gormStore{
		db:            db,
		users:         NewUserRepository(db),
		gifts:         NewGiftRepository(db),
		contributions: NewContributionRepository(db),
	}
}

func (s *gormStore) Users() UserRepository                 { return s.users }
func (s *gormStore) Gifts() GiftRepository                 { return s.gifts }
func (s *gormStore) Contributions() ContributionRepository { return s.contributions }

// WithinGift opens a transaction and takes a row lock on the gift before running fn,
// so concurrent writers to the same gift are serialized by the database.
// sqlite has no row locks and serializes writers at the database level instead.
func (s *gormStore) WithinGift(ctx context.Context, giftID string, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var locked []string
		if err := tx.Model(&models.Gift{}).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", giftID).
			Limit(1).
			Pluck("id", &locked).Error; err != nil {
			return models.NewInternalError(err)
		}
		return fn(NewStore(tx))
	})
}
