// Package repository implements the data access layer for users, gifts and contributions.
package repository

import (
	"context"
	"errors"
	"strings"

	"giftpool/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	// GetByEmail returns nil, nil when no user has that email.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	// Update saves the profile fields: name, avatar and payment link. Email and
	// password keep their stored values.
	Update(ctx context.Context, user *models.User) error
	ListByIDs(ctx context.Context, ids []string) ([]models.User, error)
	List(ctx context.Context) ([]models.User, error)
}

// GiftRepository defines persistence operations for gifts.
type GiftRepository interface {
	GetByID(ctx context.Context, id string) (*models.Gift, error)
	List(ctx context.Context) ([]models.Gift, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Gift, error)
	// Save inserts the gift or replaces the stored one with the same id.
	Save(ctx context.Context, gift *models.Gift) error
	// Delete removes the gift and every contribution to it.
	Delete(ctx context.Context, id string) error
}

// ContributionRepository defines persistence operations for contributions.
type ContributionRepository interface {
	GetByID(ctx context.Context, id string) (*models.Contribution, error)
	List(ctx context.Context) ([]models.Contribution, error)
	ListByGift(ctx context.Context, giftID string) ([]models.Contribution, error)
	ListByUser(ctx context.Context, userID string) ([]models.Contribution, error)
	// Create assigns ID and Date when they are empty.
	Create(ctx context.Context, c *models.Contribution) error
	// UpdateAmount changes only the amount; the date is preserved.
	UpdateAmount(ctx context.Context, id string, amount decimal.Decimal) error
	Delete(ctx context.Context, id string) error
}

// Store groups the repositories and provides the per-gift unit of work.
type Store interface {
	Users() UserRepository
	Gifts() GiftRepository
	Contributions() ContributionRepository
	// WithinGift runs fn with exclusive write access to giftID's ledger.
	// Everything fn does through tx commits or rolls back together.
	WithinGift(ctx context.Context, giftID string, fn func(tx Store) error) error
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "23505")
}

// findOne loads the single row matching query. A miss is a NotFoundError for resource,
// or nil, nil when resource is empty.
func findOne[T any](ctx context.Context, db *gorm.DB, resource, id string, query string, args ...any) (*T, error) {
	var row T
	err := db.WithContext(ctx).Where(query, args...).Take(&row).Error
	switch {
	case err == nil:
		return &row, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, models.NewInternalError(err)
	case resource == "":
		return nil, nil
	default:
		return nil, models.NewNotFoundError(resource, id)
	}
}
