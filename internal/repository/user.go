package repository

import (
	"context"

	"giftpool/internal/cache"
	"giftpool/internal/models"
	"giftpool/internal/observability"

	"gorm.io/gorm"
)

// profileColumns are the columns Update writes. Cached users carry no password hash,
// so it must never be among them.
var profileColumns = []string{"name", "avatar_url", "payment_link", "updated_at"}

// userRepository reads users through the Redis cache when one is configured. Every
// write that changes a cached user evicts it.
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return cache.Aside(ctx, cache.UserKey(id), cache.UserTTL, func(ctx context.Context) (*models.User, error) {
		defer observability.TrackQuery("select", "users")()
		return findOne[models.User](ctx, r.db, "User", id, "id = ?", id)
	})
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	defer observability.TrackQuery("select", "users")()
	return findOne[models.User](ctx, r.db, "", email, "email = ?", models.NormalizeEmail(email))
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	defer observability.TrackQuery("insert", "users")()
	return userWriteError(r.db.WithContext(ctx).Create(user).Error, user)
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	defer observability.TrackQuery("update", "users")()
	res := r.db.WithContext(ctx).Model(user).Select(profileColumns).Updates(user)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", user.ID)
	}
	cache.InvalidateUser(ctx, user.ID)
	return nil
}

// userWriteError maps the unique index on email to DuplicateEmail.
func userWriteError(err error, user *models.User) error {
	switch {
	case err == nil:
		return nil
	case isUniqueConstraintError(err):
		return models.NewDuplicateEmailError(user.Email)
	default:
		return models.NewInternalError(err)
	}
}

func (r *userRepository) ListByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	users := make([]models.User, 0, len(ids))
	if len(ids) == 0 {
		return users, nil
	}
	defer observability.TrackQuery("select", "users")()
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}

func (r *userRepository) List(ctx context.Context) ([]models.User, error) {
	defer observability.TrackQuery("select", "users")()
	users := []models.User{}
	if err := r.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&users).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return users, nil
}
