package repository

import (
	"context"

	"giftpool/internal/models"
	"giftpool/internal/observability"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type contributionRepository struct {
	db *gorm.DB
}

// NewContributionRepository returns a new ContributionRepository implementation.
func NewContributionRepository(db *gorm.DB) ContributionRepository {
	return &contributionRepository{db: db}
}

func (r *contributionRepository) GetByID(ctx context.Context, id string) (*models.Contribution, error) {
	defer observability.TrackQuery("select", "contributions")()
	return findOne[models.Contribution](ctx, r.db, "Contribution", id, "id = ?", id)
}

func (r *contributionRepository) List(ctx context.Context) ([]models.Contribution, error) {
	return r.find(ctx, r.db.WithContext(ctx).Order("date ASC, id ASC"))
}

func (r *contributionRepository) ListByGift(ctx context.Context, giftID string) ([]models.Contribution, error) {
	defer observability.TrackQuery("select", "contributions")()
	return r.find(ctx, r.db.WithContext(ctx).Where("gift_id = ?", giftID).Order("date ASC, id ASC"))
}

func (r *contributionRepository) ListByUser(ctx context.Context, userID string) ([]models.Contribution, error) {
	return r.find(ctx, r.db.WithContext(ctx).Where("user_id = ?", userID).Order("date DESC, id ASC"))
}

func (r *contributionRepository) find(_ context.Context, q *gorm.DB) ([]models.Contribution, error) {
	out := []models.Contribution{}
	if err := q.Find(&out).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return out, nil
}

func (r *contributionRepository) Create(ctx context.Context, c *models.Contribution) error {
	defer observability.TrackQuery("insert", "contributions")()
	if err := r.db.WithContext(ctx).Create(c).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *contributionRepository) UpdateAmount(ctx context.Context, id string, amount decimal.Decimal) error {
	res := r.db.WithContext(ctx).Model(&models.Contribution{}).Where("id = ?", id).Update("amount", amount)
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Contribution", id)
	}
	return nil
}

func (r *contributionRepository) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Contribution{})
	if res.Error != nil {
		return models.NewInternalError(res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("Contribution", id)
	}
	return nil
}
