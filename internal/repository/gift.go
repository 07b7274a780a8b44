package repository

import (
	"context"

	"giftpool/internal/models"
	"giftpool/internal/observability"

	"gorm.io/gorm"
)

type giftRepository struct {
	db *gorm.DB
}

// NewGiftRepository returns a new GiftRepository implementation.
func NewGiftRepository(db *gorm.DB) GiftRepository {
	return &giftRepository{db: db}
}

func (r *giftRepository) GetByID(ctx context.Context, id string) (*models.Gift, error) {
	defer observability.TrackQuery("select", "gifts")()
	return findOne[models.Gift](ctx, r.db, "Gift", id, "id = ?", id)
}

func (r *giftRepository) List(ctx context.Context) ([]models.Gift, error) {
	defer observability.TrackQuery("select", "gifts")()
	gifts := []models.Gift{}
	if err := r.db.WithContext(ctx).Order("created_at DESC, id ASC").Find(&gifts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return gifts, nil
}

func (r *giftRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Gift, error) {
	gifts := []models.Gift{}
	if err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC, id ASC").
		Find(&gifts).Error; err != nil {
		return nil, models.NewInternalError(err)
	}
	return gifts, nil
}

func (r *giftRepository) Save(ctx context.Context, gift *models.Gift) error {
	defer observability.TrackQuery("upsert", "gifts")()
	if err := r.db.WithContext(ctx).Save(gift).Error; err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (r *giftRepository) Delete(ctx context.Context, id string) error {
	defer observability.TrackQuery("delete", "gifts")()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("gift_id = ?", id).Delete(&models.Contribution{}).Error; err != nil {
			return models.NewInternalError(err)
		}
		res := tx.Where("id = ?", id).Delete(&models.Gift{})
		if res.Error != nil {
			return models.NewInternalError(res.Error)
		}
		if res.RowsAffected == 0 {
			return models.NewNotFoundError("Gift", id)
		}
		return nil
	})
}
