package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"giftpool/internal/config"
	"giftpool/internal/ledger"
	"giftpool/internal/models"
	"giftpool/internal/repository"
	"giftpool/internal/storage"

	"github.com/google/uuid"
)

const (
	DefaultImageMaxUploadSizeMB = 10
	GiftImageMaxSize            = 1200
	WebPQuality                 = 75
)

type UploadGiftImageInput struct {
	GiftID      string
	UserID      string
	Filename    string
	ContentType string
	Content     []byte
}

// GiftImageService turns uploaded photos into WebP objects and attaches them to gifts.
type GiftImageService struct {
	store              repository.Store
	guard              ledgerGuard
	objects            storage.ObjectStore
	maxUploadSizeBytes int64
}

func NewGiftImageService(store repository.Store, locker ledger.Locker, objects storage.ObjectStore, cfg *config.Config) *GiftImageService {
	maxUploadSizeMB := DefaultImageMaxUploadSizeMB
	lockTimeout := time.Duration(0)
	if cfg != nil {
		if cfg.ImageMaxUploadSizeMB > 0 {
			maxUploadSizeMB = cfg.ImageMaxUploadSizeMB
		}
		lockTimeout = cfg.LedgerLockTimeout()
	}
	return &GiftImageService{
		store:              store,
		guard:              ledgerGuard{store: store, locker: locker, timeout: lockTimeout},
		objects:            objects,
		maxUploadSizeBytes: int64(maxUploadSizeMB) * 1024 * 1024,
	}
}

// Upload stores the photo and appends its URL to the gift. Only the owner may upload,
// and only while the gift has room for another image.
func (s *GiftImageService) Upload(ctx context.Context, in UploadGiftImageInput) (*models.Gift, error) {
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > s.maxUploadSizeBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)))
	}

	gift, err := s.store.Gifts().GetByID(ctx, in.GiftID)
	if err != nil {
		return nil, err
	}
	if gift.OwnerID != in.UserID {
		return nil, models.NewForbiddenError("You can only add photos to your own gifts")
	}
	if len(gift.Images) >= models.MaxGiftImages {
		return nil, models.NewValidationError(fmt.Sprintf("a gift can have at most %d images", models.MaxGiftImages))
	}

	photo, err := decodePhoto(in.Content, in.ContentType)
	if err != nil {
		return nil, err
	}
	encoded, err := toWebP(photo, GiftImageMaxSize, WebPQuality)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	key := fmt.Sprintf("gifts/%s/%s.webp", gift.ID, uuid.NewString())
	if err := s.objects.Put(ctx, key, bytes.NewReader(encoded), int64(len(encoded)), "image/webp"); err != nil {
		return nil, models.NewInternalError(err)
	}

	var saved *models.Gift
	err = s.guard.run(ctx, gift.ID, func(tx repository.Store) error {
		current, err := tx.Gifts().GetByID(ctx, gift.ID)
		if err != nil {
			return err
		}
		if len(current.Images) >= models.MaxGiftImages {
			return models.NewValidationError(fmt.Sprintf("a gift can have at most %d images", models.MaxGiftImages))
		}
		current.Images = append(current.Images, s.objects.URL(key))
		current.ImageURL = ""
		saved = current
		return tx.Gifts().Save(ctx, current)
	})
	if err != nil {
		if delErr := s.objects.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			slog.WarnContext(ctx, "failed to remove orphaned gift image", "key", key, "err", delErr)
		}
		return nil, err
	}
	return saved, nil
}
