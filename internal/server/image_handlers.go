package server

import (
	"io"

	"giftpool/internal/featureflags"
	"giftpool/internal/models"
	"giftpool/internal/service"

	"github.com/gofiber/fiber/v2"
)

// UploadGiftImage handles POST /api/gifts/:id/images
// @Summary Add gift photo
// @Description Upload a jpeg, png, gif or webp photo. It is stored as WebP scaled to fit 1200x1200. A gift holds up to 5 photos.
// @Tags gifts
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path string true "Gift ID"
// @Param image formData file true "Photo"
// @Success 201 {object} models.Gift
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /gifts/{id}/images [post]
func (s *Server) UploadGiftImage(c *fiber.Ctx) error {
	giftID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	userID := currentUserID(c)
	if !s.featureAllowed(featureflags.GiftImages, userID) {
		return respondServiceError(c, models.NewForbiddenError("Gift photos are not available"))
	}

	file, err := c.FormFile("image")
	if err != nil {
		return respondServiceError(c, models.NewValidationError("No file uploaded"))
	}

	src, err := file.Open()
	if err != nil {
		return respondServiceError(c, models.NewValidationError("Unable to read uploaded file"))
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(src)
	if err != nil {
		return respondServiceError(c, models.NewValidationError("Unable to read uploaded file"))
	}

	gift, err := s.imageService.Upload(c.UserContext(), service.UploadGiftImageInput{
		GiftID:      giftID,
		UserID:      userID,
		Filename:    file.Filename,
		ContentType: file.Header.Get(fiber.HeaderContentType),
		Content:     content,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(gift)
}
