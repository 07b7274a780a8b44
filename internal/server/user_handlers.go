package server

import (
	"giftpool/internal/cache"
	"giftpool/internal/service"

	"github.com/gofiber/fiber/v2"
)

// GetMyProfile handles GET /api/users/me
// @Summary Current user
// @Tags users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.User
// @Failure 401 {object} models.ErrorResponse
// @Router /users/me [get]
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	user, err := s.authService.GetUser(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(user)
}

// UpdateMyProfile handles PUT /api/users/me
// @Summary Update profile
// @Description Change name, avatar or payment link. Omitted fields are kept; empty strings clear optional fields.
// @Tags users
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{name=string,avatar_url=string,payment_link=string} true "Profile"
// @Success 200 {object} models.User
// @Failure 400 {object} models.ErrorResponse
// @Router /users/me [put]
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	var req struct {
		Name        *string `json:"name"`
		AvatarURL   *string `json:"avatar_url"`
		PaymentLink *string `json:"payment_link"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	userID := currentUserID(c)
	user, err := s.authService.UpdateProfile(c.UserContext(), service.UpdateProfileInput{
		UserID:      userID,
		Name:        req.Name,
		AvatarURL:   req.AvatarURL,
		PaymentLink: req.PaymentLink,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	cache.InvalidateUser(c.UserContext(), userID)
	return c.JSON(user)
}
