package server

import (
	"strings"
	"time"

	"giftpool/internal/ledger"
	"giftpool/internal/models"
	"giftpool/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// giftRequest is the body of gift create and update requests.
type giftRequest struct {
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Images      []string        `json:"images"`
	Link        string          `json:"link"`
	Category    string          `json:"category"`
	Deadline    *time.Time      `json:"deadline"`
}

func (r giftRequest) input(id, ownerID string) service.SaveGiftInput {
	return service.SaveGiftInput{
		ID:          id,
		OwnerID:     ownerID,
		Code:        r.Code,
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Images:      r.Images,
		Link:        r.Link,
		Category:    r.Category,
		Deadline:    r.Deadline,
	}
}

// GetCategories handles GET /api/categories
// @Summary Gift categories
// @Tags gifts
// @Produce json
// @Success 200 {array} string
// @Router /categories [get]
func (s *Server) GetCategories(c *fiber.Ctx) error {
	return c.JSON(models.Categories)
}

// BrowseGifts handles GET /api/gifts
// @Summary Dashboard
// @Description Other users' gifts, optionally searched by name or code and filtered by all, almost, recent or a category
// @Tags gifts
// @Produce json
// @Security BearerAuth
// @Param q query string false "Search text"
// @Param filter query string false "all | almost | recent | category name"
// @Success 200 {array} service.GiftView
// @Failure 400 {object} models.ErrorResponse
// @Router /gifts [get]
func (s *Server) BrowseGifts(c *fiber.Ctx) error {
	views, err := s.giftService.Browse(c.UserContext(), service.BrowseInput{
		ViewerID: currentUserID(c),
		Search:   c.Query("q"),
		Filter:   c.Query("filter"),
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(views)
}

// GetMyGifts handles GET /api/gifts/mine
// @Summary My gifts
// @Tags gifts
// @Produce json
// @Security BearerAuth
// @Success 200 {array} service.GiftView
// @Router /gifts/mine [get]
func (s *Server) GetMyGifts(c *fiber.Ctx) error {
	views, err := s.giftService.ListMine(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(views)
}

// CreateGift handles POST /api/gifts
// @Summary Create gift
// @Tags gifts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body giftRequest true "Gift"
// @Success 201 {object} models.Gift
// @Failure 400 {object} models.ErrorResponse
// @Router /gifts [post]
func (s *Server) CreateGift(c *fiber.Ctx) error {
	var req giftRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	gift, err := s.giftService.SaveGift(c.UserContext(), req.input("", currentUserID(c)))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(gift)
}

// GetGift handles GET /api/gifts/:id
// @Summary Gift detail
// @Description The gift with its progress, days left and the owner's payment link
// @Tags gifts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Gift ID"
// @Success 200 {object} service.GiftView
// @Failure 404 {object} models.ErrorResponse
// @Router /gifts/{id} [get]
func (s *Server) GetGift(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	view, err := s.giftService.GetGift(c.UserContext(), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(view)
}

// UpdateGift handles PUT /api/gifts/:id
// @Summary Save gift
// @Description Replace the gift's fields. An unknown id creates the gift for the caller.
// @Tags gifts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Gift ID"
// @Param request body giftRequest true "Gift"
// @Success 200 {object} models.Gift
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Router /gifts/{id} [put]
func (s *Server) UpdateGift(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req giftRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	gift, err := s.giftService.SaveGift(c.UserContext(), req.input(id, currentUserID(c)))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(gift)
}

// DeleteGift handles DELETE /api/gifts/:id
// @Summary Delete gift
// @Description Deletes the gift and every contribution to it
// @Tags gifts
// @Security BearerAuth
// @Param id path string true "Gift ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /gifts/{id} [delete]
func (s *Server) DeleteGift(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.giftService.DeleteGift(c.UserContext(), id, currentUserID(c)); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetGiftProgress handles GET /api/gifts/:id/progress
// @Summary Funding progress
// @Description Current, total, percentage and remaining. An unknown or malformed gift id reports zeros.
// @Tags gifts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Gift ID"
// @Success 200 {object} ledger.Progress
// @Router /gifts/{id}/progress [get]
func (s *Server) GetGiftProgress(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if _, err := uuid.Parse(id); err != nil {
		// No gift can carry a malformed id.
		return c.JSON(ledger.GetProgress(id, nil, nil))
	}

	progress, err := s.giftService.Progress(c.UserContext(), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(progress)
}

// GetGiftContributions handles GET /api/gifts/:id/contributions
// @Summary Gift contributions
// @Description Pledges on the gift, oldest first. Only the caller's own pledges name the contributor.
// @Tags contributions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Gift ID"
// @Success 200 {array} service.GiftContribution
// @Failure 404 {object} models.ErrorResponse
// @Router /gifts/{id}/contributions [get]
func (s *Server) GetGiftContributions(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	list, err := s.giftService.ListContributions(c.UserContext(), id)
	if err != nil {
		return respondServiceError(c, err)
	}

	viewer := currentUserID(c)
	for i := range list {
		if list[i].UserID != viewer {
			list[i].UserID = ""
			list[i].Contributor = models.UserSummary{}
		}
	}
	return c.JSON(list)
}
