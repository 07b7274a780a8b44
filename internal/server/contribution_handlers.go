package server

import (
	"bytes"
	"fmt"
	"time"

	"giftpool/internal/featureflags"
	"giftpool/internal/models"
	"giftpool/internal/service"

	"github.com/gofiber/fiber/v2"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AddContribution handles POST /api/gifts/:id/contributions
// @Summary Contribute
// @Description Pledge an amount to a gift. The amount must be positive and no more than what is still missing.
// @Tags contributions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Gift ID"
// @Param request body amountRequest true "Amount"
// @Success 201 {object} models.Contribution
// @Failure 400 {object} models.ErrorResponse
// @Router /gifts/{id}/contributions [post]
func (s *Server) AddContribution(c *fiber.Ctx) error {
	giftID, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req amountRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	contribution, err := s.contributionService.AddContribution(c.UserContext(), service.AddContributionInput{
		GiftID: giftID,
		UserID: currentUserID(c),
		Amount: req.Amount,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(contribution)
}

// UpdateContribution handles PUT /api/contributions/:id
// @Summary Edit contribution
// @Description Change the amount of one of the caller's pledges. The original date is kept.
// @Tags contributions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Contribution ID"
// @Param request body amountRequest true "Amount"
// @Success 200 {object} models.Contribution
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /contributions/{id} [put]
func (s *Server) UpdateContribution(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}
	var req amountRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	contribution, err := s.contributionService.EditContribution(c.UserContext(), service.EditContributionInput{
		ContributionID: id,
		UserID:         currentUserID(c),
		Amount:         req.Amount,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(contribution)
}

// DeleteContribution handles DELETE /api/contributions/:id
// @Summary Withdraw contribution
// @Tags contributions
// @Security BearerAuth
// @Param id path string true "Contribution ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /contributions/{id} [delete]
func (s *Server) DeleteContribution(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	if err := s.contributionService.RemoveContribution(c.UserContext(), id, currentUserID(c)); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetMyContributions handles GET /api/contributions/me
// @Summary My contributions
// @Description The caller's pledges, newest first, with the total contributed
// @Tags contributions
// @Produce json
// @Security BearerAuth
// @Success 200 {object} service.MyContributions
// @Router /contributions/me [get]
func (s *Server) GetMyContributions(c *fiber.Ctx) error {
	mine, err := s.contributionService.ListMine(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(mine)
}

// ExportStatement handles GET /api/contributions/me/statement.xlsx
// @Summary Contribution statement
// @Tags contributions
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Success 200 {file} file
// @Failure 403 {object} models.ErrorResponse
// @Router /contributions/me/statement.xlsx [get]
func (s *Server) ExportStatement(c *fiber.Ctx) error {
	userID := currentUserID(c)
	if !s.featureAllowed(featureflags.StatementExport, userID) {
		return respondServiceError(c, models.NewForbiddenError("Statement export is not available"))
	}

	var buf bytes.Buffer
	if err := s.statementService.WriteXLSX(c.UserContext(), userID, &buf); err != nil {
		return respondServiceError(c, err)
	}

	filename := fmt.Sprintf("aportaciones-%s.xlsx", time.Now().Format("2006-01-02"))
	c.Set(fiber.HeaderContentType, xlsxContentType)
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, filename))
	return c.Send(buf.Bytes())
}

// GetCertificate handles GET /api/contributions/:id/certificate
// @Summary Contribution certificate
// @Description Certificate data for a pledge, readable by its contributor and by the gift's owner
// @Tags contributions
// @Produce json
// @Security BearerAuth
// @Param id path string true "Contribution ID"
// @Success 200 {object} service.Certificate
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /contributions/{id}/certificate [get]
func (s *Server) GetCertificate(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return nil
	}

	cert, err := s.contributionService.Certificate(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(cert)
}
