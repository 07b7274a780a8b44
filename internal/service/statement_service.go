package service

import (
	"context"
	"fmt"
	"io"

	"giftpool/internal/models"

	"github.com/xuri/excelize/v2"
)

const statementSheet = "Aportaciones"

// StatementService exports a user's contributions as a spreadsheet.
type StatementService struct {
	contributions *ContributionService
}

func NewStatementService(contributions *ContributionService) *StatementService {
	return &StatementService{contributions: contributions}
}

// WriteXLSX writes the statement for userID to w: one row per contribution, newest
// first, followed by the total.
func (s *StatementService) WriteXLSX(ctx context.Context, userID string, w io.Writer) error {
	mine, err := s.contributions.ListMine(ctx, userID)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", statementSheet); err != nil {
		return models.NewInternalError(err)
	}

	moneyStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return models.NewInternalError(err)
	}
	boldStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return models.NewInternalError(err)
	}

	headers := []string{"Fecha", "Regalo", "Importe", "Referencia"}
	for i, h := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		if err := f.SetCellValue(statementSheet, cell, h); err != nil {
			return models.NewInternalError(err)
		}
	}
	if err := f.SetCellStyle(statementSheet, "A1", "D1", boldStyle); err != nil {
		return models.NewInternalError(err)
	}

	row := 2
	for _, e := range mine.Items {
		amount, _ := e.Amount.Float64()
		values := []any{
			e.Date.Format("2006-01-02"),
			e.GiftName,
			amount,
			certificateNumber(e.ID),
		}
		for i, v := range values {
			if err := f.SetCellValue(statementSheet, fmt.Sprintf("%c%d", 'A'+i, row), v); err != nil {
				return models.NewInternalError(err)
			}
		}
		row++
	}

	total, _ := mine.Total.Float64()
	if err := f.SetCellValue(statementSheet, fmt.Sprintf("B%d", row), "Total"); err != nil {
		return models.NewInternalError(err)
	}
	if err := f.SetCellValue(statementSheet, fmt.Sprintf("C%d", row), total); err != nil {
		return models.NewInternalError(err)
	}
	if err := f.SetCellStyle(statementSheet, fmt.Sprintf("B%d", row), fmt.Sprintf("B%d", row), boldStyle); err != nil {
		return models.NewInternalError(err)
	}
	if err := f.SetCellStyle(statementSheet, "C2", fmt.Sprintf("C%d", row), moneyStyle); err != nil {
		return models.NewInternalError(err)
	}

	for col, width := range map[string]float64{"A": 12, "B": 36, "C": 14, "D": 14} {
		if err := f.SetColWidth(statementSheet, col, col, width); err != nil {
			return models.NewInternalError(err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}
