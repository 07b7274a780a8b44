// Package ledger holds the contribution accounting rules: how pledges aggregate
// against a gift's price and when a new or edited pledge is allowed.
package ledger

import (
	"giftpool/internal/models"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Progress is the derived funding state of one gift. It is never stored.
type Progress struct {
	Current    decimal.Decimal `json:"current"`
	Total      decimal.Decimal `json:"total"`
	Percentage decimal.Decimal `json:"percentage"`
	Remaining  decimal.Decimal `json:"remaining"`
}

// GetProgress computes the progress of giftID from the full gift and contribution sets.
// An unknown gift yields all zeros.
func GetProgress(giftID string, gifts []models.Gift, contributions []models.Contribution) Progress {
	for i := range gifts {
		if gifts[i].ID == giftID {
			return ProgressFor(&gifts[i], contributions)
		}
	}
	return Progress{}
}

// ProgressFor computes the progress of gift, counting only contributions that belong to it.
// A nil gift yields all zeros.
func ProgressFor(gift *models.Gift, contributions []models.Contribution) Progress {
	if gift == nil {
		return Progress{}
	}

	current := decimal.Zero
	for _, c := range contributions {
		if c.GiftID == gift.ID {
			current = current.Add(c.Amount)
		}
	}

	total := gift.Price
	percentage := decimal.Zero
	if !total.IsZero() {
		percentage = decimal.Min(hundred, current.Div(total).Mul(hundred)).Round(2)
	}

	return Progress{
		Current:    current,
		Total:      total,
		Percentage: percentage,
		Remaining:  decimal.Max(decimal.Zero, total.Sub(current)),
	}
}

// Funded reports whether the goal has been reached.
func (p Progress) Funded() bool {
	return p.Total.IsPositive() && p.Remaining.IsZero()
}
