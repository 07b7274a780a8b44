package ledger

import (
	"fmt"

	"giftpool/internal/models"

	"github.com/shopspring/decimal"
)

// ErrExceedsRemaining is the message used when a pledge would over-fund a gift.
const ErrExceedsRemaining = "amount exceeds remaining goal"

// CheckAdd validates a new pledge of amount against the gift's current progress.
func CheckAdd(p Progress, amount decimal.Decimal) error {
	if err := models.ValidateMoney("amount", amount); err != nil {
		return err
	}
	if amount.GreaterThan(p.Remaining) {
		return models.NewValidationError(ErrExceedsRemaining)
	}
	return nil
}

// MaxAllowedEdit is the largest amount an existing pledge of oldAmount may be changed to:
// what is still missing plus what the pledge already counts for.
func MaxAllowedEdit(p Progress, oldAmount decimal.Decimal) decimal.Decimal {
	return p.Remaining.Add(oldAmount)
}

// CheckEdit validates replacing a pledge of oldAmount with newAmount.
func CheckEdit(p Progress, oldAmount, newAmount decimal.Decimal) error {
	if err := models.ValidateMoney("amount", newAmount); err != nil {
		return err
	}
	if maxAllowed := MaxAllowedEdit(p, oldAmount); newAmount.GreaterThan(maxAllowed) {
		return models.NewValidationError(fmt.Sprintf("%s (max %s)", ErrExceedsRemaining, maxAllowed.StringFixed(models.MoneyPlaces)))
	}
	return nil
}

// CheckPrice rejects a new price below what has already been collected.
func CheckPrice(p Progress, newPrice decimal.Decimal) error {
	if newPrice.LessThan(p.Current) {
		return models.NewValidationError(fmt.Sprintf(
			"price cannot be lower than the amount already collected (%s)", p.Current.StringFixed(models.MoneyPlaces)))
	}
	return nil
}
