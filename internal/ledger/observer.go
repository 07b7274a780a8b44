package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ContributionEvent describes an accepted pledge, after it has been committed.
type ContributionEvent struct {
	ContributionID  string          `json:"contribution_id"`
	GiftID          string          `json:"gift_id"`
	GiftName        string          `json:"gift_name"`
	OwnerID         string          `json:"owner_id"`
	ContributorID   string          `json:"contributor_id"`
	ContributorName string          `json:"contributor_name"`
	Amount          decimal.Decimal `json:"amount"`
	Remaining       decimal.Decimal `json:"remaining"`
	Percentage      decimal.Decimal `json:"percentage"`
	At              time.Time       `json:"at"`
}

// Observer is told about every accepted contribution.
type Observer interface {
	ContributionAdded(ctx context.Context, event ContributionEvent) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event ContributionEvent) error

func (f ObserverFunc) ContributionAdded(ctx context.Context, event ContributionEvent) error {
	return f(ctx, event)
}
