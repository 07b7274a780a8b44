package notifications

import (
	"context"
	"errors"
	"fmt"

	"giftpool/internal/ledger"
	"giftpool/internal/models"

	"github.com/shopspring/decimal"
)

// EventContributionAdded is sent when a pledge is accepted.
const EventContributionAdded = "contribution_added"

// ContributionPayload is the payload of EventContributionAdded. The owner's copy leaves
// the contributor out: pledges are anonymous to everyone but the contributor.
type ContributionPayload struct {
	ContributionID string          `json:"contribution_id"`
	GiftID         string          `json:"gift_id"`
	GiftName       string          `json:"gift_name"`
	Amount         decimal.Decimal `json:"amount"`
	Remaining      decimal.Decimal `json:"remaining"`
	Percentage     decimal.Decimal `json:"percentage"`
	Message        string          `json:"message"`
}

// GiftActivityPayload is the broadcast copy of EventContributionAdded. It names the gift
// and never the contribution or its author.
type GiftActivityPayload struct {
	GiftID     string          `json:"gift_id"`
	GiftName   string          `json:"gift_name"`
	Remaining  decimal.Decimal `json:"remaining"`
	Percentage decimal.Decimal `json:"percentage"`
	Message    string          `json:"message"`
}

// EventPublisher is satisfied by *Notifier.
type EventPublisher interface {
	PublishUserEvent(ctx context.Context, userID string, e Event) error
	PublishBroadcastEvent(ctx context.Context, e Event) error
}

// RealtimeObserver tells the contributor their pledge went through, tells the gift's
// owner that someone contributed and lets everyone else know the gift moved.
type RealtimeObserver struct {
	publisher EventPublisher
}

func NewRealtimeObserver(publisher EventPublisher) *RealtimeObserver {
	return &RealtimeObserver{publisher: publisher}
}

var _ ledger.Observer = (*RealtimeObserver)(nil)

func (o *RealtimeObserver) ContributionAdded(ctx context.Context, e ledger.ContributionEvent) error {
	base := ContributionPayload{
		ContributionID: e.ContributionID,
		GiftID:         e.GiftID,
		GiftName:       e.GiftName,
		Amount:         e.Amount,
		Remaining:      e.Remaining,
		Percentage:     e.Percentage,
	}

	mine := base
	mine.Message = "Aportación realizada"
	errs := []error{o.publisher.PublishUserEvent(ctx, e.ContributorID, Event{
		Type:     EventContributionAdded,
		Severity: SeveritySuccess,
		Payload:  mine,
	})}

	someone := fmt.Sprintf("Alguien ha aportado a %s. Faltan %s€.",
		e.GiftName, e.Remaining.StringFixed(models.MoneyPlaces))
	if e.OwnerID != "" && e.OwnerID != e.ContributorID {
		owner := base
		owner.Message = someone
		errs = append(errs, o.publisher.PublishUserEvent(ctx, e.OwnerID, Event{
			Type:     EventContributionAdded,
			Severity: SeverityInfo,
			Payload:  owner,
		}))
	}
	errs = append(errs, o.publisher.PublishBroadcastEvent(ctx, Event{
		Type:     EventContributionAdded,
		Severity: SeverityInfo,
		Payload: GiftActivityPayload{
			GiftID:     e.GiftID,
			GiftName:   e.GiftName,
			Remaining:  e.Remaining,
			Percentage: e.Percentage,
			Message:    someone,
		},
	}))
	return errors.Join(errs...)
}
