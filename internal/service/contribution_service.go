package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"giftpool/internal/ledger"
	"giftpool/internal/models"
	"giftpool/internal/observability"
	"giftpool/internal/repository"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// DeletedGiftName stands in for the name of a gift that no longer exists.
const DeletedGiftName = "Regalo eliminado"

type ContributionService struct {
	store repository.Store
	guard ledgerGuard
	now   func() time.Time

	mu        sync.RWMutex
	observers []ledger.Observer
}

type AddContributionInput struct {
	GiftID string
	UserID string
	Amount decimal.Decimal
}

type EditContributionInput struct {
	ContributionID string
	UserID         string
	Amount         decimal.Decimal
}

// ContributionEntry is one of the caller's pledges with the name of the gift it went to.
type ContributionEntry struct {
	models.Contribution
	GiftName    string `json:"gift_name"`
	GiftDeleted bool   `json:"gift_deleted"`
}

type MyContributions struct {
	Items []ContributionEntry `json:"items"`
	Total decimal.Decimal     `json:"total"`
}

// Certificate is the data printed on a contribution certificate.
type Certificate struct {
	Number          string          `json:"number"`
	ContributionID  string          `json:"contribution_id"`
	ContributorName string          `json:"contributor_name"`
	GiftName        string          `json:"gift_name"`
	OwnerName       string          `json:"owner_name"`
	Amount          decimal.Decimal `json:"amount"`
	Date            time.Time       `json:"date"`
}

func NewContributionService(store repository.Store, locker ledger.Locker, lockTimeout time.Duration, observers ...ledger.Observer) *ContributionService {
	return &ContributionService{
		store:     store,
		guard:     ledgerGuard{store: store, locker: locker, timeout: lockTimeout},
		now:       time.Now,
		observers: observers,
	}
}

// AddObserver registers o to hear about every accepted contribution.
func (s *ContributionService) AddObserver(o ledger.Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// AddContribution records a pledge if it fits in what is still missing for the gift.
func (s *ContributionService) AddContribution(ctx context.Context, in AddContributionInput) (_ *models.Contribution, err error) {
	span, ctx := observability.NewSpan(ctx, "contribution.add")
	defer span.Finish(&err)
	span.AddAttributes(
		attribute.String("gift.id", in.GiftID),
		attribute.String("user.id", in.UserID),
		attribute.String("contribution.amount", in.Amount.String()),
	)
	defer func() { observability.RecordContribution("add", contributionOutcome(err)) }()

	if err := models.ValidateMoney("amount", in.Amount); err != nil {
		return nil, err
	}

	var (
		created *models.Contribution
		event   ledger.ContributionEvent
	)
	err = s.guard.run(ctx, in.GiftID, func(tx repository.Store) error {
		gift, err := tx.Gifts().GetByID(ctx, in.GiftID)
		if err != nil && !models.IsNotFound(err) {
			return err
		}
		contributions, err := tx.Contributions().ListByGift(ctx, in.GiftID)
		if err != nil {
			return err
		}

		// A missing gift has nothing remaining, so it is rejected here too.
		progress := ledger.ProgressFor(gift, contributions)
		if err := ledger.CheckAdd(progress, in.Amount); err != nil {
			return err
		}

		c := &models.Contribution{
			GiftID: in.GiftID,
			UserID: in.UserID,
			Amount: in.Amount,
			Date:   s.now().UTC(),
		}
		if err := tx.Contributions().Create(ctx, c); err != nil {
			return err
		}

		after := ledger.ProgressFor(gift, append(contributions, *c))
		created = c
		event = ledger.ContributionEvent{
			ContributionID: c.ID,
			GiftID:         gift.ID,
			GiftName:       gift.Name,
			OwnerID:        gift.OwnerID,
			ContributorID:  c.UserID,
			Amount:         c.Amount,
			Remaining:      after.Remaining,
			Percentage:     after.Percentage,
			At:             c.Date,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if user, err := s.store.Users().GetByID(ctx, in.UserID); err == nil {
		event.ContributorName = user.Name
	}
	s.notify(ctx, event)
	return created, nil
}

// EditContribution changes the amount of the caller's own pledge. The date is kept.
func (s *ContributionService) EditContribution(ctx context.Context, in EditContributionInput) (_ *models.Contribution, err error) {
	span, ctx := observability.NewSpan(ctx, "contribution.edit")
	defer span.Finish(&err)
	span.AddAttributes(
		attribute.String("contribution.id", in.ContributionID),
		attribute.String("user.id", in.UserID),
	)
	defer func() { observability.RecordContribution("edit", contributionOutcome(err)) }()

	current, err := s.store.Contributions().GetByID(ctx, in.ContributionID)
	if err != nil {
		return nil, err
	}
	if current.UserID != in.UserID {
		return nil, models.NewForbiddenError("You can only edit your own contributions")
	}
	if err := models.ValidateMoney("amount", in.Amount); err != nil {
		return nil, err
	}

	var updated *models.Contribution
	err = s.guard.run(ctx, current.GiftID, func(tx repository.Store) error {
		c, err := tx.Contributions().GetByID(ctx, in.ContributionID)
		if err != nil {
			return err
		}
		gift, err := tx.Gifts().GetByID(ctx, c.GiftID)
		if err != nil && !models.IsNotFound(err) {
			return err
		}
		contributions, err := tx.Contributions().ListByGift(ctx, c.GiftID)
		if err != nil {
			return err
		}

		if err := ledger.CheckEdit(ledger.ProgressFor(gift, contributions), c.Amount, in.Amount); err != nil {
			return err
		}
		if err := tx.Contributions().UpdateAmount(ctx, c.ID, in.Amount); err != nil {
			return err
		}
		c.Amount = in.Amount
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveContribution deletes the caller's own pledge.
func (s *ContributionService) RemoveContribution(ctx context.Context, contributionID, userID string) (err error) {
	defer func() { observability.RecordContribution("remove", contributionOutcome(err)) }()

	c, err := s.store.Contributions().GetByID(ctx, contributionID)
	if err != nil {
		return err
	}
	if c.UserID != userID {
		return models.NewForbiddenError("You can only delete your own contributions")
	}
	return s.guard.run(ctx, c.GiftID, func(tx repository.Store) error {
		return tx.Contributions().Delete(ctx, contributionID)
	})
}

// ListContributions returns every contribution in the ledger.
func (s *ContributionService) ListContributions(ctx context.Context) ([]models.Contribution, error) {
	return s.store.Contributions().List(ctx)
}

// ListMine returns the user's pledges, newest first, and what they add up to.
func (s *ContributionService) ListMine(ctx context.Context, userID string) (*MyContributions, error) {
	contributions, err := s.store.Contributions().ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	names := make(map[string]string)
	out := &MyContributions{Items: make([]ContributionEntry, 0, len(contributions)), Total: decimal.Zero}
	for _, c := range contributions {
		name, ok := names[c.GiftID]
		if !ok {
			name, err = s.giftName(ctx, c.GiftID)
			if err != nil {
				return nil, err
			}
			names[c.GiftID] = name
		}
		out.Items = append(out.Items, ContributionEntry{
			Contribution: c,
			GiftName:     name,
			GiftDeleted:  name == DeletedGiftName,
		})
		out.Total = out.Total.Add(c.Amount)
	}
	return out, nil
}

// Certificate returns the certificate data for one pledge. The contributor and the
// gift's owner may read it.
func (s *ContributionService) Certificate(ctx context.Context, contributionID, userID string) (*Certificate, error) {
	c, err := s.store.Contributions().GetByID(ctx, contributionID)
	if err != nil {
		return nil, err
	}

	gift, err := s.store.Gifts().GetByID(ctx, c.GiftID)
	if err != nil && !models.IsNotFound(err) {
		return nil, err
	}
	if c.UserID != userID && (gift == nil || gift.OwnerID != userID) {
		return nil, models.NewForbiddenError("You can only view certificates for your own contributions")
	}

	cert := &Certificate{
		Number:         certificateNumber(c.ID),
		ContributionID: c.ID,
		GiftName:       DeletedGiftName,
		Amount:         c.Amount,
		Date:           c.Date,
	}
	if contributor, err := s.store.Users().GetByID(ctx, c.UserID); err == nil {
		cert.ContributorName = contributor.Name
	}
	if gift != nil {
		cert.GiftName = gift.Name
		if owner, err := s.store.Users().GetByID(ctx, gift.OwnerID); err == nil {
			cert.OwnerName = owner.Name
		}
	}
	return cert, nil
}

func certificateNumber(id string) string {
	n := strings.ReplaceAll(id, "-", "")
	if len(n) > 8 {
		n = n[:8]
	}
	return strings.ToUpper(n)
}

func (s *ContributionService) giftName(ctx context.Context, giftID string) (string, error) {
	gift, err := s.store.Gifts().GetByID(ctx, giftID)
	if err != nil {
		if models.IsNotFound(err) {
			return DeletedGiftName, nil
		}
		return "", err
	}
	return gift.Name, nil
}

// notify runs after commit. A failing observer is logged and does not undo the pledge.
func (s *ContributionService) notify(ctx context.Context, event ledger.ContributionEvent) {
	s.mu.RLock()
	observers := append([]ledger.Observer(nil), s.observers...)
	s.mu.RUnlock()

	for _, o := range observers {
		if err := o.ContributionAdded(ctx, event); err != nil {
			slog.WarnContext(ctx, "contribution observer failed",
				"contribution_id", event.ContributionID,
				"gift_id", event.GiftID,
				"err", err)
		}
	}
}
