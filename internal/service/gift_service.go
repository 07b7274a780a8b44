package service

import (
	"context"
	"math"
	"strings"
	"time"

	"giftpool/internal/ledger"
	"giftpool/internal/models"
	"giftpool/internal/observability"
	"giftpool/internal/repository"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
)

// Browse filters.
const (
	FilterAll    = "all"
	FilterAlmost = "almost"
	FilterRecent = "recent"
)

const recentGiftDays = 7

var almostFundedFrom = decimal.NewFromInt(80)

type GiftService struct {
	store repository.Store
	guard ledgerGuard
	now   func() time.Time
}

// SaveGiftInput is the full set of editable gift fields. An empty ID creates a gift.
// On update an empty Code keeps the stored one and nil Images keeps the stored photos.
type SaveGiftInput struct {
	ID          string
	OwnerID     string
	Code        string
	Name        string
	Description string
	Price       decimal.Decimal
	Images      []string
	Link        string
	Category    string
	Deadline    *time.Time
}

type BrowseInput struct {
	ViewerID string
	Search   string
	Filter   string
}

// GiftView is a gift as clients render it.
type GiftView struct {
	models.Gift
	Progress ledger.Progress   `json:"progress"`
	DaysLeft *int              `json:"days_left"`
	Owner    models.UserSummary `json:"owner"`
}

// GiftContribution is one pledge on a gift's detail page.
type GiftContribution struct {
	models.Contribution
	Contributor models.UserSummary `json:"contributor"`
}

func NewGiftService(store repository.Store, locker ledger.Locker, lockTimeout time.Duration) *GiftService {
	return &GiftService{
		store: store,
		guard: ledgerGuard{store: store, locker: locker, timeout: lockTimeout},
		now:   time.Now,
	}
}

func (s *GiftService) SaveGift(ctx context.Context, in SaveGiftInput) (_ *models.Gift, err error) {
	span, ctx := observability.NewSpan(ctx, "gift.save")
	defer span.Finish(&err)
	span.AddAttributes(attribute.String("gift.id", in.ID), attribute.String("user.id", in.OwnerID))

	if in.OwnerID == "" {
		return nil, models.NewUnauthorizedError("Authentication required")
	}

	if in.ID == "" {
		gift, err := applyGiftInput(models.NewGiftBuilder(in.OwnerID), in).Build()
		if err != nil {
			return nil, err
		}
		if err := s.store.Gifts().Save(ctx, gift); err != nil {
			return nil, err
		}
		return gift, nil
	}

	var saved *models.Gift
	err = s.guard.run(ctx, in.ID, func(tx repository.Store) error {
		existing, err := tx.Gifts().GetByID(ctx, in.ID)
		if err != nil && !models.IsNotFound(err) {
			return err
		}

		if existing == nil {
			gift, err := applyGiftInput(models.NewGiftBuilder(in.OwnerID).ID(in.ID), in).Build()
			if err != nil {
				return err
			}
			saved = gift
			return tx.Gifts().Save(ctx, gift)
		}

		if existing.OwnerID != in.OwnerID {
			return models.NewForbiddenError("You can only edit your own gifts")
		}

		gift, err := applyGiftInput(models.NewGiftBuilder(in.OwnerID).From(existing), in).Build()
		if err != nil {
			return err
		}

		contributions, err := tx.Contributions().ListByGift(ctx, existing.ID)
		if err != nil {
			return err
		}
		if err := ledger.CheckPrice(ledger.ProgressFor(existing, contributions), gift.Price); err != nil {
			return err
		}

		saved = gift
		return tx.Gifts().Save(ctx, gift)
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func applyGiftInput(b *models.GiftBuilder, in SaveGiftInput) *models.GiftBuilder {
	if strings.TrimSpace(in.Code) != "" {
		b.Code(in.Code)
	}
	b.Name(in.Name).
		Description(in.Description).
		Price(in.Price).
		Link(in.Link).
		Category(in.Category).
		Deadline(in.Deadline)
	if in.Images != nil {
		b.Images(in.Images)
	}
	return b
}

// DeleteGift removes the gift and every contribution to it. Only the owner may delete.
func (s *GiftService) DeleteGift(ctx context.Context, giftID, userID string) (err error) {
	span, ctx := observability.NewSpan(ctx, "gift.delete")
	defer span.Finish(&err)
	span.AddAttributes(attribute.String("gift.id", giftID), attribute.String("user.id", userID))

	return s.guard.run(ctx, giftID, func(tx repository.Store) error {
		gift, err := tx.Gifts().GetByID(ctx, giftID)
		if err != nil {
			return err
		}
		if gift.OwnerID != userID {
			return models.NewForbiddenError("You can only delete your own gifts")
		}
		return tx.Gifts().Delete(ctx, giftID)
	})
}

// Progress returns the funding state of giftID. An unknown gift yields all zeros.
func (s *GiftService) Progress(ctx context.Context, giftID string) (ledger.Progress, error) {
	gift, err := s.store.Gifts().GetByID(ctx, giftID)
	if err != nil {
		if models.IsNotFound(err) {
			return ledger.Progress{}, nil
		}
		return ledger.Progress{}, err
	}
	contributions, err := s.store.Contributions().ListByGift(ctx, giftID)
	if err != nil {
		return ledger.Progress{}, err
	}
	return ledger.ProgressFor(gift, contributions), nil
}

func (s *GiftService) GetGift(ctx context.Context, giftID string) (*GiftView, error) {
	gift, err := s.store.Gifts().GetByID(ctx, giftID)
	if err != nil {
		return nil, err
	}
	contributions, err := s.store.Contributions().ListByGift(ctx, giftID)
	if err != nil {
		return nil, err
	}
	owners, err := s.ownerSummaries(ctx, []models.Gift{*gift})
	if err != nil {
		return nil, err
	}
	view := s.view(gift, contributions, owners)
	return &view, nil
}

func (s *GiftService) ListMine(ctx context.Context, ownerID string) ([]GiftView, error) {
	gifts, err := s.store.Gifts().ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, gifts)
}

// Browse lists other people's gifts for the dashboard.
func (s *GiftService) Browse(ctx context.Context, in BrowseInput) ([]GiftView, error) {
	filter := strings.TrimSpace(in.Filter)
	if filter == "" {
		filter = FilterAll
	}
	if filter != FilterAll && filter != FilterAlmost && filter != FilterRecent && !models.IsCategory(filter) {
		return nil, models.NewValidationError("unknown filter " + filter)
	}

	gifts, err := s.store.Gifts().List(ctx)
	if err != nil {
		return nil, err
	}
	candidates := gifts[:0]
	for _, g := range gifts {
		if g.OwnerID != in.ViewerID {
			candidates = append(candidates, g)
		}
	}

	views, err := s.views(ctx, candidates)
	if err != nil {
		return nil, err
	}

	search := strings.ToLower(strings.TrimSpace(in.Search))
	now := s.now()
	out := []GiftView{}
	for _, v := range views {
		if search != "" &&
			!strings.Contains(strings.ToLower(v.Name), search) &&
			!strings.Contains(strings.ToLower(v.Code), search) {
			continue
		}
		if !matchesFilter(v, filter, now) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func matchesFilter(v GiftView, filter string, now time.Time) bool {
	switch filter {
	case FilterAll:
		return true
	case FilterAlmost:
		p := v.Progress.Percentage
		return p.GreaterThanOrEqual(almostFundedFrom) && p.LessThan(decimal.NewFromInt(100))
	case FilterRecent:
		age := math.Ceil(math.Abs(now.Sub(v.CreatedAt).Hours()) / 24)
		return age <= recentGiftDays
	default:
		return v.Category == filter
	}
}

// ListContributions returns the pledges on giftID, oldest first, with contributor names.
func (s *GiftService) ListContributions(ctx context.Context, giftID string) ([]GiftContribution, error) {
	if _, err := s.store.Gifts().GetByID(ctx, giftID); err != nil {
		return nil, err
	}
	contributions, err := s.store.Contributions().ListByGift(ctx, giftID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(contributions))
	for _, c := range contributions {
		ids = append(ids, c.UserID)
	}
	users, err := s.store.Users().ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]models.UserSummary, len(users))
	for i := range users {
		byID[users[i].ID] = users[i].Summary()
	}

	out := make([]GiftContribution, 0, len(contributions))
	for _, c := range contributions {
		out = append(out, GiftContribution{Contribution: c, Contributor: byID[c.UserID]})
	}
	return out, nil
}

func (s *GiftService) views(ctx context.Context, gifts []models.Gift) ([]GiftView, error) {
	out := make([]GiftView, 0, len(gifts))
	if len(gifts) == 0 {
		return out, nil
	}
	contributions, err := s.store.Contributions().List(ctx)
	if err != nil {
		return nil, err
	}
	owners, err := s.ownerSummaries(ctx, gifts)
	if err != nil {
		return nil, err
	}
	for i := range gifts {
		out = append(out, s.view(&gifts[i], contributions, owners))
	}
	return out, nil
}

func (s *GiftService) view(gift *models.Gift, contributions []models.Contribution, owners map[string]models.UserSummary) GiftView {
	return GiftView{
		Gift:     *gift,
		Progress: ledger.ProgressFor(gift, contributions),
		DaysLeft: daysLeft(gift.Deadline, s.now()),
		Owner:    owners[gift.OwnerID],
	}
}

func (s *GiftService) ownerSummaries(ctx context.Context, gifts []models.Gift) (map[string]models.UserSummary, error) {
	ids := make([]string, 0, len(gifts))
	for _, g := range gifts {
		ids = append(ids, g.OwnerID)
	}
	users, err := s.store.Users().ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.UserSummary, len(users))
	for i := range users {
		out[users[i].ID] = users[i].Summary()
	}
	return out, nil
}

// daysLeft is the number of started days until deadline; negative once it has passed.
func daysLeft(deadline *time.Time, now time.Time) *int {
	if deadline == nil {
		return nil
	}
	days := int(math.Ceil(deadline.Sub(now).Hours() / 24))
	return &days
}
