package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"giftpool/internal/ledger"
	"giftpool/internal/models"

	"github.com/shopspring/decimal"
)

// MemoryStore is an in-process Store used by tests, the seed dry-run and single-node demos.
// Every read returns copies; callers never share state with the store.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]*models.User
	gifts         map[string]*models.Gift
	contributions map[string]*models.Contribution
	giftLocks     *ledger.LocalLocker
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]*models.User),
		gifts:         make(map[string]*models.Gift),
		contributions: make(map[string]*models.Contribution),
		giftLocks:     ledger.NewLocalLocker(),
	}
}

func (s *MemoryStore) Users() UserRepository                 { return memoryUsers{s} }
func (s *MemoryStore) Gifts() GiftRepository                 { return memoryGifts{s} }
func (s *MemoryStore) Contributions() ContributionRepository { return memoryContributions{s} }

// WithinGift holds the gift's keyed mutex for the duration of fn.
// There is no rollback: fn must validate before it writes.
func (s *MemoryStore) WithinGift(ctx context.Context, giftID string, fn func(tx Store) error) error {
	unlock, err := s.giftLocks.Lock(ctx, giftID)
	if err != nil {
		return err
	}
	defer unlock()
	return fn(s)
}

type memoryUsers struct{ s *MemoryStore }

func (r memoryUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, models.NewNotFoundError("User", id)
	}
	out := *u
	return &out, nil
}

func (r memoryUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	email = models.NormalizeEmail(email)
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, u := range r.s.users {
		if u.Email == email {
			out := *u
			return &out, nil
		}
	}
	return nil, nil
}

func (r memoryUsers) Create(_ context.Context, user *models.User) error {
	if err := user.BeforeCreate(nil); err != nil {
		return models.NewInternalError(err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == user.Email {
			return models.NewDuplicateEmailError(user.Email)
		}
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	stored := *user
	r.s.users[user.ID] = &stored
	return nil
}

func (r memoryUsers) Update(_ context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	existing, ok := r.s.users[user.ID]
	if !ok {
		return models.NewNotFoundError("User", user.ID)
	}
	stored := *existing
	stored.Name = user.Name
	stored.AvatarURL = user.AvatarURL
	stored.PaymentLink = user.PaymentLink
	stored.UpdatedAt = time.Now().UTC()
	r.s.users[user.ID] = &stored

	user.Email, user.Password = existing.Email, existing.Password
	user.CreatedAt, user.UpdatedAt = existing.CreatedAt, stored.UpdatedAt
	return nil
}

func (r memoryUsers) ListByIDs(_ context.Context, ids []string) ([]models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []models.User{}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, *u)
		}
	}
	return out, nil
}

func (r memoryUsers) List(_ context.Context) ([]models.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := make([]models.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

type memoryGifts struct{ s *MemoryStore }

func (r memoryGifts) GetByID(_ context.Context, id string) (*models.Gift, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	g, ok := r.s.gifts[id]
	if !ok {
		return nil, models.NewNotFoundError("Gift", id)
	}
	return g.Clone(), nil
}

func (r memoryGifts) List(_ context.Context) ([]models.Gift, error) {
	return r.filter(func(*models.Gift) bool { return true }), nil
}

func (r memoryGifts) ListByOwner(_ context.Context, ownerID string) ([]models.Gift, error) {
	return r.filter(func(g *models.Gift) bool { return g.OwnerID == ownerID }), nil
}

func (r memoryGifts) filter(keep func(*models.Gift) bool) []models.Gift {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []models.Gift{}
	for _, g := range r.s.gifts {
		if keep(g) {
			out = append(out, *g.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (r memoryGifts) Save(_ context.Context, gift *models.Gift) error {
	if err := gift.BeforeSave(nil); err != nil {
		return models.NewInternalError(err)
	}
	gift.NormalizeImages()
	now := time.Now().UTC()
	if gift.CreatedAt.IsZero() {
		gift.CreatedAt = now
	}
	gift.UpdatedAt = now

	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.gifts[gift.ID] = gift.Clone()
	return nil
}

func (r memoryGifts) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.gifts[id]; !ok {
		return models.NewNotFoundError("Gift", id)
	}
	for cid, c := range r.s.contributions {
		if c.GiftID == id {
			delete(r.s.contributions, cid)
		}
	}
	delete(r.s.gifts, id)
	return nil
}

type memoryContributions struct{ s *MemoryStore }

func (r memoryContributions) GetByID(_ context.Context, id string) (*models.Contribution, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	c, ok := r.s.contributions[id]
	if !ok {
		return nil, models.NewNotFoundError("Contribution", id)
	}
	out := *c
	return &out, nil
}

func (r memoryContributions) List(_ context.Context) ([]models.Contribution, error) {
	return r.filter(func(*models.Contribution) bool { return true }, false), nil
}

func (r memoryContributions) ListByGift(_ context.Context, giftID string) ([]models.Contribution, error) {
	return r.filter(func(c *models.Contribution) bool { return c.GiftID == giftID }, false), nil
}

func (r memoryContributions) ListByUser(_ context.Context, userID string) ([]models.Contribution, error) {
	return r.filter(func(c *models.Contribution) bool { return c.UserID == userID }, true), nil
}

func (r memoryContributions) filter(keep func(*models.Contribution) bool, newestFirst bool) []models.Contribution {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []models.Contribution{}
	for _, c := range r.s.contributions {
		if keep(c) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].ID < out[j].ID
		}
		if newestFirst {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

func (r memoryContributions) Create(_ context.Context, c *models.Contribution) error {
	if err := c.BeforeCreate(nil); err != nil {
		return models.NewInternalError(err)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored := *c
	r.s.contributions[c.ID] = &stored
	return nil
}

func (r memoryContributions) UpdateAmount(_ context.Context, id string, amount decimal.Decimal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.contributions[id]
	if !ok {
		return models.NewNotFoundError("Contribution", id)
	}
	c.Amount = amount
	return nil
}

func (r memoryContributions) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.contributions[id]; !ok {
		return models.NewNotFoundError("Contribution", id)
	}
	delete(r.s.contributions, id)
	return nil
}
