package seed

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"giftpool/internal/models"
	"giftpool/internal/service"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed presets/*.yaml
var presetFS embed.FS

// Preset is a hand-written scenario: named accounts, their gifts and who pledged what.
type Preset struct {
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Users       []PresetUser `yaml:"users"`
	Gifts       []PresetGift `yaml:"gifts"`
}

type PresetUser struct {
	Key         string `yaml:"key"`
	Name        string `yaml:"name"`
	Email       string `yaml:"email"`
	PaymentLink string `yaml:"payment_link"`
}

type PresetGift struct {
	Owner         string               `yaml:"owner"`
	Code          string               `yaml:"code"`
	Name          string               `yaml:"name"`
	Description   string               `yaml:"description"`
	Price         string               `yaml:"price"`
	Category      string               `yaml:"category"`
	Link          string               `yaml:"link"`
	Images        []string             `yaml:"images"`
	DeadlineDays  *int                 `yaml:"deadline_days"`
	Contributions []PresetContribution `yaml:"contributions"`
}

type PresetContribution struct {
	From   string `yaml:"from"`
	Amount string `yaml:"amount"`
}

// LoadPresets parses every embedded preset, keyed by name.
func LoadPresets() (map[string]*Preset, error) {
	entries, err := presetFS.ReadDir("presets")
	if err != nil {
		return nil, err
	}
	out := make(map[string]*Preset, len(entries))
	for _, e := range entries {
		raw, err := presetFS.ReadFile(path.Join("presets", e.Name()))
		if err != nil {
			return nil, err
		}
		var p Preset
		if err := yaml.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("preset %s: %w", e.Name(), err)
		}
		if p.Name == "" {
			p.Name = strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		}
		out[p.Name] = &p
	}
	return out, nil
}

// PresetNames lists the embedded presets in name order.
func PresetNames() ([]string, error) {
	presets, err := LoadPresets()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Validate checks references and that no gift is pledged past its price.
func (p *Preset) Validate() error {
	var errs []error
	users := make(map[string]bool, len(p.Users))
	for _, u := range p.Users {
		if u.Key == "" || u.Email == "" {
			errs = append(errs, fmt.Errorf("user %q needs a key and an email", u.Name))
			continue
		}
		if users[u.Key] {
			errs = append(errs, fmt.Errorf("duplicate user key %q", u.Key))
		}
		users[u.Key] = true
	}

	for _, g := range p.Gifts {
		if !users[g.Owner] {
			errs = append(errs, fmt.Errorf("gift %q: unknown owner %q", g.Name, g.Owner))
		}
		price, err := decimal.NewFromString(g.Price)
		if err != nil {
			errs = append(errs, fmt.Errorf("gift %q: bad price %q", g.Name, g.Price))
			continue
		}
		if g.Category != "" && !models.IsCategory(g.Category) {
			errs = append(errs, fmt.Errorf("gift %q: unknown category %q", g.Name, g.Category))
		}
		total := decimal.Zero
		for _, c := range g.Contributions {
			if !users[c.From] {
				errs = append(errs, fmt.Errorf("gift %q: unknown contributor %q", g.Name, c.From))
			}
			amount, err := decimal.NewFromString(c.Amount)
			if err != nil || !amount.IsPositive() {
				errs = append(errs, fmt.Errorf("gift %q: bad amount %q", g.Name, c.Amount))
				continue
			}
			total = total.Add(amount)
		}
		if total.GreaterThan(price) {
			errs = append(errs, fmt.Errorf("gift %q: pledges %s exceed price %s", g.Name, total, price))
		}
	}
	return errors.Join(errs...)
}

// ApplyPreset creates the accounts, gifts and pledges of the named preset.
// Accounts whose email already exists are reused.
func (s *Seeder) ApplyPreset(ctx context.Context, name, password string) (*Summary, error) {
	presets, err := LoadPresets()
	if err != nil {
		return nil, err
	}
	p, ok := presets[name]
	if !ok {
		return nil, fmt.Errorf("unknown preset %q", name)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("preset %s: %w", name, err)
	}
	if password == "" {
		password = DefaultPassword
	}

	sum := &Summary{}
	ids := make(map[string]string, len(p.Users))
	for _, pu := range p.Users {
		u, err := s.auth.Register(ctx, service.RegisterInput{Name: pu.Name, Email: pu.Email, Password: password})
		switch {
		case models.ErrorCode(err) == models.CodeDuplicateEmail:
			u, err = s.store.Users().GetByEmail(ctx, models.NormalizeEmail(pu.Email))
			if err != nil || u == nil {
				return sum, fmt.Errorf("reuse user %s: %w", pu.Email, err)
			}
		case err != nil:
			return sum, fmt.Errorf("user %s: %w", pu.Email, err)
		default:
			sum.Users++
		}
		if pu.PaymentLink != "" {
			link := pu.PaymentLink
			if _, err := s.auth.UpdateProfile(ctx, service.UpdateProfileInput{UserID: u.ID, PaymentLink: &link}); err != nil {
				return sum, fmt.Errorf("user %s: %w", pu.Email, err)
			}
		}
		ids[pu.Key] = u.ID
	}

	for _, pg := range p.Gifts {
		in := service.SaveGiftInput{
			OwnerID:     ids[pg.Owner],
			Code:        pg.Code,
			Name:        pg.Name,
			Description: pg.Description,
			Price:       decimal.RequireFromString(pg.Price),
			Category:    pg.Category,
			Link:        pg.Link,
			Images:      pg.Images,
		}
		if pg.DeadlineDays != nil {
			deadline := time.Now().AddDate(0, 0, *pg.DeadlineDays).UTC().Truncate(24 * time.Hour)
			in.Deadline = &deadline
		}
		gift, err := s.gifts.SaveGift(ctx, in)
		if err != nil {
			return sum, fmt.Errorf("gift %s: %w", pg.Name, err)
		}
		sum.Gifts++

		for _, pc := range pg.Contributions {
			_, err := s.contributions.AddContribution(ctx, service.AddContributionInput{
				GiftID: gift.ID,
				UserID: ids[pc.From],
				Amount: decimal.RequireFromString(pc.Amount),
			})
			if err != nil {
				return sum, fmt.Errorf("gift %s: pledge from %s: %w", pg.Name, pc.From, err)
			}
			sum.Contributions++
		}
	}
	return sum, nil
}
