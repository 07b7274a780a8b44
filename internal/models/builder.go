package models

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"giftpool/internal/validation"

	"github.com/shopspring/decimal"
)

// GiftBuilder collects gift fields step by step and only yields a Gift once the
// required ones are present and valid.
type GiftBuilder struct {
	gift     Gift
	priceSet bool
}

// NewGiftBuilder starts a gift owned by ownerID.
func NewGiftBuilder(ownerID string) *GiftBuilder {
	return &GiftBuilder{gift: Gift{OwnerID: ownerID}}
}

// From seeds the builder with an existing gift so an update keeps identity and CreatedAt.
func (b *GiftBuilder) From(existing *Gift) *GiftBuilder {
	b.gift = *existing.Clone()
	b.priceSet = true
	return b
}

func (b *GiftBuilder) ID(id string) *GiftBuilder {
	b.gift.ID = strings.TrimSpace(id)
	return b
}

func (b *GiftBuilder) Code(code string) *GiftBuilder {
	b.gift.Code = strings.TrimSpace(code)
	return b
}

func (b *GiftBuilder) Name(name string) *GiftBuilder {
	b.gift.Name = strings.TrimSpace(name)
	return b
}

func (b *GiftBuilder) Description(description string) *GiftBuilder {
	b.gift.Description = strings.TrimSpace(description)
	return b
}

func (b *GiftBuilder) Price(price decimal.Decimal) *GiftBuilder {
	b.gift.Price = price
	b.priceSet = true
	return b
}

func (b *GiftBuilder) Images(images []string) *GiftBuilder {
	b.gift.Images = nil
	for _, img := range images {
		if img = strings.TrimSpace(img); img != "" {
			b.gift.Images = append(b.gift.Images, img)
		}
	}
	// The list supersedes the legacy single image once written.
	b.gift.ImageURL = ""
	return b
}

func (b *GiftBuilder) Link(link string) *GiftBuilder {
	b.gift.Link = strings.TrimSpace(link)
	return b
}

func (b *GiftBuilder) Category(category string) *GiftBuilder {
	b.gift.Category = strings.TrimSpace(category)
	return b
}

func (b *GiftBuilder) Deadline(deadline *time.Time) *GiftBuilder {
	b.gift.Deadline = deadline
	return b
}

func (b *GiftBuilder) CreatedAt(t time.Time) *GiftBuilder {
	b.gift.CreatedAt = t
	return b
}

// Build validates the collected fields and returns the gift.
// A missing ID or code is generated.
func (b *GiftBuilder) Build() (*Gift, error) {
	g := b.gift.Clone()

	if g.OwnerID == "" {
		return nil, NewValidationError("owner is required")
	}
	if g.Name == "" {
		return nil, NewValidationError("name is required")
	}
	if utf8.RuneCountInString(g.Name) > 200 {
		return nil, NewValidationError("name must not exceed 200 characters")
	}
	if !b.priceSet {
		return nil, NewValidationError("price is required")
	}
	if err := ValidateMoney("price", g.Price); err != nil {
		return nil, err
	}
	if g.Code == "" {
		g.Code = NewGiftCode()
	} else if err := validation.ValidateGiftCode(g.Code); err != nil {
		return nil, NewValidationError(err.Error())
	}
	if g.Category != "" && !IsCategory(g.Category) {
		return nil, NewValidationError(fmt.Sprintf("unknown category %q", g.Category))
	}
	if g.Link != "" {
		if err := validation.ValidateURL("link", g.Link); err != nil {
			return nil, NewValidationError(err.Error())
		}
	}

	g.NormalizeImages()
	if len(g.Images) > MaxGiftImages {
		return nil, NewValidationError(fmt.Sprintf("a gift can have at most %d images", MaxGiftImages))
	}
	for _, img := range g.Images {
		if err := validation.ValidateURL("image", img); err != nil {
			return nil, NewValidationError(err.Error())
		}
	}

	if g.ID == "" {
		g.ID = NewID()
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	return g, nil
}
