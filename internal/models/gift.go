package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MaxGiftImages is the most photos a gift may carry.
const MaxGiftImages = 5

// Gift is a wished-for item with a funding goal owned by one user.
type Gift struct {
	ID          string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OwnerID     string          `gorm:"type:varchar(36);not null;index" json:"owner_id"`
	Code        string          `gorm:"size:16;not null;index" json:"code"`
	Name        string          `gorm:"size:200;not null" json:"name"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price"`
	// ImagesJSON is the persisted form of Images.
	ImagesJSON datatypes.JSON `gorm:"column:images" json:"-"`
	Images     []string       `gorm:"-" json:"images"`
	// ImageURL is the single-image field older records were written with.
	ImageURL  string     `gorm:"column:image_url;size:1024" json:"image_url,omitempty"`
	Link      string     `gorm:"size:1024" json:"link,omitempty"`
	Category  string     `gorm:"size:32;index" json:"category,omitempty"`
	Deadline  *time.Time `json:"deadline,omitempty"`
	CreatedAt time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NormalizeImages applies the read-time migration from the legacy single ImageURL.
func (g *Gift) NormalizeImages() {
	if len(g.Images) == 0 && g.ImageURL != "" {
		g.Images = []string{g.ImageURL}
	}
	if g.Images == nil {
		g.Images = []string{}
	}
}

// BeforeSave writes Images into the JSON column.
func (g *Gift) BeforeSave(_ *gorm.DB) error {
	if g.ID == "" {
		g.ID = NewID()
	}
	images := g.Images
	if images == nil {
		images = []string{}
	}
	raw, err := json.Marshal(images)
	if err != nil {
		return err
	}
	g.ImagesJSON = datatypes.JSON(raw)
	return nil
}

// AfterFind decodes the JSON column and normalizes legacy rows.
func (g *Gift) AfterFind(_ *gorm.DB) error {
	g.Images = nil
	if len(g.ImagesJSON) > 0 && string(g.ImagesJSON) != "null" {
		if err := json.Unmarshal(g.ImagesJSON, &g.Images); err != nil {
			return err
		}
	}
	g.NormalizeImages()
	return nil
}

// Clone returns a deep copy, safe to hand out of an in-memory store.
func (g *Gift) Clone() *Gift {
	out := *g
	out.Images = append([]string(nil), g.Images...)
	if g.ImagesJSON != nil {
		out.ImagesJSON = append(datatypes.JSON(nil), g.ImagesJSON...)
	}
	if g.Deadline != nil {
		d := *g.Deadline
		out.Deadline = &d
	}
	return &out
}

// Contribution is a monetary pledge by one user toward one gift.
// Date is set at creation and never changes, even when Amount is edited.
type Contribution struct {
	ID     string          `gorm:"primaryKey;type:varchar(36)" json:"id"`
	GiftID string          `gorm:"type:varchar(36);not null;index" json:"gift_id"`
	UserID string          `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Amount decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Date   time.Time       `gorm:"not null;index" json:"date"`
}

// BeforeCreate assigns an ID and date when the caller did not.
func (c *Contribution) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = NewID()
	}
	if c.Date.IsZero() {
		c.Date = time.Now().UTC()
	}
	return nil
}
