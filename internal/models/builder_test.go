package models

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var appErr *AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, CodeValidation, appErr.Code)
}

func TestGiftBuilder_Build(t *testing.T) {
	t.Parallel()

	deadline := time.Now().Add(72 * time.Hour)
	g, err := NewGiftBuilder("owner-1").
		Name("  Cámara instantánea ").
		Description("Para el viaje").
		Price(decimal.NewFromInt(120)).
		Images([]string{"https://img.example.com/1.jpg", " ", "https://img.example.com/2.jpg"}).
		Link("https://shop.example.com/camara").
		Category("Tecnología").
		Deadline(&deadline).
		Build()
	require.NoError(t, err)

	assert.NotEmpty(t, g.ID)
	assert.Len(t, g.Code, 6)
	assert.Equal(t, "Cámara instantánea", g.Name)
	assert.Equal(t, []string{"https://img.example.com/1.jpg", "https://img.example.com/2.jpg"}, g.Images)
	assert.False(t, g.CreatedAt.IsZero())
	assert.True(t, g.Price.Equal(decimal.NewFromInt(120)))
}

func TestGiftBuilder_RequiredFields(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		build func() *GiftBuilder
	}{
		{"missing owner", func() *GiftBuilder {
			return NewGiftBuilder("").Name("x").Price(decimal.NewFromInt(1))
		}},
		{"missing name", func() *GiftBuilder {
			return NewGiftBuilder("o").Price(decimal.NewFromInt(1))
		}},
		{"missing price", func() *GiftBuilder {
			return NewGiftBuilder("o").Name("x")
		}},
		{"zero price", func() *GiftBuilder {
			return NewGiftBuilder("o").Name("x").Price(decimal.Zero)
		}},
		{"three decimals", func() *GiftBuilder {
			return NewGiftBuilder("o").Name("x").Price(decimal.RequireFromString("10.005"))
		}},
		{"unknown category", func() *GiftBuilder {
			return NewGiftBuilder("o").Name("x").Price(decimal.NewFromInt(1)).Category("Coches")
		}},
		{"bad link", func() *GiftBuilder {
			return NewGiftBuilder("o").Name("x").Price(decimal.NewFromInt(1)).Link("ftp://x")
		}},
		{"bad code", func() *GiftBuilder {
			return NewGiftBuilder("o").Name("x").Price(decimal.NewFromInt(1)).Code("no spaces")
		}},
		{"too many images", func() *GiftBuilder {
			return NewGiftBuilder("o").Name("x").Price(decimal.NewFromInt(1)).Images([]string{
				"https://a.io/1", "https://a.io/2", "https://a.io/3",
				"https://a.io/4", "https://a.io/5", "https://a.io/6",
			})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build().Build()
			assertValidationError(t, err)
		})
	}
}

func TestGiftBuilder_NameLengthCountsCharacters(t *testing.T) {
	t.Parallel()

	accented := strings.Repeat("ñ", 200)
	g, err := NewGiftBuilder("o").Name(accented).Price(decimal.NewFromInt(1)).Build()
	require.NoError(t, err)
	assert.Equal(t, accented, g.Name)

	_, err = NewGiftBuilder("o").Name(accented + "a").Price(decimal.NewFromInt(1)).Build()
	assertValidationError(t, err)
}

func TestGiftBuilder_FromKeepsIdentity(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	existing := &Gift{
		ID:        "gift-1",
		OwnerID:   "owner-1",
		Code:      "ABC123",
		Name:      "Old",
		Price:     decimal.NewFromInt(50),
		ImageURL:  "https://img.example.com/legacy.jpg",
		CreatedAt: created,
	}

	g, err := NewGiftBuilder(existing.OwnerID).From(existing).Name("New").Build()
	require.NoError(t, err)
	assert.Equal(t, "gift-1", g.ID)
	assert.Equal(t, "ABC123", g.Code)
	assert.Equal(t, created, g.CreatedAt)
	assert.Equal(t, []string{"https://img.example.com/legacy.jpg"}, g.Images)
	assert.Equal(t, "Old", existing.Name, "builder must not mutate the source gift")
}

func TestGift_NormalizeImages(t *testing.T) {
	t.Parallel()

	legacy := &Gift{ImageURL: "https://img.example.com/a.jpg"}
	legacy.NormalizeImages()
	assert.Equal(t, []string{"https://img.example.com/a.jpg"}, legacy.Images)

	both := &Gift{ImageURL: "https://img.example.com/a.jpg", Images: []string{"https://img.example.com/b.jpg"}}
	both.NormalizeImages()
	assert.Equal(t, []string{"https://img.example.com/b.jpg"}, both.Images)

	empty := &Gift{}
	empty.NormalizeImages()
	assert.NotNil(t, empty.Images)
	assert.Empty(t, empty.Images)
}

func TestNewGiftCode(t *testing.T) {
	t.Parallel()
	for range 50 {
		code := NewGiftCode()
		assert.Regexp(t, `^[A-Z0-9]{6}$`, code)
	}
}
