package seed

import (
	"fmt"
	"strings"
	"time"

	"giftpool/internal/models"
	"giftpool/internal/service"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/shopspring/decimal"
)

// Factory builds realistic inputs for the account, gift and contribution services.
// It does not persist anything; the Seeder runs the inputs through the services so
// every generated row passes the same validation and ledger checks as user traffic.
type Factory struct {
	fake *gofakeit.Faker
	now  func() time.Time
	seq  int
}

// NewFactory returns a Factory. A non-zero seed makes the generated data repeatable.
func NewFactory(seed int64) *Factory {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Factory{fake: gofakeit.New(seed), now: time.Now}
}

// User builds a registration with a unique email.
func (f *Factory) User(password string) service.RegisterInput {
	f.seq++
	first := f.fake.FirstName()
	last := f.fake.LastName()
	return service.RegisterInput{
		Name:     first + " " + last,
		Email:    strings.ToLower(fmt.Sprintf("%s.%s%d@example.com", asciiOnly(first), asciiOnly(last), f.seq)),
		Password: password,
	}
}

// Gift builds a gift for ownerID. Roughly half get a deadline within the next 90 days.
func (f *Factory) Gift(ownerID string) service.SaveGiftInput {
	in := service.SaveGiftInput{
		OwnerID:     ownerID,
		Name:        f.fake.ProductName(),
		Description: f.fake.Sentence(12),
		Price:       decimal.NewFromFloat(f.fake.Float64Range(15, 600)).Round(models.MoneyPlaces),
		Category:    models.Categories[f.fake.Number(0, len(models.Categories)-1)],
		Link:        fmt.Sprintf("https://tienda.example.com/p/%s", f.fake.UUID()),
		Images:      []string{fmt.Sprintf("https://picsum.photos/seed/%s/800/800", f.fake.UUID())},
	}
	if f.fake.Bool() {
		deadline := f.now().AddDate(0, 0, f.fake.Number(1, 90)).UTC().Truncate(24 * time.Hour)
		in.Deadline = &deadline
	}
	return in
}

// Amount picks a pledge that never exceeds remaining. About one in ten pledges
// completes the gift.
func (f *Factory) Amount(remaining decimal.Decimal) decimal.Decimal {
	minimum := decimal.New(1, -models.MoneyPlaces)
	if remaining.LessThanOrEqual(minimum) {
		return remaining
	}
	if f.fake.Number(1, 10) == 1 {
		return remaining
	}
	share := decimal.NewFromFloat(f.fake.Float64Range(0.05, 0.6))
	amount := remaining.Mul(share).RoundDown(models.MoneyPlaces)
	if amount.LessThan(minimum) {
		return minimum
	}
	return amount
}

// Pick returns a random index in [0, n).
func (f *Factory) Pick(n int) int {
	return f.fake.Number(0, n-1)
}

func asciiOnly(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "user"
	}
	return b.String()
}
