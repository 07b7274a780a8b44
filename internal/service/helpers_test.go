package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"giftpool/internal/models"
	"giftpool/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// assertCode asserts that err is an AppError with the given code.
func assertCode(t *testing.T, code string, err error) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code, appErr.Message)
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertCode(t, models.CodeValidation, err)
}

func createUser(t *testing.T, store repository.Store, name string) *models.User {
	t.Helper()
	u := &models.User{Name: name, Email: name + "@example.com", Password: "x"}
	require.NoError(t, store.Users().Create(context.Background(), u))
	return u
}

func createGift(t *testing.T, store repository.Store, ownerID, name, price string) *models.Gift {
	t.Helper()
	g, err := models.NewGiftBuilder(ownerID).Name(name).Price(money(price)).Build()
	require.NoError(t, err)
	require.NoError(t, store.Gifts().Save(context.Background(), g))
	return g
}

func addContribution(t *testing.T, store repository.Store, giftID, userID, amount string) *models.Contribution {
	t.Helper()
	c := &models.Contribution{GiftID: giftID, UserID: userID, Amount: money(amount)}
	require.NoError(t, store.Contributions().Create(context.Background(), c))
	return c
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
