package database

import (
	"testing"

	"giftpool/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestPersistentModels_LedgerTables(t *testing.T) {
	got := PersistentModels()
	if assert.Len(t, got, 3) {
		assert.IsType(t, &models.User{}, got[0])
		assert.IsType(t, &models.Gift{}, got[1])
		assert.IsType(t, &models.Contribution{}, got[2])
	}
}
