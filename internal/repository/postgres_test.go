package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"giftpool/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestContributionRepository_ListByGift_Postgres(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewContributionRepository(db)

	date := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "gift_id", "user_id", "amount", "date"}).
		AddRow("c1", "g1", "u1", "30.00", date).
		AddRow("c2", "g1", "u2", "40.50", date.Add(time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "contributions" WHERE gift_id = $1 ORDER BY date ASC, id ASC`)).
		WillReturnRows(rows)

	got, err := repo.ListByGift(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].ID)
	assert.Equal(t, "40.5", got[1].Amount.String())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGiftRepository_GetByID_Postgres(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewGiftRepository(db)

	tests := []struct {
		name         string
		mockBehavior func()
		wantImages   []string
		wantNotFound bool
	}{
		{
			name: "legacy image url",
			mockBehavior: func() {
				rows := sqlmock.NewRows([]string{"id", "owner_id", "code", "name", "price", "images", "image_url"}).
					AddRow("g1", "u1", "ABC123", "Bici", "100.00", nil, "https://img.example.com/old.jpg")
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "gifts" WHERE id = $1 LIMIT $2`)).
					WillReturnRows(rows)
			},
			wantImages: []string{"https://img.example.com/old.jpg"},
		},
		{
			name: "json images",
			mockBehavior: func() {
				rows := sqlmock.NewRows([]string{"id", "owner_id", "code", "name", "price", "images", "image_url"}).
					AddRow("g2", "u1", "ABC124", "Libro", "20.00", []byte(`["https://img.example.com/a.webp"]`), "")
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "gifts" WHERE id = $1 LIMIT $2`)).
					WillReturnRows(rows)
			},
			wantImages: []string{"https://img.example.com/a.webp"},
		},
		{
			name: "not found",
			mockBehavior: func() {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "gifts" WHERE id = $1 LIMIT $2`)).
					WillReturnError(gorm.ErrRecordNotFound)
			},
			wantNotFound: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockBehavior()
			gift, err := repo.GetByID(context.Background(), "g")

			if tt.wantNotFound {
				assert.True(t, models.IsNotFound(err))
			} else if assert.NoError(t, err) {
				assert.Equal(t, tt.wantImages, gift.Images)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestIsUniqueConstraintError(t *testing.T) {
	t.Parallel()

	assert.True(t, isUniqueConstraintError(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isUniqueConstraintError(&pgconn.PgError{Code: "23503"}))
	assert.True(t, isUniqueConstraintError(errors.New("UNIQUE constraint failed: users.email")))
	assert.True(t, isUniqueConstraintError(gorm.ErrDuplicatedKey))
	assert.False(t, isUniqueConstraintError(errors.New("connection reset")))
	assert.False(t, isUniqueConstraintError(nil))
}
