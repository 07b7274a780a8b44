package service

import (
	"context"
	"errors"
	"testing"

	"giftpool/internal/models"
	"giftpool/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type userRepoStub struct {
	getByIDFn    func(context.Context, string) (*models.User, error)
	getByEmailFn func(context.Context, string) (*models.User, error)
	createFn     func(context.Context, *models.User) error
	updateFn     func(context.Context, *models.User) error
	listByIDsFn  func(context.Context, []string) ([]models.User, error)
	listFn       func(context.Context) ([]models.User, error)
}

func (s *userRepoStub) GetByID(ctx context.Context, id string) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getByEmailFn(ctx, email)
}
func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	return s.createFn(ctx, user)
}
func (s *userRepoStub) Update(ctx context.Context, user *models.User) error {
	return s.updateFn(ctx, user)
}
func (s *userRepoStub) ListByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	return s.listByIDsFn(ctx, ids)
}
func (s *userRepoStub) List(ctx context.Context) ([]models.User, error) {
	return s.listFn(ctx)
}

func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		getByIDFn:    func(context.Context, string) (*models.User, error) { return &models.User{}, nil },
		getByEmailFn: func(context.Context, string) (*models.User, error) { return nil, nil },
		createFn:     func(context.Context, *models.User) error { return nil },
		updateFn:     func(context.Context, *models.User) error { return nil },
		listByIDsFn:  func(context.Context, []string) ([]models.User, error) { return nil, nil },
		listFn:       func(context.Context) ([]models.User, error) { return nil, nil },
	}
}

func newTestAuthService(users repository.UserRepository) *AuthService {
	svc := NewAuthService(users)
	svc.hashCost = bcrypt.MinCost
	return svc
}

func strPtr(s string) *string { return &s }

func TestAuthService_Register(t *testing.T) {
	t.Parallel()

	t.Run("stores a bcrypt hash and a normalized email", func(t *testing.T) {
		t.Parallel()
		repo := noopUserRepo()
		var created *models.User
		repo.createFn = func(_ context.Context, u *models.User) error {
			created = u
			return nil
		}
		svc := newTestAuthService(repo)

		user, err := svc.Register(context.Background(), RegisterInput{
			Name: "  Lucía ", Email: " Lucia@Example.COM ", Password: "secreto123",
		})
		require.NoError(t, err)
		require.NotNil(t, created)
		assert.Equal(t, "Lucía", user.Name)
		assert.Equal(t, "lucia@example.com", user.Email)
		assert.NotEqual(t, "secreto123", user.Password)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("secreto123")))
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		t.Parallel()
		svc := newTestAuthService(noopUserRepo())
		for _, in := range []RegisterInput{
			{Name: "", Email: "a@example.com", Password: "secreto123"},
			{Name: "Ana", Email: "not-an-email", Password: "secreto123"},
			{Name: "Ana", Email: "a@example.com", Password: "short1"},
			{Name: "Ana", Email: "a@example.com", Password: "lettersonly"},
		} {
			_, err := svc.Register(context.Background(), in)
			assertValidationError(t, err)
		}
	})

	t.Run("repository error propagates", func(t *testing.T) {
		t.Parallel()
		repoErr := errors.New("db down")
		repo := noopUserRepo()
		repo.getByEmailFn = func(context.Context, string) (*models.User, error) { return nil, repoErr }
		svc := newTestAuthService(repo)
		_, err := svc.Register(context.Background(), RegisterInput{Name: "Ana", Email: "a@example.com", Password: "secreto123"})
		assert.ErrorIs(t, err, repoErr)
	})
}

func TestAuthService_RegisterDuplicateEmailKeepsOriginal(t *testing.T) {
	t.Parallel()
	store := repository.NewMemoryStore()
	svc := newTestAuthService(store.Users())
	ctx := context.Background()

	original, err := svc.Register(ctx, RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "secreto123"})
	require.NoError(t, err)

	_, err = svc.Register(ctx, RegisterInput{Name: "Otra", Email: "ANA@example.com", Password: "distinta456"})
	assertCode(t, models.CodeDuplicateEmail, err)

	stored, err := store.Users().GetByID(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", stored.Name)
	assert.Equal(t, original.Password, stored.Password)

	users, err := store.Users().List(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestAuthService_Login(t *testing.T) {
	t.Parallel()
	store := repository.NewMemoryStore()
	svc := newTestAuthService(store.Users())
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterInput{Name: "Ana", Email: "ana@example.com", Password: "secreto123"})
	require.NoError(t, err)

	user, err := svc.Login(ctx, "Ana@Example.com", "secreto123")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)

	_, err = svc.Login(ctx, "ana@example.com", "wrong-pass1")
	assertCode(t, models.CodeInvalidCredentials, err)

	_, err = svc.Login(ctx, "nobody@example.com", "secreto123")
	assertCode(t, models.CodeInvalidCredentials, err)
}

func TestAuthService_UpdateProfile(t *testing.T) {
	t.Parallel()

	t.Run("changes only the provided fields", func(t *testing.T) {
		t.Parallel()
		repo := noopUserRepo()
		repo.getByIDFn = func(_ context.Context, id string) (*models.User, error) {
			return &models.User{ID: id, Name: "Ana", AvatarURL: "https://img.example.com/a.png", PaymentLink: "https://pay.example.com/old"}, nil
		}
		var saved *models.User
		repo.updateFn = func(_ context.Context, u *models.User) error {
			saved = u
			return nil
		}
		svc := newTestAuthService(repo)

		user, err := svc.UpdateProfile(context.Background(), UpdateProfileInput{
			UserID:      "u1",
			PaymentLink: strPtr("https://pay.example.com/new"),
			AvatarURL:   strPtr(""),
		})
		require.NoError(t, err)
		assert.Equal(t, "Ana", user.Name)
		assert.Equal(t, "https://pay.example.com/new", user.PaymentLink)
		assert.Empty(t, user.AvatarURL, "an empty string clears the avatar")
		require.NotNil(t, saved)
	})

	t.Run("rejects a bad payment link", func(t *testing.T) {
		t.Parallel()
		svc := newTestAuthService(noopUserRepo())
		_, err := svc.UpdateProfile(context.Background(), UpdateProfileInput{
			UserID:      "u1",
			PaymentLink: strPtr("javascript:alert(1)"),
		})
		assertValidationError(t, err)
	})

	t.Run("missing user", func(t *testing.T) {
		t.Parallel()
		repo := noopUserRepo()
		repo.getByIDFn = func(_ context.Context, id string) (*models.User, error) {
			return nil, models.NewNotFoundError("User", id)
		}
		svc := newTestAuthService(repo)
		_, err := svc.UpdateProfile(context.Background(), UpdateProfileInput{UserID: "ghost", Name: strPtr("x")})
		assertCode(t, models.CodeNotFound, err)
	})
}
