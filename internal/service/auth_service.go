// Package service holds the application use cases: accounts, gifts and the contribution ledger.
package service

import (
	"context"
	"strings"
	"sync"

	"giftpool/internal/models"
	"giftpool/internal/repository"
	"giftpool/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

type AuthService struct {
	users    repository.UserRepository
	hashCost int

	dummyOnce sync.Once
	dummyHash []byte
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// UpdateProfileInput carries the profile fields to change. Nil fields are left as they are;
// an empty string clears an optional field.
type UpdateProfileInput struct {
	UserID      string
	Name        *string
	AvatarURL   *string
	PaymentLink *string
}

func NewAuthService(users repository.UserRepository) *AuthService {
	return &AuthService{users: users, hashCost: bcrypt.DefaultCost}
}

// WithHashCost sets the bcrypt cost for passwords hashed from now on.
func (s *AuthService) WithHashCost(cost int) *AuthService {
	s.hashCost = cost
	return s
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	name := strings.TrimSpace(in.Name)
	email := models.NormalizeEmail(in.Email)

	if name == "" || email == "" || in.Password == "" {
		return nil, models.NewValidationError("Name, email, and password are required")
	}
	if err := validation.ValidateName(name); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidateEmail(email); err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	if err := validation.ValidatePassword(in.Password); err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, models.NewDuplicateEmailError(email)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	user := &models.User{
		Name:     name,
		Email:    email,
		Password: string(hashed),
	}
	// A concurrent registration can still win the race; Create maps the unique violation.
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login returns the user whose email and password both match.
// Unknown emails and wrong passwords fail the same way and cost one bcrypt comparison each.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
		return nil, models.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, models.NewInvalidCredentialsError()
	}
	return user, nil
}

func (s *AuthService) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *AuthService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	user, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := validation.ValidateName(name); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		user.Name = name
	}
	if in.AvatarURL != nil {
		avatar := strings.TrimSpace(*in.AvatarURL)
		if avatar != "" {
			if err := validation.ValidateURL("avatar_url", avatar); err != nil {
				return nil, models.NewValidationError(err.Error())
			}
		}
		user.AvatarURL = avatar
	}
	if in.PaymentLink != nil {
		link := strings.TrimSpace(*in.PaymentLink)
		if link != "" {
			if err := validation.ValidateURL("payment_link", link); err != nil {
				return nil, models.NewValidationError(err.Error())
			}
		}
		user.PaymentLink = link
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("giftpool-timing-equalizer"), s.hashCost)
	})
	return s.dummyHash
}
