package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"task-board/internal/auth"
	"task-board/internal/domain"
	"task-board/internal/repository"
)

// ErrInvalidCredentials indicates that provided login credentials are incorrect.
// Unknown emails and wrong passwords both map to it.
var ErrInvalidCredentials = errors.New("invalid credentials")

// UserService describes user lookup and sign-in operations.
type UserService interface {
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
	EnsureUser(ctx context.Context, email, password string) (*domain.User, bool, error)
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

type userService struct {
	users repository.UserRepository
}

func NewUserService(users repository.UserRepository) UserService {
	return &userService{users: users}
}

func (s *userService) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			auth.RejectPassword(password)
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !auth.VerifyPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return sanitizeUser(user), nil
}

// EnsureUser creates the account unless the email is already registered.
// The boolean result reports whether a new user was created.
func (s *userService) EnsureUser(ctx context.Context, email, password string) (*domain.User, bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, false, domain.NewValidationError("email is required")
	}
	if password == "" {
		return nil, false, domain.NewValidationError("password is required")
	}

	existing, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return sanitizeUser(existing), false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, false, err
	}

	user := &domain.User{
		Email:        email,
		PasswordHash: hash,
	}
	if _, err := s.users.Create(ctx, user); err != nil {
		return nil, false, fmt.Errorf("create user %s: %w", email, err)
	}

	return sanitizeUser(user), true, nil
}

func (s *userService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	return &domain.User{
		ID:        user.ID,
		Email:     user.Email,
		CreatedAt: user.CreatedAt,
	}
}
