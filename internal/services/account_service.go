package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/auth"
	"storefront/internal/logger"
	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type AccountService struct {
	Store  UserStore
	Tokens *auth.Tokens
	Log    logger.Logger
}

type Session struct {
	Token string
	User  *models.User
}

// Register always creates plain users; admins are promoted in the database.
func (s *AccountService) Register(ctx context.Context, email, password, name string) (*Session, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &models.User{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		Name:         strings.TrimSpace(name),
		Role:         models.RoleUser,
	}
	if err := s.Store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.Log.Info("user registered", zap.String("user_id", user.ID))
	return s.session(user)
}

func (s *AccountService) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.Store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return s.session(user)
}

func (s *AccountService) session(user *models.User) (*Session, error) {
	token, err := s.Tokens.Issue(user)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, User: user}, nil
}
