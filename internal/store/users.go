package store

import (
	"context"
	"strings"

	"storefront/internal/models"
)

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	err := s.Pool.QueryRow(ctx, `
		INSERT INTO users (id, email, password_hash, name, role)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at
	`, user.ID, strings.ToLower(user.Email), user.PasswordHash, user.Name, user.Role).Scan(&user.CreatedAt)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.Pool.QueryRow(ctx, `
		SELECT id::text, email, password_hash, name, role, created_at
		FROM users WHERE email=$1
	`, strings.ToLower(email)).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}
