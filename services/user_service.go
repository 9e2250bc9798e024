package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"smokeFreeAPI/internal/user"
)

var ErrUserNotFound = errors.New("user not found")

type UserService struct {
	db *pgxpool.Pool
}

func NewUserService(db *pgxpool.Pool) *UserService {
	return &UserService{db: db}
}

// EnsureUser returns the internal id for clerkID, creating the user on
// first sight. Safe to call concurrently.
func (s *UserService) EnsureUser(ctx context.Context, clerkID string) (uuid.UUID, error) {
	if clerkID == "" {
		return uuid.Nil, ErrUserNotFound
	}
	query := `
	INSERT INTO users (clerk_id)
	VALUES ($1)
	ON CONFLICT (clerk_id) DO UPDATE SET clerk_id = EXCLUDED.clerk_id
	RETURNING id
	`
	var id uuid.UUID
	if err := s.db.QueryRow(ctx, query, clerkID).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("failed to ensure user: %w", err)
	}
	return id, nil
}

func (s *UserService) GetUserByClerkID(ctx context.Context, clerkID string) (*user.User, error) {
	query := `SELECT id, clerk_id, created_at FROM users WHERE clerk_id = $1`

	u := &user.User{}
	err := s.db.QueryRow(ctx, query, clerkID).Scan(&u.ID, &u.ClerkID, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// DeleteUserByClerkID removes the user; every owned row cascades.
func (s *UserService) DeleteUserByClerkID(ctx context.Context, clerkID string) error {
	result, err := s.db.Exec(ctx, `DELETE FROM users WHERE clerk_id = $1`, clerkID)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}
