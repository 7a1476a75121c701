package users

import (
	"context"
	"fmt"

	"github.com/xynes/accounts-service/internal/models"
	"github.com/xynes/accounts-service/pkg/database"
)

// UpsertParams is the identity snapshot written on login. Nil optional
// fields keep the stored value.
type UpsertParams struct {
	ID          string
	Email       string
	DisplayName *string
	AvatarURL   *string
}

// Repository handles identity.users persistence.
type Repository struct {
	db database.DB
}

// NewRepository creates a users repository.
func NewRepository(db database.DB) *Repository {
	return &Repository{db: db}
}

// Upsert inserts the user or refreshes email and the provided profile fields.
func (r *Repository) Upsert(ctx context.Context, p UpsertParams) error {
	const q = `INSERT INTO identity.users (id, email, display_name, avatar_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = COALESCE(EXCLUDED.display_name, identity.users.display_name),
			avatar_url = COALESCE(EXCLUDED.avatar_url, identity.users.avatar_url)`
	if _, err := r.db.Exec(ctx, q, p.ID, p.Email, p.DisplayName, p.AvatarURL); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetByID returns a user, or nil if none exists.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.User, error) {
	const q = `SELECT id, email, display_name, avatar_url, created_at FROM identity.users WHERE id = $1`
	var u models.User
	err := r.db.QueryRow(ctx, q, id).Scan(&u.ID, &u.Email, &u.DisplayName, &u.AvatarURL, &u.CreatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// UpdateDisplayName sets the display name and returns the updated user, or
// nil if the user does not exist.
func (r *Repository) UpdateDisplayName(ctx context.Context, id, displayName string) (*models.User, error) {
	const q = `UPDATE identity.users SET display_name = $2 WHERE id = $1
		RETURNING id, email, display_name, avatar_url, created_at`
	var u models.User
	err := r.db.QueryRow(ctx, q, id, displayName).Scan(&u.ID, &u.Email, &u.DisplayName, &u.AvatarURL, &u.CreatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("update display name: %w", err)
	}
	return &u, nil
}
