package invites

import (
	"context"
	"fmt"

	"github.com/xynes/accounts-service/internal/models"
	"github.com/xynes/accounts-service/pkg/database"
)

// TokenConstraint is the unique constraint on invite token hashes.
const TokenConstraint = "workspace_invites_token_unique"

// Repository handles workspace_invites persistence.
type Repository struct {
	db database.DB
}

// NewRepository creates an invites repository.
func NewRepository(db database.DB) *Repository {
	return &Repository{db: db}
}

// Insert stores a new invite. CreatedAt is filled from the store.
func (r *Repository) Insert(ctx context.Context, inv *models.WorkspaceInvite) error {
	const q = `INSERT INTO platform.workspace_invites (id, workspace_id, email, role_key, invited_by, token, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`
	err := r.db.QueryRow(ctx, q, inv.ID, inv.WorkspaceID, inv.Email, inv.RoleKey, inv.InvitedBy,
		inv.TokenHash, string(inv.Status), inv.ExpiresAt).Scan(&inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

// FindByTokenHash returns the invite with the given token hash, or nil.
func (r *Repository) FindByTokenHash(ctx context.Context, tokenHash string) (*models.WorkspaceInvite, error) {
	const q = `SELECT id, workspace_id, email, role_key, invited_by, token, status, expires_at, created_at
		FROM platform.workspace_invites WHERE token = $1`
	var inv models.WorkspaceInvite
	err := r.db.QueryRow(ctx, q, tokenHash).Scan(&inv.ID, &inv.WorkspaceID, &inv.Email, &inv.RoleKey,
		&inv.InvitedBy, &inv.TokenHash, &inv.Status, &inv.ExpiresAt, &inv.CreatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find invite: %w", err)
	}
	return &inv, nil
}

// FindDetailsByTokenHash returns the invite joined with its workspace and
// inviter, or nil. The inviter may no longer exist.
func (r *Repository) FindDetailsByTokenHash(ctx context.Context, tokenHash string) (*models.InviteDetails, error) {
	const q = `SELECT i.id, i.workspace_id, i.email, i.role_key, i.invited_by, i.token, i.status, i.expires_at, i.created_at,
			w.name, w.slug, u.display_name, u.email
		FROM platform.workspace_invites i
		INNER JOIN platform.workspaces w ON w.id = i.workspace_id
		LEFT JOIN identity.users u ON u.id = i.invited_by
		WHERE i.token = $1`
	var d models.InviteDetails
	err := r.db.QueryRow(ctx, q, tokenHash).Scan(&d.ID, &d.WorkspaceID, &d.Email, &d.RoleKey,
		&d.InvitedBy, &d.TokenHash, &d.Status, &d.ExpiresAt, &d.CreatedAt,
		&d.WorkspaceName, &d.WorkspaceSlug, &d.InviterName, &d.InviterEmail)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find invite details: %w", err)
	}
	return &d, nil
}

// MarkExpired moves a pending invite to expired. It reports whether the row
// was still pending.
func (r *Repository) MarkExpired(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, id, models.InviteStatusPending, models.InviteStatusExpired)
}

// MarkAccepted moves a pending invite to accepted. It reports whether the
// row was still pending.
func (r *Repository) MarkAccepted(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, id, models.InviteStatusPending, models.InviteStatusAccepted)
}

// RevertAccepted moves an accepted invite back to pending after a failed
// role grant.
func (r *Repository) RevertAccepted(ctx context.Context, id string) (bool, error) {
	return r.transition(ctx, id, models.InviteStatusAccepted, models.InviteStatusPending)
}

func (r *Repository) transition(ctx context.Context, id string, from, to models.InviteStatus) (bool, error) {
	const q = `UPDATE platform.workspace_invites SET status = $3 WHERE id = $1 AND status = $2`
	tag, err := r.db.Exec(ctx, q, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("update invite %s -> %s: %w", from, to, err)
	}
	return tag.RowsAffected() == 1, nil
}
