package workspaces

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/xynes/accounts-service/internal/models"
	"github.com/xynes/accounts-service/pkg/database"
)

// SlugConstraints name the unique constraints guarding workspace slugs.
var SlugConstraints = []string{"workspaces_slug_unique", "workspaces_slug_unique_idx"}

// Repository handles workspace and workspace_member persistence.
type Repository struct {
	db database.DB
}

// NewRepository creates a workspaces repository.
func NewRepository(db database.DB) *Repository {
	return &Repository{db: db}
}

// CreateWithOwner inserts the workspace and the creator's active membership
// in one transaction. CreatedAt is filled from the store.
func (r *Repository) CreateWithOwner(ctx context.Context, ws *models.Workspace) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		const insertWorkspace = `INSERT INTO platform.workspaces (id, name, slug, created_by, plan_type)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at`
		if err := tx.QueryRow(ctx, insertWorkspace, ws.ID, ws.Name, ws.Slug, ws.CreatedBy, ws.PlanType).
			Scan(&ws.CreatedAt); err != nil {
			return fmt.Errorf("insert workspace: %w", err)
		}
		const insertMember = `INSERT INTO platform.workspace_members (workspace_id, user_id, status)
			VALUES ($1, $2, $3)`
		if _, err := tx.Exec(ctx, insertMember, ws.ID, ws.CreatedBy, models.MemberStatusActive); err != nil {
			return fmt.Errorf("insert owner membership: %w", err)
		}
		return nil
	})
}

// DeleteWorkspace removes a workspace and its memberships in one transaction.
func (r *Repository) DeleteWorkspace(ctx context.Context, id string) error {
	return database.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM platform.workspace_members WHERE workspace_id = $1`, id); err != nil {
			return fmt.Errorf("delete memberships: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM platform.workspaces WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete workspace: %w", err)
		}
		return nil
	})
}

// GetByID returns a workspace, or nil if none exists.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.Workspace, error) {
	const q = `SELECT id, name, slug, created_by, plan_type, created_at FROM platform.workspaces WHERE id = $1`
	var ws models.Workspace
	err := r.db.QueryRow(ctx, q, id).Scan(&ws.ID, &ws.Name, &ws.Slug, &ws.CreatedBy, &ws.PlanType, &ws.CreatedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get workspace: %w", err)
	}
	return &ws, nil
}

// ListForUser returns the workspaces where the user has an active membership.
func (r *Repository) ListForUser(ctx context.Context, userID string) ([]models.WorkspaceSummary, error) {
	const q = `SELECT w.id, w.name, w.slug, w.plan_type
		FROM platform.workspace_members m
		INNER JOIN platform.workspaces w ON w.id = m.workspace_id
		WHERE m.user_id = $1 AND m.status = $2
		ORDER BY w.name`
	rows, err := r.db.Query(ctx, q, userID, models.MemberStatusActive)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()
	list := []models.WorkspaceSummary{}
	for rows.Next() {
		var w models.WorkspaceSummary
		if err := rows.Scan(&w.ID, &w.Name, &w.Slug, &w.PlanType); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		list = append(list, w)
	}
	return list, rows.Err()
}

// Member is a workspace membership joined with the member's profile.
type Member struct {
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	DisplayName *string   `json:"displayName"`
	AvatarURL   *string   `json:"avatarUrl"`
	Status      string    `json:"status"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// ListMembers returns members of a workspace (join workspace_members + users).
func (r *Repository) ListMembers(ctx context.Context, workspaceID string) ([]Member, error) {
	const q = `SELECT u.id, u.email, u.display_name, u.avatar_url, m.status, m.joined_at
		FROM platform.workspace_members m
		INNER JOIN identity.users u ON u.id = m.user_id
		WHERE m.workspace_id = $1
		ORDER BY m.joined_at ASC`
	rows, err := r.db.Query(ctx, q, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	list := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.Email, &m.DisplayName, &m.AvatarURL, &m.Status, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// GetMember returns a membership, or nil if the user is not a member.
func (r *Repository) GetMember(ctx context.Context, workspaceID, userID string) (*models.WorkspaceMember, error) {
	const q = `SELECT workspace_id, user_id, status, joined_at
		FROM platform.workspace_members WHERE workspace_id = $1 AND user_id = $2`
	var m models.WorkspaceMember
	err := r.db.QueryRow(ctx, q, workspaceID, userID).Scan(&m.WorkspaceID, &m.UserID, &m.Status, &m.JoinedAt)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &m, nil
}

// AddMember inserts an active membership unless one exists. It reports
// whether this call created the row.
func (r *Repository) AddMember(ctx context.Context, workspaceID, userID string) (bool, error) {
	const q = `INSERT INTO platform.workspace_members (workspace_id, user_id, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (workspace_id, user_id) DO NOTHING`
	tag, err := r.db.Exec(ctx, q, workspaceID, userID, models.MemberStatusActive)
	if err != nil {
		return false, fmt.Errorf("add member: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteMember removes a membership.
func (r *Repository) DeleteMember(ctx context.Context, workspaceID, userID string) error {
	const q = `DELETE FROM platform.workspace_members WHERE workspace_id = $1 AND user_id = $2`
	if _, err := r.db.Exec(ctx, q, workspaceID, userID); err != nil {
		return fmt.Errorf("delete member: %w", err)
	}
	return nil
}
