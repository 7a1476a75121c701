package users

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/xynes/accounts-service/internal/actions"
	"github.com/xynes/accounts-service/internal/models"
	"github.com/xynes/accounts-service/pkg/apperr"
)

// Action keys served by this package.
const (
	ActionReadSelf      = "accounts.user.readSelf"
	ActionUpdateSelf    = "accounts.user.updateSelf"
	ActionMeGetOrCreate = "accounts.me.getOrCreate"
)

const (
	maxDisplayNameLen = 200
	maxAvatarURLLen   = 2048
)

// Store is the user persistence used by the handler.
type Store interface {
	Upsert(ctx context.Context, p UpsertParams) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdateDisplayName(ctx context.Context, id, displayName string) (*models.User, error)
}

// WorkspaceLister lists the active workspaces of a user.
type WorkspaceLister interface {
	ListForUser(ctx context.Context, userID string) ([]models.WorkspaceSummary, error)
}

// Handler serves the user actions.
type Handler struct {
	users      Store
	workspaces WorkspaceLister
	logger     *zap.Logger
}

// NewHandler creates a users handler.
func NewHandler(users Store, workspaces WorkspaceLister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{users: users, workspaces: workspaces, logger: logger}
}

// Register adds the user actions to b.
func (h *Handler) Register(b *actions.Builder) {
	b.Register(ActionReadSelf, actions.Typed(actions.Policy{}, h.ReadSelf))
	b.Register(ActionUpdateSelf, actions.Typed(actions.Policy{WorkspaceUnscoped: true}, h.UpdateSelf))
	b.Register(ActionMeGetOrCreate, actions.Typed(actions.Policy{WorkspaceUnscoped: true}, h.MeGetOrCreate))
}

// ReadSelf returns the authenticated user's record.
func (h *Handler) ReadSelf(ctx context.Context, _ actions.Empty, actx actions.Context) (interface{}, error) {
	userID, err := actx.RequireUser()
	if err != nil {
		return nil, err
	}
	u, err := h.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	return u, nil
}

// UpdateSelfPayload is the payload of accounts.user.updateSelf.
type UpdateSelfPayload struct {
	DisplayName string `json:"displayName" validate:"required,max=200"`
}

// Normalize trims the display name.
func (p *UpdateSelfPayload) Normalize() {
	p.DisplayName = strings.TrimSpace(p.DisplayName)
}

// UpdateSelf sets the authenticated user's display name.
func (h *Handler) UpdateSelf(ctx context.Context, p UpdateSelfPayload, actx actions.Context) (interface{}, error) {
	userID, err := actx.RequireUser()
	if err != nil {
		return nil, err
	}
	u, err := h.users.UpdateDisplayName(ctx, userID, p.DisplayName)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	return u.ToProfile(), nil
}

// MeResult is the result of accounts.me.getOrCreate.
type MeResult struct {
	User       models.UserProfile        `json:"user"`
	Workspaces []models.WorkspaceSummary `json:"workspaces"`
}

// MeGetOrCreate upserts the caller from the gateway's identity hints and
// returns the user with their active workspaces.
func (h *Handler) MeGetOrCreate(ctx context.Context, _ actions.Empty, actx actions.Context) (interface{}, error) {
	userID, err := actx.RequireUser()
	if err != nil {
		return nil, err
	}
	hints := actx.Hints()
	email := strings.TrimSpace(hints.Email)
	if !actions.ValidVar(email, "required,email,max=320") {
		return nil, apperr.New(apperr.KindUnauthorized, "Missing or invalid user email in auth context")
	}

	params := UpsertParams{
		ID:          userID,
		Email:       email,
		DisplayName: optionalString(hints.Name, maxDisplayNameLen),
		AvatarURL:   optionalString(hints.AvatarURL, maxAvatarURLLen),
	}
	if err := h.users.Upsert(ctx, params); err != nil {
		return nil, err
	}

	u, err := h.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.New(apperr.KindInternal, "Failed to load user after upsert")
	}

	list, err := h.workspaces.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.WorkspaceSummary{}
	}
	return MeResult{User: u.ToProfile(), Workspaces: list}, nil
}

// optionalString trims s and drops it when empty or longer than maxLen.
func optionalString(s string, maxLen int) *string {
	s = strings.TrimSpace(s)
	if s == "" || len([]rune(s)) > maxLen {
		return nil
	}
	return &s
}
