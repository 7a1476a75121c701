package workspaces

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xynes/accounts-service/internal/actions"
	"github.com/xynes/accounts-service/internal/authz"
	"github.com/xynes/accounts-service/internal/models"
	"github.com/xynes/accounts-service/pkg/apperr"
	"github.com/xynes/accounts-service/pkg/database"
	"github.com/xynes/accounts-service/pkg/queue"
)

// Action keys served by this package.
const (
	ActionCreate       = "accounts.workspaces.create"
	ActionListForUser  = "accounts.workspaces.listForUser"
	ActionReadCurrent  = "accounts.workspace.readCurrent"
	ActionEnsureMember = "accounts.workspaceMember.ensure"
	ActionListMembers  = "accounts.workspace_members.listForWorkspace"
)

// defaultCompensation bounds a compensating write.
const defaultCompensation = 10 * time.Second

// Store is the workspace persistence used by the handler.
type Store interface {
	CreateWithOwner(ctx context.Context, ws *models.Workspace) error
	DeleteWorkspace(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*models.Workspace, error)
	ListForUser(ctx context.Context, userID string) ([]models.WorkspaceSummary, error)
	ListMembers(ctx context.Context, workspaceID string) ([]Member, error)
	GetMember(ctx context.Context, workspaceID, userID string) (*models.WorkspaceMember, error)
	AddMember(ctx context.Context, workspaceID, userID string) (bool, error)
}

// Authz is the subset of the authorization client used here.
type Authz interface {
	RoleLister
	AssignRole(ctx context.Context, req authz.AssignRoleRequest) error
	CheckPermission(ctx context.Context, req authz.CheckPermissionRequest) bool
}

// CleanupQueue retries workspace deletions that failed inline.
type CleanupQueue interface {
	EnqueueWorkspaceCleanup(ctx context.Context, payload queue.WorkspaceCleanupPayload) error
}

// Handler serves the workspace actions.
type Handler struct {
	store               Store
	authz               Authz
	queue               CleanupQueue
	logger              *zap.Logger
	newID               func() string
	compensationTimeout time.Duration
}

// NewHandler creates a workspaces handler. q may be nil.
func NewHandler(store Store, az Authz, q CleanupQueue, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:               store,
		authz:               az,
		queue:               q,
		logger:              logger,
		newID:               uuid.NewString,
		compensationTimeout: defaultCompensation,
	}
}

// Register adds the workspace actions to b.
func (h *Handler) Register(b *actions.Builder) {
	b.Register(ActionCreate, actions.Typed(actions.Policy{WorkspaceUnscoped: true, Created: true}, h.Create))
	b.Register(ActionListForUser, actions.Typed(actions.Policy{WorkspaceUnscoped: true}, h.ListForUser))
	b.Register(ActionReadCurrent, actions.Typed(actions.Policy{}, h.ReadCurrent))
	b.Register(ActionEnsureMember, actions.Typed(actions.Policy{Created: true}, h.EnsureMember))
	b.Register(ActionListMembers, actions.Typed(actions.Policy{}, h.ListMembers))
}

// CreatePayload is the payload of accounts.workspaces.create.
type CreatePayload struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
	Slug string `json:"slug" validate:"required,slug"`
}

// Normalize trims the name and folds the slug to lower case.
func (p *CreatePayload) Normalize() {
	p.Name = strings.TrimSpace(p.Name)
	p.Slug = strings.ToLower(strings.TrimSpace(p.Slug))
}

// CreateResult is the created workspace projection.
type CreateResult struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	PlanType  string `json:"planType"`
	CreatedBy string `json:"createdBy"`
}

// Create inserts the workspace with its owner membership, then grants the
// owner role. If the grant fails the inserted rows are deleted again.
func (h *Handler) Create(ctx context.Context, p CreatePayload, actx actions.Context) (interface{}, error) {
	userID, err := actx.RequireUser()
	if err != nil {
		return nil, err
	}

	slug := p.Slug
	ws := &models.Workspace{
		ID:        h.newID(),
		Name:      p.Name,
		Slug:      &slug,
		CreatedBy: userID,
		PlanType:  models.DefaultPlanType,
	}
	if err := h.store.CreateWithOwner(ctx, ws); err != nil {
		if database.IsUniqueViolation(err, SlugConstraints...) {
			return nil, apperr.Wrap(apperr.KindConflict, "Workspace slug already exists", err)
		}
		return nil, err
	}

	err = h.authz.AssignRole(ctx, authz.AssignRoleRequest{
		UserID:      userID,
		WorkspaceID: ws.ID,
		RoleKey:     string(RoleOwner),
	})
	if err != nil {
		h.logger.Error("failed to assign workspace_owner role",
			zap.String("request_id", actx.RequestID),
			zap.String("workspace_id", ws.ID),
			zap.String("user_id", userID),
			zap.Error(err))
		h.compensateCreate(ctx, actx, ws.ID)
		return nil, apperr.Wrap(apperr.KindBadGateway, "Failed to assign workspace_owner role", err)
	}

	return CreateResult{
		ID:        ws.ID,
		Name:      ws.Name,
		Slug:      slug,
		PlanType:  ws.PlanType,
		CreatedBy: userID,
	}, nil
}

// compensateCreate deletes the workspace created by a failed saga. It runs
// detached from request cancellation.
func (h *Handler) compensateCreate(ctx context.Context, actx actions.Context, workspaceID string) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.compensationTimeout)
	defer cancel()

	err := h.store.DeleteWorkspace(cctx, workspaceID)
	if err == nil {
		return
	}
	h.logger.Error("cleanup failed after role assignment failure",
		zap.String("request_id", actx.RequestID),
		zap.String("workspace_id", workspaceID),
		zap.Error(err))
	if h.queue == nil {
		return
	}
	if qerr := h.queue.EnqueueWorkspaceCleanup(cctx, queue.WorkspaceCleanupPayload{WorkspaceID: workspaceID}); qerr != nil {
		h.logger.Error("failed to enqueue workspace cleanup",
			zap.String("request_id", actx.RequestID),
			zap.String("workspace_id", workspaceID),
			zap.Error(qerr))
	}
}

// WorkspaceList wraps a list of workspaces.
type WorkspaceList struct {
	Workspaces []models.WorkspaceSummary `json:"workspaces"`
}

// ListForUser returns the caller's active workspaces.
func (h *Handler) ListForUser(ctx context.Context, _ actions.Empty, actx actions.Context) (interface{}, error) {
	userID, err := actx.RequireUser()
	if err != nil {
		return nil, err
	}
	list, err := h.store.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []models.WorkspaceSummary{}
	}
	return WorkspaceList{Workspaces: list}, nil
}

// CurrentWorkspace is the workspace row plus the caller's effective role.
type CurrentWorkspace struct {
	models.Workspace
	Role Role `json:"role"`
}

// ReadCurrent returns the workspace named by the context.
func (h *Handler) ReadCurrent(ctx context.Context, _ actions.Empty, actx actions.Context) (interface{}, error) {
	workspaceID, err := actx.RequireWorkspace()
	if err != nil {
		return nil, err
	}
	ws, err := h.store.GetByID(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if ws == nil {
		return nil, apperr.New(apperr.KindNotFound, "workspace not found")
	}
	out := CurrentWorkspace{Workspace: *ws, Role: RoleMember}
	if actx.UserID != "" {
		role, err := ResolveRole(ctx, h.authz, h.logger, workspaceID, actx.UserID)
		if err != nil {
			return nil, err
		}
		out.Role = role
	}
	return out, nil
}

// EnsureMemberPayload is the payload of accounts.workspaceMember.ensure.
// Role is accepted for compatibility and not applied.
type EnsureMemberPayload struct {
	Role string `json:"role,omitempty" validate:"omitempty,oneof=member admin"`
}

// EnsureMemberResult reports the membership state.
type EnsureMemberResult struct {
	Created bool   `json:"created"`
	Status  string `json:"status"`
}

// EnsureMember makes the caller a member of the current workspace.
func (h *Handler) EnsureMember(ctx context.Context, _ EnsureMemberPayload, actx actions.Context) (interface{}, error) {
	workspaceID, err := actx.RequireWorkspace()
	if err != nil {
		return nil, err
	}
	userID, err := actx.RequireUser()
	if err != nil {
		return nil, err
	}

	existing, err := h.store.GetMember(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return EnsureMemberResult{Created: false, Status: existing.Status}, nil
	}

	created, err := h.store.AddMember(ctx, workspaceID, userID)
	if err != nil {
		return nil, err
	}
	if !created {
		// Lost a race with a concurrent insert.
		existing, err = h.store.GetMember(ctx, workspaceID, userID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return EnsureMemberResult{Created: false, Status: existing.Status}, nil
		}
		// Inserted by someone else and removed again before the re-read.
		return nil, apperr.New(apperr.KindInternal, "Workspace membership changed concurrently")
	}
	return EnsureMemberResult{Created: true, Status: models.MemberStatusActive}, nil
}

// MemberView is a member with their effective role.
type MemberView struct {
	Member
	RoleKey Role `json:"roleKey"`
}

// MemberList wraps the members of a workspace.
type MemberList struct {
	Members []MemberView `json:"members"`
}

// ListMembers returns the members of the current workspace with their
// roles. Roles are fetched in one batch; if the authorization service is
// unavailable every member is reported as workspace_member.
func (h *Handler) ListMembers(ctx context.Context, _ actions.Empty, actx actions.Context) (interface{}, error) {
	userID, err := actx.RequireUser()
	if err != nil {
		return nil, err
	}
	workspaceID, err := actx.RequireWorkspace()
	if err != nil {
		return nil, err
	}

	allowed := h.authz.CheckPermission(ctx, authz.CheckPermissionRequest{
		UserID:      userID,
		WorkspaceID: workspaceID,
		ActionKey:   ActionListMembers,
	})
	if !allowed {
		return nil, apperr.New(apperr.KindForbidden, "You do not have permission to list workspace members")
	}

	members, err := h.store.ListMembers(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	out := MemberList{Members: make([]MemberView, 0, len(members))}
	if len(members) == 0 {
		return out, nil
	}

	userIDs := make([]string, 0, len(members))
	for _, m := range members {
		userIDs = append(userIDs, m.UserID)
	}
	rolesByUser := make(map[string][]string, len(members))
	assignments, err := h.authz.ListRolesForWorkspace(ctx, authz.ListRolesRequest{
		WorkspaceID: workspaceID,
		UserIDs:     userIDs,
	})
	switch {
	case err == nil:
		for _, a := range assignments {
			rolesByUser[a.UserID] = append(rolesByUser[a.UserID], a.RoleKey)
		}
	case apperr.IsTransient(err):
		h.logger.Warn("member roles unavailable, falling back to member",
			zap.String("request_id", actx.RequestID),
			zap.String("workspace_id", workspaceID),
			zap.Error(err))
	default:
		return nil, err
	}

	for _, m := range members {
		out.Members = append(out.Members, MemberView{Member: m, RoleKey: PickRole(rolesByUser[m.UserID])})
	}
	return out, nil
}
