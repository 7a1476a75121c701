package invites

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xynes/accounts-service/internal/actions"
	"github.com/xynes/accounts-service/internal/authz"
	"github.com/xynes/accounts-service/internal/models"
	"github.com/xynes/accounts-service/internal/security"
	"github.com/xynes/accounts-service/pkg/apperr"
	"github.com/xynes/accounts-service/pkg/database"
	"github.com/xynes/accounts-service/pkg/queue"
)

// Action keys served by this package.
const (
	ActionCreate  = "accounts.invites.create"
	ActionResolve = "accounts.invites.resolve"
	ActionAccept  = "accounts.invites.accept"
)

const (
	// DefaultExpiresInDays is the invite lifetime when none is configured.
	DefaultExpiresInDays = 7
	defaultCompensation  = 10 * time.Second
)

// Store is the invite persistence used by the handler.
type Store interface {
	Insert(ctx context.Context, inv *models.WorkspaceInvite) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*models.WorkspaceInvite, error)
	FindDetailsByTokenHash(ctx context.Context, tokenHash string) (*models.InviteDetails, error)
	MarkExpired(ctx context.Context, id string) (bool, error)
	MarkAccepted(ctx context.Context, id string) (bool, error)
	RevertAccepted(ctx context.Context, id string) (bool, error)
}

// UserLookup loads the accepting user.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// Members writes workspace memberships.
type Members interface {
	AddMember(ctx context.Context, workspaceID, userID string) (bool, error)
	DeleteMember(ctx context.Context, workspaceID, userID string) error
}

// Authz is the subset of the authorization client used here.
type Authz interface {
	AssignRole(ctx context.Context, req authz.AssignRoleRequest) error
	CheckPermission(ctx context.Context, req authz.CheckPermissionRequest) bool
}

// CompensationQueue retries compensations that failed inline.
type CompensationQueue interface {
	EnqueueInviteRevert(ctx context.Context, payload queue.InviteRevertPayload) error
	EnqueueMemberCleanup(ctx context.Context, payload queue.MemberCleanupPayload) error
}

// Options tunes the handler. Zero values select defaults.
type Options struct {
	ExpiresInDays       int
	CompensationTimeout time.Duration
}

// Handler serves the invite actions.
type Handler struct {
	store   Store
	users   UserLookup
	members Members
	authz   Authz
	queue   CompensationQueue
	logger  *zap.Logger

	now                 func() time.Time
	newID               func() string
	newToken            func() (security.InviteTokenPair, error)
	expiresIn           time.Duration
	compensationTimeout time.Duration
}

// NewHandler creates an invites handler. q may be nil.
func NewHandler(store Store, users UserLookup, members Members, az Authz, q CompensationQueue, opts Options, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ExpiresInDays <= 0 {
		opts.ExpiresInDays = DefaultExpiresInDays
	}
	if opts.CompensationTimeout <= 0 {
		opts.CompensationTimeout = defaultCompensation
	}
	return &Handler{
		store:   store,
		users:   users,
		members: members,
		authz:   az,
		queue:   q,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
		newToken: func() (security.InviteTokenPair, error) {
			return security.GenerateInviteToken(security.DefaultInviteTokenBytes)
		},
		expiresIn:           time.Duration(opts.ExpiresInDays) * 24 * time.Hour,
		compensationTimeout: opts.CompensationTimeout,
	}
}

// Register adds the invite actions to b.
func (h *Handler) Register(b *actions.Builder) {
	b.Register(ActionCreate, actions.Typed(actions.Policy{Created: true}, h.Create))
	b.Register(ActionResolve, actions.Typed(actions.Policy{Public: true, WorkspaceUnscoped: true}, h.Resolve))
	b.Register(ActionAccept, actions.Typed(actions.Policy{WorkspaceUnscoped: true, Created: true}, h.Accept))
}

// CreatePayload is the payload of accounts.invites.create.
type CreatePayload struct {
	Email   string `json:"email" validate:"required,email,max=320"`
	RoleKey string `json:"roleKey" validate:"required,min=1,max=100"`
}

// Normalize folds the email to its comparable form.
func (p *CreatePayload) Normalize() {
	p.Email = normalizeEmail(p.Email)
	p.RoleKey = strings.TrimSpace(p.RoleKey)
}

// TokenPayload carries a raw invite token.
type TokenPayload struct {
	Token string `json:"token" validate:"required,min=16,max=512"`
}

// Normalize trims the token.
func (p *TokenPayload) Normalize() {
	p.Token = strings.TrimSpace(p.Token)
}

// CreateResult is the created invite. Token is only ever returned here.
type CreateResult struct {
	ID          string              `json:"id"`
	WorkspaceID string              `json:"workspaceId"`
	Email       string              `json:"email"`
	RoleKey     string              `json:"roleKey"`
	Status      models.InviteStatus `json:"status"`
	ExpiresAt   time.Time           `json:"expiresAt"`
	Token       string              `json:"token"`
}

// Create issues an invite for an email address into the current workspace.
func (h *Handler) Create(ctx context.Context, p CreatePayload, actx actions.Context) (interface{}, error) {
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
		ActionKey:   ActionCreate,
	})
	if !allowed {
		return nil, apperr.New(apperr.KindForbidden, "Access denied")
	}

	pair, err := h.newToken()
	if err != nil {
		return nil, err
	}
	inv := &models.WorkspaceInvite{
		ID:          h.newID(),
		WorkspaceID: workspaceID,
		Email:       p.Email,
		RoleKey:     p.RoleKey,
		InvitedBy:   userID,
		TokenHash:   pair.TokenHash,
		Status:      models.InviteStatusPending,
		ExpiresAt:   h.now().UTC().Add(h.expiresIn),
	}
	if err := h.store.Insert(ctx, inv); err != nil {
		if database.IsUniqueViolation(err, TokenConstraint) {
			return nil, apperr.Wrap(apperr.KindConflict, "Invite token collision, retry", err)
		}
		return nil, err
	}

	return CreateResult{
		ID:          inv.ID,
		WorkspaceID: inv.WorkspaceID,
		Email:       inv.Email,
		RoleKey:     inv.RoleKey,
		Status:      inv.Status,
		ExpiresAt:   inv.ExpiresAt,
		Token:       pair.Token,
	}, nil
}

// ResolveResult is the public view of an invite.
type ResolveResult struct {
	ID            string              `json:"id"`
	WorkspaceID   string              `json:"workspaceId"`
	WorkspaceSlug *string             `json:"workspaceSlug"`
	WorkspaceName string              `json:"workspaceName"`
	InviterName   *string             `json:"inviterName"`
	InviterEmail  *string             `json:"inviterEmail"`
	InviteeEmail  string              `json:"inviteeEmail"`
	Role          string              `json:"role"`
	RoleKey       string              `json:"roleKey"`
	Status        models.InviteStatus `json:"status"`
	ExpiresAt     time.Time           `json:"expiresAt"`
	CreatedAt     time.Time           `json:"createdAt"`
}

// Resolve looks an invite up by its raw token. It needs no caller identity.
// A pending invite past its expiry is reported as expired and, best effort,
// persisted as such.
func (h *Handler) Resolve(ctx context.Context, p TokenPayload, actx actions.Context) (interface{}, error) {
	d, err := h.store.FindDetailsByTokenHash(ctx, security.HashInviteToken(p.Token))
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, apperr.New(apperr.KindNotFound, "Workspace invite not found")
	}
	if strings.TrimSpace(d.WorkspaceName) == "" {
		return nil, apperr.New(apperr.KindInternal, "Invite workspace is missing a name")
	}

	status := d.Status
	if d.IsExpiredAt(h.now()) {
		status = models.InviteStatusExpired
		if _, err := h.store.MarkExpired(ctx, d.ID); err != nil {
			h.logger.Warn("failed to persist invite expiry",
				zap.String("request_id", actx.RequestID),
				zap.String("invite_id", d.ID),
				zap.Error(err))
		}
	}

	return ResolveResult{
		ID:            d.ID,
		WorkspaceID:   d.WorkspaceID,
		WorkspaceSlug: d.WorkspaceSlug,
		WorkspaceName: d.WorkspaceName,
		InviterName:   d.InviterName,
		InviterEmail:  d.InviterEmail,
		InviteeEmail:  d.Email,
		Role:          d.RoleKey,
		RoleKey:       d.RoleKey,
		Status:        status,
		ExpiresAt:     d.ExpiresAt,
		CreatedAt:     d.CreatedAt,
	}, nil
}

// AcceptResult reports an accepted invite.
type AcceptResult struct {
	Accepted               bool   `json:"accepted"`
	WorkspaceID            string `json:"workspaceId"`
	RoleKey                string `json:"roleKey"`
	WorkspaceMemberCreated bool   `json:"workspaceMemberCreated"`
}

// Accept joins the caller to the invite's workspace and grants the invited
// role. The pending -> accepted update is the concurrency gate: of two
// concurrent accepts only one sees the row still pending.
func (h *Handler) Accept(ctx context.Context, p TokenPayload, actx actions.Context) (interface{}, error) {
	userID, err := actx.RequireUser()
	if err != nil {
		return nil, err
	}

	inv, err := h.store.FindByTokenHash(ctx, security.HashInviteToken(p.Token))
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, apperr.New(apperr.KindNotFound, "Workspace invite not found")
	}

	if inv.IsExpiredAt(h.now()) {
		if _, err := h.store.MarkExpired(ctx, inv.ID); err != nil {
			h.logger.Warn("failed to persist invite expiry",
				zap.String("request_id", actx.RequestID),
				zap.String("invite_id", inv.ID),
				zap.Error(err))
		}
		return nil, apperr.New(apperr.KindGone, "Invite expired")
	}
	switch inv.Status {
	case models.InviteStatusPending:
	case models.InviteStatusCancelled:
		return nil, apperr.New(apperr.KindGone, "Invite cancelled")
	default:
		return nil, apperr.New(apperr.KindConflict, "Invite already processed")
	}

	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.New(apperr.KindNotFound, "user not found")
	}
	if normalizeEmail(user.Email) != normalizeEmail(inv.Email) {
		return nil, apperr.New(apperr.KindForbidden, "Invite email does not match the signed-in user")
	}

	created, err := h.members.AddMember(ctx, inv.WorkspaceID, userID)
	if err != nil {
		return nil, err
	}

	ok, err := h.store.MarkAccepted(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.KindConflict, "Invite already processed")
	}

	err = h.authz.AssignRole(ctx, authz.AssignRoleRequest{
		UserID:      userID,
		WorkspaceID: inv.WorkspaceID,
		RoleKey:     inv.RoleKey,
	})
	if err != nil {
		h.logger.Error("failed to assign invited role",
			zap.String("request_id", actx.RequestID),
			zap.String("invite_id", inv.ID),
			zap.String("workspace_id", inv.WorkspaceID),
			zap.String("user_id", userID),
			zap.String("role_key", inv.RoleKey),
			zap.Error(err))
		h.compensateAccept(ctx, actx, inv, userID, created)
		return nil, apperr.Wrap(apperr.KindBadGateway, "Failed to assign role via authz service", err)
	}

	return AcceptResult{
		Accepted:               true,
		WorkspaceID:            inv.WorkspaceID,
		RoleKey:                inv.RoleKey,
		WorkspaceMemberCreated: created,
	}, nil
}

// compensateAccept returns the invite to pending and removes the membership
// if this accept created it. A membership that existed before is kept.
func (h *Handler) compensateAccept(ctx context.Context, actx actions.Context, inv *models.WorkspaceInvite, userID string, memberCreated bool) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.compensationTimeout)
	defer cancel()

	log := h.logger.With(
		zap.String("request_id", actx.RequestID),
		zap.String("invite_id", inv.ID),
		zap.String("workspace_id", inv.WorkspaceID),
		zap.String("user_id", userID))

	if _, err := h.store.RevertAccepted(cctx, inv.ID); err != nil {
		log.Error("failed to revert invite after role assignment failure", zap.Error(err))
		if h.queue != nil {
			if qerr := h.queue.EnqueueInviteRevert(cctx, queue.InviteRevertPayload{InviteID: inv.ID}); qerr != nil {
				log.Error("failed to enqueue invite revert", zap.Error(qerr))
			}
		}
	}

	if !memberCreated {
		log.Warn("existing membership kept without role grant")
		return
	}
	if err := h.members.DeleteMember(cctx, inv.WorkspaceID, userID); err != nil {
		log.Error("failed to delete membership after role assignment failure", zap.Error(err))
		if h.queue != nil {
			payload := queue.MemberCleanupPayload{WorkspaceID: inv.WorkspaceID, UserID: userID}
			if qerr := h.queue.EnqueueMemberCleanup(cctx, payload); qerr != nil {
				log.Error("failed to enqueue member cleanup", zap.Error(qerr))
			}
		}
	}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
