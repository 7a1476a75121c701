package workspaces

import (
	"context"

	"go.uber.org/zap"

	"github.com/xynes/accounts-service/internal/authz"
	"github.com/xynes/accounts-service/pkg/apperr"
)

// Role is a workspace role understood by this service.
type Role string

const (
	RoleOwner  Role = "workspace_owner"
	RoleAdmin  Role = "workspace_admin"
	RoleMember Role = "workspace_member"
)

// rolePriority is highest first.
var rolePriority = []Role{RoleOwner, RoleAdmin, RoleMember}

// NormalizeRole maps a role key to a Role. Unknown keys become RoleMember.
func NormalizeRole(key string) Role {
	switch r := Role(key); r {
	case RoleOwner, RoleAdmin, RoleMember:
		return r
	}
	return RoleMember
}

// PickRole returns the highest priority role among keys, or RoleMember.
func PickRole(keys []string) Role {
	held := make(map[Role]struct{}, len(keys))
	for _, k := range keys {
		held[NormalizeRole(k)] = struct{}{}
	}
	for _, r := range rolePriority {
		if _, ok := held[r]; ok {
			return r
		}
	}
	return RoleMember
}

// RoleLister lists role assignments in a workspace.
type RoleLister interface {
	ListRolesForWorkspace(ctx context.Context, req authz.ListRolesRequest) ([]authz.RoleAssignment, error)
}

// ResolveRole returns the effective role of a user in a workspace. When the
// authorization service is unreachable or slow the user is treated as a
// member; other failures propagate.
func ResolveRole(ctx context.Context, lister RoleLister, logger *zap.Logger, workspaceID, userID string) (Role, error) {
	assignments, err := lister.ListRolesForWorkspace(ctx, authz.ListRolesRequest{
		WorkspaceID: workspaceID,
		UserIDs:     []string{userID},
	})
	if err != nil {
		if apperr.IsTransient(err) {
			logger.Warn("role lookup unavailable, falling back to member",
				zap.String("workspace_id", workspaceID),
				zap.String("user_id", userID),
				zap.Error(err))
			return RoleMember, nil
		}
		return "", err
	}
	keys := make([]string, 0, len(assignments))
	for _, a := range assignments {
		if a.UserID == userID {
			keys = append(keys, a.RoleKey)
		}
	}
	return PickRole(keys), nil
}
