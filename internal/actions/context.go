package actions

import "github.com/xynes/accounts-service/pkg/apperr"

// UserHints are identity attributes forwarded by the gateway. Empty means
// the header was absent.
type UserHints struct {
	Email     string
	Name      string
	AvatarURL string
}

// Context is the per-request envelope handed to every action. It is built
// by the HTTP boundary only; empty ids mean the header was absent.
type Context struct {
	WorkspaceID string
	UserID      string
	RequestID   string
	User        *UserHints
}

// RequireUser returns the authenticated user id or Unauthorized.
func (c Context) RequireUser() (string, error) {
	if c.UserID == "" {
		return "", apperr.New(apperr.KindUnauthorized, "Missing userId in auth context")
	}
	return c.UserID, nil
}

// RequireWorkspace returns the workspace id or MissingContext.
func (c Context) RequireWorkspace() (string, error) {
	if c.WorkspaceID == "" {
		return "", apperr.New(apperr.KindMissingContext, "Missing workspaceId in action context")
	}
	return c.WorkspaceID, nil
}

// Hints returns the user hints, never nil.
func (c Context) Hints() UserHints {
	if c.User == nil {
		return UserHints{}
	}
	return *c.User
}
