package models

import "time"

// InviteStatus is the state of a workspace invite. Only pending invites
// may transition; every other status is terminal.
type InviteStatus string

const (
	InviteStatusPending   InviteStatus = "pending"
	InviteStatusAccepted  InviteStatus = "accepted"
	InviteStatusCancelled InviteStatus = "cancelled"
	InviteStatusExpired   InviteStatus = "expired"
)

// IsTerminal reports whether no further transition is allowed.
func (s InviteStatus) IsTerminal() bool {
	return s != InviteStatusPending
}

// WorkspaceInvite is an invitation of an email address into a workspace.
// TokenHash holds the SHA-256 of the raw token; the raw token is never stored.
type WorkspaceInvite struct {
	ID          string       `json:"id"`
	WorkspaceID string       `json:"workspaceId"`
	Email       string       `json:"email"`
	RoleKey     string       `json:"roleKey"`
	InvitedBy   string       `json:"invitedBy"`
	TokenHash   string       `json:"-"`
	Status      InviteStatus `json:"status"`
	ExpiresAt   time.Time    `json:"expiresAt"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// IsExpiredAt reports whether a pending invite has passed its expiry.
func (i *WorkspaceInvite) IsExpiredAt(now time.Time) bool {
	return i.Status == InviteStatusPending && !i.ExpiresAt.After(now)
}

// InviteDetails is an invite joined with its workspace and inviter.
type InviteDetails struct {
	WorkspaceInvite
	WorkspaceName string
	WorkspaceSlug *string
	InviterName   *string
	InviterEmail  *string
}
