package models

import "time"

// DefaultPlanType is assigned to every new workspace.
const DefaultPlanType = "free"

// Membership status values.
const (
	MemberStatusActive = "active"
)

// Workspace represents a tenant.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Slug      *string   `json:"slug"`
	CreatedBy string    `json:"createdBy"`
	PlanType  string    `json:"planType"`
	CreatedAt time.Time `json:"createdAt"`
}

// WorkspaceSummary is the projection used in workspace lists.
type WorkspaceSummary struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Slug     *string `json:"slug"`
	PlanType string  `json:"planType"`
}

// WorkspaceMember links a user to a workspace. (WorkspaceID, UserID) is unique.
type WorkspaceMember struct {
	WorkspaceID string    `json:"workspaceId"`
	UserID      string    `json:"userId"`
	Status      string    `json:"status"`
	JoinedAt    time.Time `json:"joinedAt"`
}
