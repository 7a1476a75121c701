// Package authz is the client for the authorization service. The remote side
// owns role assignments and permission policy; this package only speaks its
// action RPC protocol.
package authz

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/xynes/accounts-service/pkg/apperr"
)

const (
	// DefaultTimeout bounds every remote call.
	DefaultTimeout = 5000 * time.Millisecond

	actionsPath = "/internal/authz-actions"

	actionAssignRole            = "authz.assignRole"
	actionCheckPermission       = "authz.checkPermission"
	actionListRolesForWorkspace = "authz.listRolesForWorkspace"
)

// AssignRoleRequest grants roleKey to a user within a workspace.
type AssignRoleRequest struct {
	UserID      string `json:"userId"`
	WorkspaceID string `json:"workspaceId"`
	RoleKey     string `json:"roleKey"`
}

// CheckPermissionRequest asks whether a user may perform actionKey.
type CheckPermissionRequest struct {
	UserID      string `json:"userId"`
	WorkspaceID string `json:"workspaceId"`
	ActionKey   string `json:"actionKey"`
}

// ListRolesRequest asks for the role assignments of users in a workspace.
type ListRolesRequest struct {
	WorkspaceID string   `json:"workspaceId"`
	UserIDs     []string `json:"userIds"`
}

// RoleAssignment is one (user, role) pair held in a workspace.
type RoleAssignment struct {
	UserID  string `json:"userId"`
	RoleKey string `json:"roleKey"`
}

// Config configures the client.
type Config struct {
	BaseURL      string
	ServiceToken string
	Timeout      time.Duration
}

// Client calls the authorization service. It keeps no local state besides
// the HTTP transport.
type Client struct {
	http     *resty.Client
	endpoint string
	timeout  time.Duration
	logger   *zap.Logger
}

type actionRequest struct {
	ActionKey string      `json:"actionKey"`
	Payload   interface{} `json:"payload"`
}

type actionResponse struct {
	OK   bool            `json:"ok"`
	Data json.RawMessage `json:"data"`
}

// New validates cfg and creates a client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		return nil, apperr.New(apperr.KindConfig, "AUTHZ_SERVICE_URL is not set")
	}
	if cfg.ServiceToken == "" {
		return nil, apperr.New(apperr.KindConfig, "INTERNAL_SERVICE_TOKEN is not set")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, apperr.Wrap(apperr.KindConfig, "AUTHZ_SERVICE_URL is invalid", err)
	}
	endpoint := base.ResolveReference(&url.URL{Path: actionsPath}).String()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	httpClient := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Internal-Service-Token", cfg.ServiceToken)

	return &Client{http: httpClient, endpoint: endpoint, timeout: timeout, logger: logger}, nil
}

// AssignRole grants a role. Timeouts surface as GatewayTimeout, every other
// failure as BadGateway.
func (c *Client) AssignRole(ctx context.Context, req AssignRoleRequest) error {
	if _, err := c.call(ctx, actionAssignRole, req); err != nil {
		return err
	}
	return nil
}

// CheckPermission reports whether the action is allowed. Any failure is
// logged and treated as a denial.
func (c *Client) CheckPermission(ctx context.Context, req CheckPermissionRequest) bool {
	data, err := c.callForData(ctx, actionCheckPermission, req)
	if err != nil {
		c.logger.Warn("permission check failed, denying",
			zap.String("action_key", req.ActionKey),
			zap.String("workspace_id", req.WorkspaceID),
			zap.String("user_id", req.UserID),
			zap.Error(err))
		return false
	}
	var out struct {
		Allowed *bool `json:"allowed"`
	}
	if err := json.Unmarshal(data, &out); err != nil || out.Allowed == nil {
		c.logger.Warn("malformed permission check response, denying",
			zap.String("action_key", req.ActionKey))
		return false
	}
	return *out.Allowed
}

// ListRolesForWorkspace returns role assignments for the given users. Errors
// propagate so callers can choose their own fallback.
func (c *Client) ListRolesForWorkspace(ctx context.Context, req ListRolesRequest) ([]RoleAssignment, error) {
	if req.UserIDs == nil {
		req.UserIDs = []string{}
	}
	data, err := c.callForData(ctx, actionListRolesForWorkspace, req)
	if err != nil {
		return nil, err
	}
	var out struct {
		Assignments *[]RoleAssignment `json:"assignments"`
	}
	if err := json.Unmarshal(data, &out); err != nil || out.Assignments == nil {
		return nil, apperr.Wrap(apperr.KindBadGateway, "Malformed response from authz service", err)
	}
	return *out.Assignments, nil
}

// callForData performs the call and unwraps the {ok, data} envelope.
func (c *Client) callForData(ctx context.Context, actionKey string, payload interface{}) (json.RawMessage, error) {
	body, err := c.call(ctx, actionKey, payload)
	if err != nil {
		return nil, err
	}
	var env actionResponse
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperr.Wrap(apperr.KindBadGateway, "Malformed response from authz service", err)
	}
	if !env.OK {
		return nil, apperr.New(apperr.KindBadGateway, "Authz service rejected the request")
	}
	return env.Data, nil
}

func (c *Client) call(ctx context.Context, actionKey string, payload interface{}) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(actionRequest{ActionKey: actionKey, Payload: payload}).
		Post(c.endpoint)
	if err != nil {
		if isTimeout(err) {
			return nil, apperr.Wrap(apperr.KindGatewayTimeout, "Authz service request timed out", err)
		}
		return nil, apperr.Wrap(apperr.KindBadGateway, "Failed to reach authz service", err)
	}
	if !resp.IsSuccess() {
		c.logger.Debug("authz service returned error status",
			zap.String("action_key", actionKey),
			zap.Int("status", resp.StatusCode()))
		return nil, apperr.New(apperr.KindBadGateway, "Authz service returned an error")
	}
	return resp.Body(), nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
