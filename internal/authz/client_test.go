package authz

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xynes/accounts-service/pkg/apperr"
)

type recordedCall struct {
	Path      string
	Token     string
	ActionKey string
	Payload   map[string]interface{}
}

func newServer(t *testing.T, calls *[]recordedCall, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var req struct {
			ActionKey string                 `json:"actionKey"`
			Payload   map[string]interface{} `json:"payload"`
		}
		_ = json.Unmarshal(raw, &req)
		if calls != nil {
			*calls = append(*calls, recordedCall{
				Path:      r.URL.Path,
				Token:     r.Header.Get("X-Internal-Service-Token"),
				ActionKey: req.ActionKey,
				Payload:   req.Payload,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newSlowServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, baseURL string, timeout time.Duration) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: baseURL, ServiceToken: "svc-token", Timeout: timeout}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{ServiceToken: "x"}, nil)
	assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))

	_, err = New(Config{BaseURL: "http://authz:4000"}, nil)
	assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))

	_, err = New(Config{BaseURL: "not a url", ServiceToken: "x"}, nil)
	assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))

	c, err := New(Config{BaseURL: "http://authz:4000/base", ServiceToken: "x"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://authz:4000/internal/authz-actions", c.endpoint)
	assert.Equal(t, DefaultTimeout, c.timeout)
}

func TestAssignRole(t *testing.T) {
	var calls []recordedCall
	srv := newServer(t, &calls, http.StatusOK, `{"ok":true,"data":{}}`)
	c := newClient(t, srv.URL, time.Second)

	err := c.AssignRole(context.Background(), AssignRoleRequest{UserID: "u1", WorkspaceID: "w1", RoleKey: "workspace_owner"})
	require.NoError(t, err)

	require.Len(t, calls, 1)
	assert.Equal(t, "/internal/authz-actions", calls[0].Path)
	assert.Equal(t, "svc-token", calls[0].Token)
	assert.Equal(t, "authz.assignRole", calls[0].ActionKey)
	assert.Equal(t, "workspace_owner", calls[0].Payload["roleKey"])
	assert.Equal(t, "w1", calls[0].Payload["workspaceId"])
}

func TestAssignRoleAcceptsEmptySuccessBody(t *testing.T) {
	srv := newServer(t, nil, http.StatusNoContent, "")
	c := newClient(t, srv.URL, time.Second)
	assert.NoError(t, c.AssignRole(context.Background(), AssignRoleRequest{UserID: "u1", WorkspaceID: "w1", RoleKey: "r"}))
}

func TestAssignRoleNon2xxIsBadGateway(t *testing.T) {
	srv := newServer(t, nil, http.StatusInternalServerError, `{"ok":false}`)
	c := newClient(t, srv.URL, time.Second)

	err := c.AssignRole(context.Background(), AssignRoleRequest{UserID: "u1", WorkspaceID: "w1", RoleKey: "r"})
	assert.Equal(t, apperr.KindBadGateway, apperr.KindOf(err))
}

func TestAssignRoleTimeout(t *testing.T) {
	srv := newSlowServer(t)
	c := newClient(t, srv.URL, 50*time.Millisecond)

	start := time.Now()
	err := c.AssignRole(context.Background(), AssignRoleRequest{UserID: "u1", WorkspaceID: "w1", RoleKey: "r"})
	assert.Equal(t, apperr.KindGatewayTimeout, apperr.KindOf(err))
	assert.Less(t, time.Since(start), time.Second)
}

func TestAssignRoleTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c := newClient(t, url, time.Second)

	err := c.AssignRole(context.Background(), AssignRoleRequest{UserID: "u1", WorkspaceID: "w1", RoleKey: "r"})
	assert.Equal(t, apperr.KindBadGateway, apperr.KindOf(err))
}

func TestCheckPermission(t *testing.T) {
	var calls []recordedCall
	srv := newServer(t, &calls, http.StatusOK, `{"ok":true,"data":{"allowed":true}}`)
	c := newClient(t, srv.URL, time.Second)

	allowed := c.CheckPermission(context.Background(), CheckPermissionRequest{UserID: "u1", WorkspaceID: "w1", ActionKey: "accounts.invites.create"})
	assert.True(t, allowed)
	require.Len(t, calls, 1)
	assert.Equal(t, "authz.checkPermission", calls[0].ActionKey)
	assert.Equal(t, "accounts.invites.create", calls[0].Payload["actionKey"])
}

func TestCheckPermissionFailsClosed(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"denied", http.StatusOK, `{"ok":true,"data":{"allowed":false}}`},
		{"non-2xx", http.StatusBadGateway, `{"ok":true,"data":{"allowed":true}}`},
		{"malformed", http.StatusOK, `not json`},
		{"missing field", http.StatusOK, `{"ok":true,"data":{}}`},
		{"not ok", http.StatusOK, `{"ok":false,"data":{"allowed":true}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := newServer(t, nil, tc.status, tc.body)
			c := newClient(t, srv.URL, time.Second)
			assert.False(t, c.CheckPermission(context.Background(), CheckPermissionRequest{UserID: "u1", WorkspaceID: "w1", ActionKey: "a"}))
		})
	}

	t.Run("timeout", func(t *testing.T) {
		c := newClient(t, newSlowServer(t).URL, 50*time.Millisecond)
		assert.False(t, c.CheckPermission(context.Background(), CheckPermissionRequest{UserID: "u1", WorkspaceID: "w1", ActionKey: "a"}))
	})
}

func TestListRolesForWorkspace(t *testing.T) {
	var calls []recordedCall
	srv := newServer(t, &calls, http.StatusOK,
		`{"ok":true,"data":{"assignments":[{"userId":"u1","roleKey":"workspace_admin"},{"userId":"u2","roleKey":"workspace_member"}]}}`)
	c := newClient(t, srv.URL, time.Second)

	got, err := c.ListRolesForWorkspace(context.Background(), ListRolesRequest{WorkspaceID: "w1", UserIDs: []string{"u1", "u2"}})
	require.NoError(t, err)
	assert.Equal(t, []RoleAssignment{{UserID: "u1", RoleKey: "workspace_admin"}, {UserID: "u2", RoleKey: "workspace_member"}}, got)
	require.Len(t, calls, 1)
	assert.Equal(t, "authz.listRolesForWorkspace", calls[0].ActionKey)
}

func TestListRolesForWorkspacePropagatesErrors(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		c := newClient(t, newSlowServer(t).URL, 50*time.Millisecond)
		_, err := c.ListRolesForWorkspace(context.Background(), ListRolesRequest{WorkspaceID: "w1"})
		assert.Equal(t, apperr.KindGatewayTimeout, apperr.KindOf(err))
	})
	t.Run("non-2xx", func(t *testing.T) {
		c := newClient(t, newServer(t, nil, http.StatusServiceUnavailable, "").URL, time.Second)
		_, err := c.ListRolesForWorkspace(context.Background(), ListRolesRequest{WorkspaceID: "w1"})
		assert.Equal(t, apperr.KindBadGateway, apperr.KindOf(err))
	})
	t.Run("malformed", func(t *testing.T) {
		c := newClient(t, newServer(t, nil, http.StatusOK, `{"ok":true,"data":{"roles":[]}}`).URL, time.Second)
		_, err := c.ListRolesForWorkspace(context.Background(), ListRolesRequest{WorkspaceID: "w1"})
		assert.Equal(t, apperr.KindBadGateway, apperr.KindOf(err))
	})
}
