package users

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xynes/accounts-service/internal/actions"
	"github.com/xynes/accounts-service/internal/models"
	"github.com/xynes/accounts-service/pkg/apperr"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) Upsert(ctx context.Context, p UpsertParams) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *mockStore) UpdateDisplayName(ctx context.Context, id, displayName string) (*models.User, error) {
	args := m.Called(ctx, id, displayName)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

type mockWorkspaces struct {
	mock.Mock
}

func (m *mockWorkspaces) ListForUser(ctx context.Context, userID string) ([]models.WorkspaceSummary, error) {
	args := m.Called(ctx, userID)
	list, _ := args.Get(0).([]models.WorkspaceSummary)
	return list, args.Error(1)
}

func strPtr(s string) *string { return &s }

func TestReadSelf(t *testing.T) {
	store := new(mockStore)
	h := NewHandler(store, new(mockWorkspaces), nil)
	ctx := context.Background()

	u := &models.User{ID: "u1", Email: "ann@example.com", CreatedAt: time.Now()}
	store.On("GetByID", ctx, "u1").Return(u, nil).Once()
	out, err := h.ReadSelf(ctx, actions.Empty{}, actions.Context{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, u, out)

	store.On("GetByID", ctx, "u2").Return(nil, nil).Once()
	_, err = h.ReadSelf(ctx, actions.Empty{}, actions.Context{UserID: "u2"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = h.ReadSelf(ctx, actions.Empty{}, actions.Context{})
	assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err))
	store.AssertExpectations(t)
}

func TestUpdateSelf(t *testing.T) {
	store := new(mockStore)
	h := NewHandler(store, new(mockWorkspaces), nil)
	ctx := context.Background()

	store.On("UpdateDisplayName", ctx, "u1", "Ann").
		Return(&models.User{ID: "u1", Email: "ann@example.com", DisplayName: strPtr("Ann")}, nil).Once()
	out, err := h.UpdateSelf(ctx, UpdateSelfPayload{DisplayName: "Ann"}, actions.Context{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, models.UserProfile{ID: "u1", Email: "ann@example.com", DisplayName: strPtr("Ann")}, out)

	store.On("UpdateDisplayName", ctx, "ghost", "Ann").Return(nil, nil).Once()
	_, err = h.UpdateSelf(ctx, UpdateSelfPayload{DisplayName: "Ann"}, actions.Context{UserID: "ghost"})
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	store.AssertExpectations(t)
}

func TestUpdateSelfPayloadTrimsAndValidates(t *testing.T) {
	var p UpdateSelfPayload
	require.NoError(t, actions.Decode([]byte(`{"displayName":"  Ann  "}`), &p))
	assert.Equal(t, "Ann", p.DisplayName)

	err := actions.Decode([]byte(`{"displayName":"   "}`), &p)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	err = actions.Decode([]byte(`{"displayName":"`+strings.Repeat("a", 201)+`"}`), &p)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestMeGetOrCreate(t *testing.T) {
	store := new(mockStore)
	ws := new(mockWorkspaces)
	h := NewHandler(store, ws, nil)
	ctx := context.Background()

	actx := actions.Context{UserID: "u1", User: &actions.UserHints{
		Email:     " ann@example.com ",
		Name:      " Ann ",
		AvatarURL: strings.Repeat("x", 2049),
	}}
	store.On("Upsert", ctx, UpsertParams{ID: "u1", Email: "ann@example.com", DisplayName: strPtr("Ann")}).Return(nil).Once()
	store.On("GetByID", ctx, "u1").Return(&models.User{ID: "u1", Email: "ann@example.com", DisplayName: strPtr("Ann")}, nil).Once()
	ws.On("ListForUser", ctx, "u1").Return(nil, nil).Once()

	out, err := h.MeGetOrCreate(ctx, actions.Empty{}, actx)
	require.NoError(t, err)
	res := out.(MeResult)
	assert.Equal(t, "u1", res.User.ID)
	assert.Equal(t, []models.WorkspaceSummary{}, res.Workspaces)
	store.AssertExpectations(t)
	ws.AssertExpectations(t)
}

func TestMeGetOrCreateRequiresValidEmailHint(t *testing.T) {
	h := NewHandler(new(mockStore), new(mockWorkspaces), nil)
	for _, email := range []string{"", "not-an-email", strings.Repeat("a", 320) + "@example.com"} {
		_, err := h.MeGetOrCreate(context.Background(), actions.Empty{},
			actions.Context{UserID: "u1", User: &actions.UserHints{Email: email}})
		assert.Equal(t, apperr.KindUnauthorized, apperr.KindOf(err), email)
	}
}

func TestMeGetOrCreatePropagatesStoreErrors(t *testing.T) {
	store := new(mockStore)
	h := NewHandler(store, new(mockWorkspaces), nil)
	ctx := context.Background()
	boom := errors.New("connection reset")

	store.On("Upsert", ctx, mock.Anything).Return(boom).Once()
	_, err := h.MeGetOrCreate(ctx, actions.Empty{}, actions.Context{UserID: "u1", User: &actions.UserHints{Email: "a@b.co"}})
	assert.ErrorIs(t, err, boom)

	store.On("Upsert", ctx, mock.Anything).Return(nil).Once()
	store.On("GetByID", ctx, "u1").Return(nil, nil).Once()
	_, err = h.MeGetOrCreate(ctx, actions.Empty{}, actions.Context{UserID: "u1", User: &actions.UserHints{Email: "a@b.co"}})
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
}

func TestRegisterPolicies(t *testing.T) {
	b := actions.NewBuilder()
	NewHandler(new(mockStore), new(mockWorkspaces), nil).Register(b)
	d := b.Build()

	p, ok := d.Policy(ActionReadSelf)
	require.True(t, ok)
	assert.False(t, p.WorkspaceUnscoped)

	p, _ = d.Policy(ActionUpdateSelf)
	assert.True(t, p.WorkspaceUnscoped)

	p, _ = d.Policy(ActionMeGetOrCreate)
	assert.True(t, p.WorkspaceUnscoped)
	assert.False(t, p.Public)
}
