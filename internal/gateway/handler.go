// Package gateway exposes the action dispatcher over HTTP.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xynes/accounts-service/internal/actions"
	"github.com/xynes/accounts-service/internal/middleware"
	"github.com/xynes/accounts-service/pkg/apperr"
	"github.com/xynes/accounts-service/pkg/response"
)

// Context headers set by the calling service.
const (
	HeaderUserID     = "X-XS-User-Id"
	HeaderWorkspace  = "X-Workspace-Id"
	HeaderUserEmail  = "X-XS-User-Email"
	HeaderUserName   = "X-XS-User-Name"
	HeaderUserAvatar = "X-XS-User-Avatar-Url"
)

// DefaultMaxBodyBytes bounds the action request body.
const DefaultMaxBodyBytes = 1 << 20

// Dispatcher runs registered actions.
type Dispatcher interface {
	Policy(key string) (actions.Policy, bool)
	Dispatch(ctx context.Context, key string, raw json.RawMessage, actx actions.Context) (interface{}, error)
}

// Handler serves POST /internal/accounts-actions.
type Handler struct {
	dispatcher   Dispatcher
	maxBodyBytes int64
	logger       *zap.Logger
}

// NewHandler creates an action gateway. maxBodyBytes <= 0 selects the default.
func NewHandler(d Dispatcher, maxBodyBytes int64, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{dispatcher: d, maxBodyBytes: maxBodyBytes, logger: logger}
}

// Register mounts the action route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.POST("/accounts-actions", h.Execute)
}

type envelope struct {
	ActionKey *string         `json:"actionKey"`
	Payload   json.RawMessage `json:"payload"`
}

// Execute validates the envelope and headers, builds the action context and
// dispatches.
func (h *Handler) Execute(c *gin.Context) {
	requestID := middleware.GetRequestID(c)

	env, err := h.readEnvelope(c)
	if err != nil {
		h.fail(c, err, requestID, "")
		return
	}
	key := *env.ActionKey

	policy, ok := h.dispatcher.Policy(key)
	if !ok {
		h.fail(c, actions.UnknownAction(key), requestID, key)
		return
	}

	actx, err := buildContext(c, policy, requestID)
	if err != nil {
		h.fail(c, err, requestID, key)
		return
	}

	h.logger.Info("action received",
		zap.String("action_key", key),
		zap.String("workspace_id", actx.WorkspaceID),
		zap.String("user_id", actx.UserID),
		zap.String("request_id", requestID))

	result, err := h.dispatcher.Dispatch(c.Request.Context(), key, env.Payload, actx)
	if err != nil {
		h.fail(c, err, requestID, key)
		return
	}
	if policy.Created {
		response.Created(c, result, requestID)
		return
	}
	response.OK(c, result, requestID)
}

func (h *Handler) readEnvelope(c *gin.Context) (*envelope, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.New(apperr.KindPayloadTooLarge, "Request body too large")
		}
		return nil, apperr.Wrap(apperr.KindValidation, "Invalid request body", err)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, invalidBody(err)
	}
	if dec.More() {
		return nil, invalidBody(errors.New("unexpected data after request body"))
	}
	if env.ActionKey == nil {
		return nil, apperr.WithDetails(apperr.KindValidation, "Invalid request body", &apperr.Details{
			Issues: []apperr.Issue{{Path: []string{"actionKey"}, Message: "actionKey is required", Code: "invalid_type"}},
		})
	}
	return &env, nil
}

func invalidBody(err error) error {
	issue := apperr.Issue{Path: []string{}, Message: err.Error(), Code: "invalid_json"}
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &typeErr):
		issue = apperr.Issue{Path: []string{typeErr.Field}, Message: "expected string", Code: "invalid_type"}
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.Trim(strings.TrimPrefix(err.Error(), "json: unknown field "), `"`)
		issue = apperr.Issue{Path: []string{}, Message: "Unrecognized key: " + field, Code: "unrecognized_keys"}
	}
	return apperr.WithDetails(apperr.KindValidation, "Invalid request body", &apperr.Details{Issues: []apperr.Issue{issue}})
}

// buildContext applies the per-action header policy. A malformed user header
// on a public action is ignored rather than rejected.
func buildContext(c *gin.Context, policy actions.Policy, requestID string) (actions.Context, error) {
	actx := actions.Context{RequestID: requestID}

	rawUser := strings.TrimSpace(c.GetHeader(HeaderUserID))
	switch {
	case rawUser == "" && !policy.Public:
		return actx, apperr.New(apperr.KindUnauthorized, HeaderUserID+" header is required")
	case rawUser != "" && isUUID(rawUser):
		actx.UserID = rawUser
	case rawUser != "" && !policy.Public:
		return actx, apperr.New(apperr.KindInvalidHeader, HeaderUserID+" must be a UUID")
	}

	rawWorkspace := strings.TrimSpace(c.GetHeader(HeaderWorkspace))
	switch {
	case rawWorkspace == "" && !policy.WorkspaceUnscoped:
		return actx, apperr.New(apperr.KindMissingContext, HeaderWorkspace+" header is required")
	case rawWorkspace != "" && !isUUID(rawWorkspace):
		return actx, apperr.New(apperr.KindInvalidHeader, HeaderWorkspace+" must be a UUID")
	}
	actx.WorkspaceID = rawWorkspace

	email := c.GetHeader(HeaderUserEmail)
	name := c.GetHeader(HeaderUserName)
	avatar := c.GetHeader(HeaderUserAvatar)
	if email != "" || name != "" || avatar != "" {
		actx.User = &actions.UserHints{Email: email, Name: name, AvatarURL: avatar}
	}
	return actx, nil
}

// isUUID accepts only the canonical hyphenated form.
func isUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

func (h *Handler) fail(c *gin.Context, err error, requestID, key string) {
	kind := apperr.KindOf(err)
	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("action_key", key),
		zap.String("code", string(kind)),
		zap.Error(err),
	}
	if apperr.HTTPStatus(kind) >= http.StatusInternalServerError {
		h.logger.Error("action failed", fields...)
	} else {
		h.logger.Info("action rejected", fields...)
	}
	response.Error(c, err, requestID)
}
