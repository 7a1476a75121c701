package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("saga: %w", New(KindConflict, "slug taken"))
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.True(t, errors.Is(wrapped, New(KindConflict, "")))
	assert.False(t, errors.Is(wrapped, New(KindGone, "")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Wrap(KindBadGateway, "Failed to reach authz service", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "refused")
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(New(KindBadGateway, "x")))
	assert.True(t, IsTransient(fmt.Errorf("list: %w", New(KindGatewayTimeout, "x"))))
	assert.False(t, IsTransient(New(KindConfig, "x")))
	assert.False(t, IsTransient(errors.New("plain")))
	assert.False(t, IsTransient(nil))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindUnauthorized:    http.StatusUnauthorized,
		KindForbidden:       http.StatusForbidden,
		KindMissingContext:  http.StatusBadRequest,
		KindNotFound:        http.StatusNotFound,
		KindConflict:        http.StatusConflict,
		KindGone:            http.StatusGone,
		KindValidation:      http.StatusBadRequest,
		KindPayloadTooLarge: http.StatusRequestEntityTooLarge,
		KindBadGateway:      http.StatusBadGateway,
		KindGatewayTimeout:  http.StatusGatewayTimeout,
		KindUnknownAction:   http.StatusBadRequest,
		KindInternal:        http.StatusInternalServerError,
		KindConfig:          http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, HTTPStatus(kind), kind)
	}
	assert.Equal(t, "INTERNAL_ERROR", PublicCode(KindConfig))
	assert.Equal(t, "GONE", PublicCode(KindGone))
}
