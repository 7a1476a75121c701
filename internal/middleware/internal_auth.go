package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xynes/accounts-service/internal/auth"
	"github.com/xynes/accounts-service/pkg/apperr"
	"github.com/xynes/accounts-service/pkg/response"
)

// HeaderInternalToken carries the service-to-service credential.
const HeaderInternalToken = "X-Internal-Service-Token"

// TokenVerifier authenticates internal service tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.InternalClaims, error)
}

// InternalAuth rejects requests that do not carry a valid internal service
// token. Token values are never logged.
func InternalAuth(verifier TokenVerifier, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := verifier.Verify(c.GetHeader(HeaderInternalToken)); err != nil {
			logger.Warn("internal auth rejected",
				zap.String("request_id", GetRequestID(c)),
				zap.String("path", c.Request.URL.Path),
				zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Failure(
				string(apperr.KindUnauthorized), "Invalid internal service token", GetRequestID(c), nil))
			return
		}
		c.Next()
	}
}
