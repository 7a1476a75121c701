// Package auth authenticates calls from other internal services.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceAudience is the audience internal tokens must carry for this service.
const ServiceAudience = "accounts-service"

const (
	defaultClockSkew = 30 * time.Second
	defaultMaxAge    = 120 * time.Second
)

var (
	ErrInvalidToken = errors.New("invalid internal token")
	ErrNotInternal  = errors.New("not an internal token")
	ErrTokenTooOld  = errors.New("internal token too old")
	ErrNoRequestID  = errors.New("internal token missing requestId")
)

// InternalClaims are the claims of a service-to-service token.
type InternalClaims struct {
	Internal  bool   `json:"internal"`
	RequestID string `json:"requestId"`
	jwt.RegisteredClaims
}

// VerifierConfig configures internal token verification.
type VerifierConfig struct {
	SigningKey  string
	LegacyToken string
	AllowLegacy bool
}

// Verifier checks X-Internal-Service-Token values. A token is accepted if it
// is an HS256 internal JWT for this service or, when allowed, equals the
// legacy static token.
type Verifier struct {
	key         []byte
	legacy      []byte
	allowLegacy bool
	clockSkew   time.Duration
	maxAge      time.Duration
	now         func() time.Time
}

// NewVerifier creates a verifier. With no signing key and no legacy token
// every token is rejected.
func NewVerifier(cfg VerifierConfig) *Verifier {
	return &Verifier{
		key:         []byte(cfg.SigningKey),
		legacy:      []byte(cfg.LegacyToken),
		allowLegacy: cfg.AllowLegacy && cfg.LegacyToken != "",
		clockSkew:   defaultClockSkew,
		maxAge:      defaultMaxAge,
		now:         time.Now,
	}
}

// Verify authenticates a raw header value. It never reports which secret was
// compared, only whether the token was accepted.
func (v *Verifier) Verify(token string) (*InternalClaims, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	if len(v.key) > 0 {
		claims, err := v.verifyJWT(token)
		if err == nil {
			return claims, nil
		}
		if !v.allowLegacy {
			return nil, err
		}
	}
	if v.allowLegacy && subtle.ConstantTimeCompare([]byte(token), v.legacy) == 1 {
		return &InternalClaims{}, nil
	}
	return nil, ErrInvalidToken
}

func (v *Verifier) verifyJWT(token string) (*InternalClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(ServiceAudience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.clockSkew),
		jwt.WithTimeFunc(v.now),
	)
	var claims InternalClaims
	_, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return v.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !claims.Internal {
		return nil, ErrNotInternal
	}
	if claims.IssuedAt == nil || claims.IssuedAt.Time.Before(v.now().Add(-v.maxAge)) {
		return nil, ErrTokenTooOld
	}
	if claims.RequestID == "" {
		return nil, ErrNoRequestID
	}
	return &claims, nil
}

// SignInternal issues an internal token for audience, valid for ttl. The
// calling service uses it to authenticate against its peers.
func SignInternal(key, audience, requestID string, ttl time.Duration, now time.Time) (string, error) {
	claims := InternalClaims{
		Internal:  true,
		RequestID: requestID,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
}
