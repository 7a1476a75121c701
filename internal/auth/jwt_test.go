package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const signingKey = "internal-signing-key-for-tests"

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestVerifier(cfg VerifierConfig) *Verifier {
	v := NewVerifier(cfg)
	v.now = func() time.Time { return fixedNow }
	return v
}

func sign(t *testing.T, claims jwt.Claims, method jwt.SigningMethod, key string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func claimsAt(iat time.Time, ttl time.Duration) InternalClaims {
	return InternalClaims{
		Internal:  true,
		RequestID: "req-1",
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{ServiceAudience},
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(iat.Add(ttl)),
		},
	}
}

func TestVerifyAcceptsInternalJWT(t *testing.T) {
	v := newTestVerifier(VerifierConfig{SigningKey: signingKey})
	token, err := SignInternal(signingKey, ServiceAudience, "req-42", time.Minute, fixedNow.Add(-10*time.Second))
	require.NoError(t, err)

	claims, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "req-42", claims.RequestID)
	assert.True(t, claims.Internal)
}

func TestVerifyRejectsInvalidJWTs(t *testing.T) {
	wrongAud := claimsAt(fixedNow, time.Minute)
	wrongAud.Audience = jwt.ClaimStrings{"authz-service"}

	notInternal := claimsAt(fixedNow, time.Minute)
	notInternal.Internal = false

	noRequestID := claimsAt(fixedNow, time.Minute)
	noRequestID.RequestID = ""

	noExp := claimsAt(fixedNow, time.Minute)
	noExp.ExpiresAt = nil

	noIat := claimsAt(fixedNow, time.Minute)
	noIat.IssuedAt = nil

	cases := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"wrong key", sign(t, claimsAt(fixedNow, time.Minute), jwt.SigningMethodHS256, "other-key")},
		{"wrong algorithm", sign(t, claimsAt(fixedNow, time.Minute), jwt.SigningMethodHS512, signingKey)},
		{"expired beyond skew", sign(t, claimsAt(fixedNow.Add(-100*time.Second), time.Minute), jwt.SigningMethodHS256, signingKey)},
		{"too old", sign(t, claimsAt(fixedNow.Add(-150*time.Second), time.Hour), jwt.SigningMethodHS256, signingKey)},
		{"issued in the future", sign(t, claimsAt(fixedNow.Add(time.Minute), time.Hour), jwt.SigningMethodHS256, signingKey)},
		{"wrong audience", sign(t, wrongAud, jwt.SigningMethodHS256, signingKey)},
		{"not internal", sign(t, notInternal, jwt.SigningMethodHS256, signingKey)},
		{"missing requestId", sign(t, noRequestID, jwt.SigningMethodHS256, signingKey)},
		{"missing exp", sign(t, noExp, jwt.SigningMethodHS256, signingKey)},
		{"missing iat", sign(t, noIat, jwt.SigningMethodHS256, signingKey)},
	}
	v := newTestVerifier(VerifierConfig{SigningKey: signingKey})
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Verify(tc.token)
			assert.Error(t, err)
		})
	}
}

func TestVerifyToleratesClockSkew(t *testing.T) {
	v := newTestVerifier(VerifierConfig{SigningKey: signingKey})

	// Expired 20s ago, inside the 30s leeway.
	token := sign(t, claimsAt(fixedNow.Add(-80*time.Second), time.Minute), jwt.SigningMethodHS256, signingKey)
	_, err := v.Verify(token)
	assert.NoError(t, err)

	// Issued 20s ahead of our clock.
	token = sign(t, claimsAt(fixedNow.Add(20*time.Second), time.Minute), jwt.SigningMethodHS256, signingKey)
	_, err = v.Verify(token)
	assert.NoError(t, err)
}

func TestVerifyLegacyToken(t *testing.T) {
	disabled := newTestVerifier(VerifierConfig{SigningKey: signingKey, LegacyToken: "static-secret"})
	_, err := disabled.Verify("static-secret")
	assert.Error(t, err)

	enabled := newTestVerifier(VerifierConfig{SigningKey: signingKey, LegacyToken: "static-secret", AllowLegacy: true})
	_, err = enabled.Verify("static-secret")
	assert.NoError(t, err)
	_, err = enabled.Verify("static-secreT")
	assert.Error(t, err)

	jwtOnly, err := SignInternal(signingKey, ServiceAudience, "req-1", time.Minute, fixedNow)
	require.NoError(t, err)
	_, err = enabled.Verify(jwtOnly)
	assert.NoError(t, err, "JWTs are still accepted alongside the legacy token")

	legacyOnly := newTestVerifier(VerifierConfig{LegacyToken: "static-secret", AllowLegacy: true})
	_, err = legacyOnly.Verify("static-secret")
	assert.NoError(t, err)
}

func TestVerifyRejectsEverythingWithoutSecrets(t *testing.T) {
	v := newTestVerifier(VerifierConfig{AllowLegacy: true})
	_, err := v.Verify("")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = v.Verify("anything")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
