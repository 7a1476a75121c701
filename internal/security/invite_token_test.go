package security

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xynes/accounts-service/pkg/apperr"
)

func TestGenerateInviteTokenRoundTrip(t *testing.T) {
	pair, err := GenerateInviteToken(DefaultInviteTokenBytes)
	require.NoError(t, err)

	assert.Len(t, pair.Token, 43)
	assert.NotContains(t, pair.Token, "=")
	assert.NotEqual(t, pair.Token, pair.TokenHash)
	assert.Equal(t, HashInviteToken(pair.Token), pair.TokenHash)
	assert.Len(t, pair.TokenHash, 64)

	raw, err := base64.RawURLEncoding.DecodeString(pair.Token)
	require.NoError(t, err)
	assert.Len(t, raw, DefaultInviteTokenBytes)
}

func TestGenerateInviteTokenIsRandom(t *testing.T) {
	a, err := GenerateInviteToken(MinInviteTokenBytes)
	require.NoError(t, err)
	b, err := GenerateInviteToken(MinInviteTokenBytes)
	require.NoError(t, err)
	assert.NotEqual(t, a.Token, b.Token)
	assert.GreaterOrEqual(t, len(a.Token), 22)
}

func TestGenerateInviteTokenRejectsShortLength(t *testing.T) {
	_, err := GenerateInviteToken(15)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConfig, apperr.KindOf(err))
}

func TestHashInviteToken(t *testing.T) {
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashInviteToken("abc"))
	assert.Equal(t, HashInviteToken("abc"), HashInviteToken("  abc\n"))
	assert.NotEqual(t, HashInviteToken("abc"), HashInviteToken("ABC"))
	assert.Equal(t, strings.ToLower(HashInviteToken("x")), HashInviteToken("x"))
}
