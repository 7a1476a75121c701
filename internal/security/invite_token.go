package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/xynes/accounts-service/pkg/apperr"
)

const (
	// MinInviteTokenBytes is the smallest accepted amount of token entropy.
	MinInviteTokenBytes = 16
	// DefaultInviteTokenBytes yields a 43 character token.
	DefaultInviteTokenBytes = 32
)

// InviteTokenPair holds a raw invite token and its storage hash.
type InviteTokenPair struct {
	Token     string
	TokenHash string
}

// HashInviteToken returns the hex SHA-256 of the trimmed token.
func HashInviteToken(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

// GenerateInviteToken returns a random base64url token (no padding) of n
// random bytes together with its hash.
func GenerateInviteToken(n int) (InviteTokenPair, error) {
	if n < MinInviteTokenBytes {
		return InviteTokenPair{}, apperr.New(apperr.KindConfig,
			fmt.Sprintf("Invite token must be at least %d random bytes", MinInviteTokenBytes))
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return InviteTokenPair{}, apperr.Wrap(apperr.KindInternal, "Failed to generate invite token", err)
	}
	token := base64.RawURLEncoding.EncodeToString(b)
	return InviteTokenPair{Token: token, TokenHash: HashInviteToken(token)}, nil
}
