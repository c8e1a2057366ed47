package auth

import (
	"testing"
	"time"

	"github.com/cmallory/chat-relay/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key"

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	resolver, err := NewResolver(&config.Config{
		AuthConfig: config.AuthConfig{Secret: testSecret},
	})
	require.NoError(t, err)
	return resolver
}

func makeToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func accessClaims(memberId, nickname string, expiresIn time.Duration) Claims {
	return Claims{
		MemberId:  memberId,
		Nickname:  nickname,
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func requireRejected(t *testing.T, err error, reason string) {
	t.Helper()
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, reason, rejected.Reason)
}

func TestResolveValidCredential(t *testing.T) {
	resolver := newTestResolver(t)
	claims := accessClaims("m-1", "Neo", time.Hour)
	claims.Role = "user"
	principal, err := resolver.Resolve(makeToken(t, testSecret, claims))
	require.NoError(t, err)
	require.Equal(t, "m-1", principal.ID)
	require.Equal(t, "Neo", principal.DisplayName)
	require.Equal(t, "user", principal.Role)
}

func TestResolveMissingCredential(t *testing.T) {
	resolver := newTestResolver(t)
	_, err := resolver.Resolve("")
	requireRejected(t, err, ReasonMissing)
}

func TestResolveMalformedCredential(t *testing.T) {
	resolver := newTestResolver(t)
	for _, credential := range []string{
		"not.a.token",
		"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.invalid",
		makeToken(t, "some-other-secret", accessClaims("m-1", "Neo", time.Hour)),
	} {
		_, err := resolver.Resolve(credential)
		requireRejected(t, err, ReasonMalformed)
	}
}

func TestResolveExpiredCredential(t *testing.T) {
	resolver := newTestResolver(t)
	_, err := resolver.Resolve(makeToken(t, testSecret, accessClaims("m-1", "Neo", -time.Hour)))
	requireRejected(t, err, ReasonExpired)
}

func TestResolveWrongTokenType(t *testing.T) {
	resolver := newTestResolver(t)
	claims := accessClaims("m-1", "Neo", time.Hour)
	claims.TokenType = "refresh"
	_, err := resolver.Resolve(makeToken(t, testSecret, claims))
	requireRejected(t, err, ReasonWrongType)
}

func TestResolveSubjectFallback(t *testing.T) {
	resolver := newTestResolver(t)
	claims := Claims{
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "m-2",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	principal, err := resolver.Resolve(makeToken(t, testSecret, claims))
	require.NoError(t, err)
	require.Equal(t, "m-2", principal.ID)
	require.Equal(t, "m-2", principal.DisplayName)
}

func TestResolveNoSubject(t *testing.T) {
	resolver := newTestResolver(t)
	claims := Claims{
		TokenType: "access",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	_, err := resolver.Resolve(makeToken(t, testSecret, claims))
	requireRejected(t, err, ReasonMalformed)
}

func TestResolveIssuerEnforced(t *testing.T) {
	resolver, err := NewResolver(&config.Config{
		AuthConfig: config.AuthConfig{Secret: testSecret, Issuer: "chat-relay"},
	})
	require.NoError(t, err)
	_, err = resolver.Resolve(makeToken(t, testSecret, accessClaims("m-1", "Neo", time.Hour)))
	requireRejected(t, err, ReasonMalformed)

	claims := accessClaims("m-1", "Neo", time.Hour)
	claims.Issuer = "chat-relay"
	principal, err := resolver.Resolve(makeToken(t, testSecret, claims))
	require.NoError(t, err)
	require.Equal(t, "m-1", principal.ID)
}

func TestResolveCachedUntilExpiry(t *testing.T) {
	resolver := newTestResolver(t)
	// exp is serialized with one-second precision, so the expiry must sit on
	// a whole second that is still in the future.
	expiresAt := time.Now().Add(2 * time.Second).Truncate(time.Second)
	claims := accessClaims("m-1", "Neo", time.Hour)
	claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	token := makeToken(t, testSecret, claims)

	first, err := resolver.Resolve(token)
	require.NoError(t, err)
	second, err := resolver.Resolve(token)
	require.NoError(t, err)
	require.Equal(t, first, second)

	time.Sleep(time.Until(expiresAt) + 50*time.Millisecond)
	_, err = resolver.Resolve(token)
	requireRejected(t, err, ReasonExpired)
}

func TestNewResolverRequiresSecret(t *testing.T) {
	_, err := NewResolver(&config.Config{})
	require.Error(t, err)
}
