package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/cmallory/chat-relay/config"
	"github.com/cmallory/chat-relay/types"
	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru"
)

// Rejection reasons for a bearer credential.
const (
	ReasonMissing   = "MISSING"
	ReasonMalformed = "MALFORMED"
	ReasonExpired   = "EXPIRED"
	ReasonWrongType = "WRONG_TYPE"
)

// RejectedError is returned when a credential cannot be resolved to a
// Principal. It is the expected outcome for user-shaped input; resolution
// never panics.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("credential rejected: %s", e.Reason)
}

// Claims is the claim set carried by a verified token.
type Claims struct {
	MemberId  string `json:"memberId"`
	Nickname  string `json:"nickname"`
	Role      string `json:"role"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

type cacheEntry struct {
	principal types.Principal
	expiresAt time.Time
}

// Resolver verifies bearer credentials and produces Principals. Verified
// results are cached until the credential expires, so reconnects with the
// same token skip signature verification.
type Resolver struct {
	secret    []byte
	issuer    string
	tokenType string
	cache     *lru.Cache
}

func NewResolver(cfg *config.Config) (*Resolver, error) {
	if cfg.AuthConfig.Secret == "" {
		return nil, errors.New("auth: no secret configured")
	}
	cache, err := lru.New(cfg.AuthCacheSize())
	if err != nil {
		return nil, err
	}
	return &Resolver{
		secret:    []byte(cfg.AuthConfig.Secret),
		issuer:    cfg.AuthConfig.Issuer,
		tokenType: cfg.TokenType(),
		cache:     cache,
	}, nil
}

// Resolve verifies the given credential and extracts the Principal. On any
// verification failure it returns a *RejectedError with a specific reason;
// it has no side effects beyond the verification itself.
func (r *Resolver) Resolve(credential string) (*types.Principal, error) {
	if credential == "" {
		return nil, &RejectedError{Reason: ReasonMissing}
	}
	if v, ok := r.cache.Get(credential); ok {
		entry := v.(cacheEntry)
		if time.Now().Before(entry.expiresAt) {
			p := entry.principal
			return &p, nil
		}
		r.cache.Remove(credential)
		return nil, &RejectedError{Reason: ReasonExpired}
	}

	claims := &Claims{}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if r.issuer != "" {
		opts = append(opts, jwt.WithIssuer(r.issuer))
	}
	_, err := jwt.ParseWithClaims(credential, claims, func(*jwt.Token) (interface{}, error) {
		return r.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, &RejectedError{Reason: ReasonExpired}
		}
		return nil, &RejectedError{Reason: ReasonMalformed}
	}
	if claims.TokenType != r.tokenType {
		return nil, &RejectedError{Reason: ReasonWrongType}
	}

	subject := claims.MemberId
	if subject == "" {
		subject = claims.Subject
	}
	if subject == "" {
		return nil, &RejectedError{Reason: ReasonMalformed}
	}
	displayName := claims.Nickname
	if displayName == "" {
		displayName = subject
	}
	principal := types.Principal{ID: subject, DisplayName: displayName, Role: claims.Role}
	if claims.ExpiresAt != nil {
		r.cache.Add(credential, cacheEntry{principal: principal, expiresAt: claims.ExpiresAt.Time})
	}
	p := principal
	return &p, nil
}
