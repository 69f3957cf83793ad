package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL applies when GenerateToken is given a non-positive TTL.
const DefaultTokenTTL = 8 * time.Hour

// CustomClaims extends JWT standard claims with the agent's role.
// Subject is the agent identity.
type CustomClaims struct {
	jwt.RegisteredClaims
	Role      Role   `json:"role"`
	SessionID string `json:"sid"`
}

// AgentID returns the agent identity carried in the token.
func (c *CustomClaims) AgentID() string {
	return c.Subject
}

// TokenParams describes a token to sign.
type TokenParams struct {
	AgentID string
	Role    Role
	Issuer  string
	TTL     time.Duration
}

// GenerateToken creates a signed HS256 bearer token for an agent.
// Tokens are validated by signature only; there is no revocation list.
func GenerateToken(p TokenParams, secret string) (string, error) {
	if !IsValidAgentID(p.AgentID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAgentID, p.AgentID)
	}
	if !IsValidRole(p.Role) {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, p.Role)
	}
	ttl := p.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	now := time.Now()
	claims := CustomClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.AgentID,
			Issuer:    p.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Role:      p.Role,
		SessionID: uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ParseToken validates and parses a bearer token, returning the custom claims.
// It checks the signature, expiry, issuer (when non-empty) and required fields.
func ParseToken(tokenString, secret, issuer string) (*CustomClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}

	if !IsValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}

	return claims, nil
}
