package utils // package utils provides helpers for tokens, identifiers and logging

import (
	"errors" // errors defines the token validation failures
	"fmt"    // fmt formats numeric subjects
	"time"   // time utilities for generating expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for creating and verifying signed tokens
)

// ErrInvalidToken is returned when a token cannot be parsed, has a bad
// signature, is expired, or lacks a subject claim.
var ErrInvalidToken = errors.New("invalid token")

// AccessToken represents a signed JWT access token along with its expiry.
// Tokens are issued by the authentication collaborator; this service only
// needs to mint them for local development through cmd/tokengen.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// Claims is the identity extracted from a verified access token.
type Claims struct {
	UserID string // sub claim
	Role   string // role claim, may be empty
}

// NewAccessToken builds and signs an HS256 JWT for a user.  The JWT carries
// the standard subject (sub), role, expiration (exp) and issued at (iat)
// claims consumed by ParseAccessToken.
func NewAccessToken(secret, userID, role string, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies an HMAC-signed token and returns its identity.
// Both the HTTP middleware and the websocket handshake use it so the two
// entry points accept exactly the same tokens.
func ParseAccessToken(secret, raw string) (Claims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		// Reject anything that is not HMAC so a token cannot pick its own algorithm.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return Claims{}, ErrInvalidToken
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	var out Claims
	switch sub := mc["sub"].(type) {
	case string:
		out.UserID = sub
	case float64:
		// numeric subjects come from collaborators that key users by integer ids
		out.UserID = fmt.Sprintf("%.0f", sub)
	}
	if out.UserID == "" {
		return Claims{}, ErrInvalidToken
	}
	if role, ok := mc["role"].(string); ok {
		out.Role = role
	}
	return out, nil
}
