// Package auth issues and verifies the bearer tokens protecting the API
// and the WebSocket stream endpoint.
package auth

import (
	"errors"
	"fmt"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/aman-2709/vehicle-sovd-sub001/pkg/models"
)

// ErrInvalidToken covers every verification failure: bad signature, expiry,
// malformed claims. Callers must not leak the underlying cause to clients.
var ErrInvalidToken = errors.New("invalid token")

// DefaultTokenTTL is the issued token lifetime.
const DefaultTokenTTL = 24 * time.Hour

// Identity is the authenticated caller extracted from a verified token.
type Identity struct {
	UserID   string
	Username string
	Role     string
}

// IsAdmin reports whether the caller holds the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == models.RoleAdmin
}

// Service mints and verifies HS256 tokens. The same secret feeds the echo
// JWT middleware so both verification paths agree.
type Service struct {
	secret []byte
	ttl    time.Duration
}

func NewService(secret string, ttl time.Duration) *Service {
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{secret: []byte(secret), ttl: ttl}
}

// Secret exposes the signing key for the REST middleware.
func (s *Service) Secret() []byte {
	return s.secret
}

// Mint issues a signed token for the identity.
func (s *Service) Mint(id Identity) (string, error) {
	now := time.Now()
	token, err := jwt.NewBuilder().
		Subject(id.UserID).
		IssuedAt(now).
		Expiration(now.Add(s.ttl)).
		Claim("username", id.Username).
		Claim("role", id.Role).
		Build()
	if err != nil {
		return "", fmt.Errorf("building token: %w", err)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, s.secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return string(signed), nil
}

// Verify parses and validates a raw token. Used for the WebSocket endpoint,
// where the token arrives as a query parameter instead of a header.
func (s *Service) Verify(raw string) (Identity, error) {
	token, err := jwt.Parse([]byte(raw), jwt.WithKey(jwa.HS256, s.secret), jwt.WithValidate(true))
	if err != nil {
		return Identity{}, ErrInvalidToken
	}

	id := Identity{UserID: token.Subject()}
	if v, ok := token.Get("username"); ok {
		id.Username, _ = v.(string)
	}
	if v, ok := token.Get("role"); ok {
		id.Role, _ = v.(string)
	}
	if id.UserID == "" || id.Role == "" {
		return Identity{}, ErrInvalidToken
	}
	return id, nil
}

// IdentityFromToken extracts the caller from the token the echo JWT
// middleware stored in the request context.
func IdentityFromToken(token *gojwt.Token) (Identity, error) {
	claims, ok := token.Claims.(gojwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	id := Identity{}
	if sub, ok := claims["sub"].(string); ok {
		id.UserID = sub
	}
	if username, ok := claims["username"].(string); ok {
		id.Username = username
	}
	if role, ok := claims["role"].(string); ok {
		id.Role = role
	}
	if id.UserID == "" || id.Role == "" {
		return Identity{}, ErrInvalidToken
	}
	return id, nil
}
