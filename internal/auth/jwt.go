// Package auth verifies the opaque bearer tokens clients connect with.
package auth

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/WatchParty/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Verifier turns a bearer token into an identity. The token issuer is an
// external collaborator; this is the only contract the server relies on.
type Verifier interface {
	Verify(ctx context.Context, token string) (*domain.Identity, error)
}

type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Picture  string `json:"picture,omitempty"`
}

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	issuer string
}

func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *JWTVerifier) Verify(_ context.Context, token string) (*domain.Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	uid := claims.UserID
	if uid == "" {
		uid = claims.Subject
	}
	id, err := domain.NewIdentity(domain.UserID(uid), claims.Username, claims.Picture)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	return id, nil
}

// Issue signs a token for id. Used by tests and local tooling; production
// tokens come from the identity provider.
func (v *JWTVerifier) Issue(id domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   string(id.UserID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID:   string(id.UserID),
		Username: id.Username,
		Picture:  id.ProfilePicture,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
