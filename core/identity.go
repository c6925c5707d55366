package core

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is what the identity provider knows about a signed-in user.
// The core treats UID as an opaque stable key.
type Identity struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// IdentityProvider is the authentication collaborator. Credential
// handling lives entirely behind it.
type IdentityProvider interface {

	// Current returns the signed-in identity, or nil when signed out.
	Current(ctx context.Context) (*Identity, error)

	// OnChange registers fn to be invoked with the new identity (nil on
	// sign-out) whenever the signed-in identity changes.
	OnChange(fn func(*Identity)) CancelFunc
}

// ObjectStorage is the binary storage collaborator. The core only ever
// threads the returned URLs through as message media references; it
// never inspects file bytes.
type ObjectStorage interface {
	Store(ctx context.Context, path string, r io.Reader) (string, error)
	Delete(ctx context.Context, url string) error
}

var (
	ErrTokenExpired      = errors.New("token expired")
	ErrTokenInvalid      = errors.New("token invalid")
	ErrUnrecognizedToken = errors.New("unrecognized token")
)

type AuthClaims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// NewToken mints a signed session token for the identity.
func NewToken(identity Identity, expiration time.Duration, secret []byte) (string, time.Time, error) {
	exp := time.Now().Add(expiration)
	claims := &AuthClaims{
		UID:   identity.UID,
		Email: identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    "charla",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(secret)
	return signed, exp, err
}

// VerifyToken parses and validates a session token.
func VerifyToken(token string, secret []byte) (*AuthClaims, error) {
	claims := &AuthClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))

	switch {
	case parsed != nil && parsed.Valid:
		return claims, nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrTokenInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	default:
		return nil, ErrUnrecognizedToken
	}
}
