package charla

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/charla-app/charla/core"
)

const AuthCookieName = "charla_session"

var (
	ErrBadCredentials = errors.New("bad credentials")
	ErrEmailTaken     = errors.New("email already registered")
)

// AuthStore owns the accounts table and session token lifecycle. It is
// the concrete identity backend behind core.IdentityProvider.
type AuthStore struct {
	db     *sql.DB
	secret []byte
	ttl    time.Duration
}

func NewAuthStore(db *sql.DB, secret []byte, ttl time.Duration) *AuthStore {
	return &AuthStore{db: db, secret: secret, ttl: ttl}
}

type Session struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	Identity  core.Identity `json:"identity"`
}

// Register creates an account. Emails are unique; the password is
// stored as a bcrypt hash.
func (s *AuthStore) Register(ctx context.Context, email, password string) (*core.Identity, error) {
	if email == "" || password == "" {
		return nil, ErrBadCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("GenerateFromPassword: %w", err)
	}

	uid := uuid.New().String()
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO accounts (uid, email, password, created_at)
	VALUES (@uid, @email, @password, @created_at)`,
		sql.Named("uid", uid),
		sql.Named("email", email),
		sql.Named("password", string(hash)),
		sql.Named("created_at", time.Now().UTC()))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}

	return &core.Identity{UID: uid, Email: email}, nil
}

// Signin verifies credentials and mints a session token.
func (s *AuthStore) Signin(ctx context.Context, email, password string) (*Session, error) {
	var uid, hash string
	err := s.db.QueryRowContext(ctx,
		`SELECT uid, password FROM accounts WHERE email = @email`,
		sql.Named("email", email)).Scan(&uid, &hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBadCredentials
		}
		return nil, fmt.Errorf("scanning account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrBadCredentials
	}

	identity := core.Identity{UID: uid, Email: email}
	token, exp, err := core.NewToken(identity, s.ttl, s.secret)
	if err != nil {
		return nil, fmt.Errorf("NewToken: %w", err)
	}

	return &Session{Token: token, ExpiresAt: exp, Identity: identity}, nil
}

// Verify resolves a session token back to the identity it was minted
// for.
func (s *AuthStore) Verify(ctx context.Context, token string) (*core.Identity, error) {
	claims, err := core.VerifyToken(token, s.secret)
	if err != nil {
		return nil, err
	}

	var count int
	err = s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM accounts WHERE uid = @uid`,
		sql.Named("uid", claims.UID)).Scan(&count)
	if err != nil {
		return nil, fmt.Errorf("scanning count: %w", err)
	}
	if count == 0 {
		return nil, core.ErrUnrecognizedToken
	}

	return &core.Identity{UID: claims.UID, Email: claims.Email}, nil
}

type identityKey struct{}

var idKey identityKey

func contextWithIdentity(ctx context.Context, identity core.Identity) context.Context {
	return context.WithValue(ctx, idKey, identity)
}

func identityFromContext(ctx context.Context) (core.Identity, bool) {
	identity, ok := ctx.Value(idKey).(core.Identity)
	return identity, ok
}

// IdentityFromRequest extracts the signed-in identity from the request context.
// It must be called in handlers that are protected by the JWTMiddleware.
// It panics if the identity is not found in the request context.
func IdentityFromRequest(r *http.Request) core.Identity {
	identity, ok := identityFromContext(r.Context())
	if !ok {
		panic("identity not found in request context: call this function in handlers that are protected by JWTMiddleware")
	}
	return identity
}

// requestToken extracts the session token from the auth cookie, the
// Authorization header or the token query parameter, in that order. The
// query parameter exists for websocket clients that cannot set headers.
func requestToken(r *http.Request) string {
	if cookie, err := r.Cookie(AuthCookieName); err == nil && cookie.Valid() == nil {
		return cookie.Value
	}
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// JWTMiddleware extracts the session token from the request, validates it and
// attaches the identity to the request context. The identity is guaranteed to
// be attached to the request context for subsequent handlers.
func JWTMiddleware(a *AuthStore) Middleware {

	return func(next http.Handler) HandlerFunc {

		authErr := NewJsonError(http.StatusUnauthorized, "unauthenticated")

		return HandlerFunc(func(w http.ResponseWriter, r *http.Request) error {
			ctx := r.Context()

			token := requestToken(r)
			if token == "" {
				return authErr
			}

			identity, err := a.Verify(ctx, token)
			if err != nil {
				if errors.Is(err, core.ErrTokenExpired) ||
					errors.Is(err, core.ErrTokenInvalid) ||
					errors.Is(err, core.ErrUnrecognizedToken) {
					return authErr
				}
				return err
			}

			next.ServeHTTP(w, r.WithContext(contextWithIdentity(ctx, *identity)))
			return nil
		})
	}
}

// TokenIdentityProvider adapts a verified session token to the
// core.IdentityProvider contract. Each websocket connection carries its
// own provider; SetToken drives the OnChange feed.
type TokenIdentityProvider struct {
	auth  *AuthStore
	feed  *core.Feed[*core.Identity]
	token string
}

func NewTokenIdentityProvider(auth *AuthStore, token string) *TokenIdentityProvider {
	return &TokenIdentityProvider{
		auth:  auth,
		feed:  core.NewFeed[*core.Identity](),
		token: token,
	}
}

func (p *TokenIdentityProvider) Current(ctx context.Context) (*core.Identity, error) {
	if p.token == "" {
		return nil, nil
	}
	identity, err := p.auth.Verify(ctx, p.token)
	if err != nil {
		if errors.Is(err, core.ErrTokenExpired) ||
			errors.Is(err, core.ErrTokenInvalid) ||
			errors.Is(err, core.ErrUnrecognizedToken) {
			return nil, nil
		}
		return nil, err
	}
	return identity, nil
}

func (p *TokenIdentityProvider) OnChange(fn func(*core.Identity)) core.CancelFunc {
	return p.feed.Subscribe(fn)
}

// SetToken swaps the session token and notifies OnChange subscribers
// with the resulting identity, nil when the token no longer resolves.
func (p *TokenIdentityProvider) SetToken(ctx context.Context, token string) {
	p.token = token
	identity, err := p.Current(ctx)
	if err != nil {
		identity = nil
	}
	p.feed.Publish(identity)
}
