package middleware

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/redalert-desktop/redalert/internal/api"
)

// TokenIssuer is stamped on every feed token
const TokenIssuer = "redalert"

// DefaultTokenTTL applies when no lifetime is configured
const DefaultTokenTTL = 24 * time.Hour

// DefaultProtectedPrefixes are the feed routes that need a token
var DefaultProtectedPrefixes = []string{"/api/", "/ws", "/auth/verify"}

// ErrBadCredentials is returned by Login for an unknown user or wrong password
var ErrBadCredentials = errors.New("invalid username or password")

type userKey struct{}

// FeedClaims are carried by feed tokens
type FeedClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// ========== Tokens ==========

// Tokens issues and verifies HS256 feed tokens
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a token authority. ttl <= 0 uses DefaultTokenTTL.
func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is the lifetime of issued tokens
func (t *Tokens) TTL() time.Duration {
	return t.ttl
}

// Issue signs a token for user
func (t *Tokens) Issue(user string) (string, error) {
	now := t.now()
	claims := FeedClaims{
		Username: user,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    TokenIssuer,
			Subject:   user,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Verify checks signature, algorithm, issuer and expiry
func (t *Tokens) Verify(raw string) (*FeedClaims, error) {
	claims := &FeedClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (interface{}, error) { return t.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(TokenIssuer),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ========== Feed auth ==========

// FeedAuthConfig configures the single admin account guarding the feed
type FeedAuthConfig struct {
	Username string
	Password string
	Secret   string
	TokenTTL time.Duration

	// Protected lists path prefixes that need a token. Empty uses
	// DefaultProtectedPrefixes.
	Protected []string
}

// FeedAuth guards the feed server's protected routes. A nil *FeedAuth
// means authentication is off.
type FeedAuth struct {
	username  string
	hash      []byte
	tokens    *Tokens
	protected []string
	logger    *zap.Logger
}

// NewFeedAuth hashes the admin password and builds the guard
func NewFeedAuth(cfg FeedAuthConfig, logger *zap.Logger) (*FeedAuth, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("feed auth needs a username and password")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	protected := cfg.Protected
	if len(protected) == 0 {
		protected = DefaultProtectedPrefixes
	}
	return &FeedAuth{
		username:  cfg.Username,
		hash:      hash,
		tokens:    NewTokens(cfg.Secret, cfg.TokenTTL),
		protected: protected,
		logger:    logger,
	}, nil
}

// Tokens exposes the token authority
func (a *FeedAuth) Tokens() *Tokens {
	return a.tokens
}

// Login checks the admin credentials and issues a token
func (a *FeedAuth) Login(username, password string) (string, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.username)) == 1
	// always run bcrypt so a wrong username costs the same
	passOK := bcrypt.CompareHashAndPassword(a.hash, []byte(password)) == nil
	if !userOK || !passOK {
		return "", ErrBadCredentials
	}
	return a.tokens.Issue(username)
}

// Protects reports whether path needs a token
func (a *FeedAuth) Protects(path string) bool {
	for _, prefix := range a.protected {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// Require rejects requests to protected paths without a valid token.
// The authenticated user is available through UserFrom.
func (a *FeedAuth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.Protects(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		raw := bearerToken(r)
		if raw == "" {
			unauthorized(w, "Missing authentication token")
			return
		}
		claims, err := a.tokens.Verify(raw)
		if err != nil {
			a.logger.Warn("Rejected feed token",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("request_id", GetRequestID(r.Context())),
				zap.Error(err),
			)
			unauthorized(w, "Invalid or expired token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, claims.Username)))
	})
}

// UserFrom returns the user set by Require, or ""
func UserFrom(ctx context.Context) string {
	user, _ := ctx.Value(userKey{}).(string)
	return user
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter for browser WebSocket clients.
func bearerToken(r *http.Request) string {
	if raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return raw
	}
	return r.URL.Query().Get("token")
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="redalert"`)
	api.RespondError(w, http.StatusUnauthorized, message)
}
