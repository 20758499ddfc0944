package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"dialogue-orchestrator/internal/infra/logging"
)

var ErrMissingToken = errors.New("missing token")
var ErrInvalidToken = errors.New("invalid token")

// Claims identify the presentation client driving a room.
type Claims struct {
	Rooms []string `json:"rooms,omitempty"`
	jwt.RegisteredClaims
}

// CanUse reports whether the token grants room. An empty list grants all rooms.
func (c *Claims) CanUse(room string) bool {
	if len(c.Rooms) == 0 {
		return true
	}
	for _, r := range c.Rooms {
		if r == room {
			return true
		}
	}
	return false
}

type Authenticator struct {
	secret []byte
}

// NewAuthenticator returns nil for an empty secret, which disables auth.
func NewAuthenticator(secret string) *Authenticator {
	if secret == "" {
		return nil
	}
	return &Authenticator{secret: []byte(secret)}
}

// Mint issues an HS256 token for subject, optionally scoped to rooms.
func (a *Authenticator) Mint(subject string, ttl time.Duration, rooms ...string) (string, error) {
	now := time.Now()
	claims := Claims{
		Rooms: rooms,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) ParseFromRequest(r *http.Request) (*Claims, error) {
	hdr := r.Header.Get("Authorization")
	if hdr != "" && strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
		return a.parse(strings.TrimSpace(hdr[7:]))
	}
	// EventSource cannot set headers.
	if tok := r.URL.Query().Get("access_token"); tok != "" {
		return a.parse(tok)
	}
	return nil, ErrMissingToken
}

func (a *Authenticator) parse(tok string) (*Claims, error) {
	claims := &Claims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

type claimsKey struct{}

// Require rejects requests without a valid bearer token. A nil Authenticator
// lets everything through.
func (a *Authenticator) Require(next http.Handler) http.Handler {
	if a == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.ParseFromRequest(r)
		if err != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		ctx := logging.WithSubject(r.Context(), claims.Subject)
		ctx = contextWithClaims(ctx, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
