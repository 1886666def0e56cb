package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/contribution-engine/generic"
)

// =============================================================================
// ACTOR IDENTITY
// =============================================================================

// Actor is the caller of a request. The role is an opaque token the review
// machine trusts; issuing it is the job of whoever signs the token.
type Actor struct {
	ID   generic.ActorID
	Role generic.ActorRole
}

type actorKey struct{}

// Claims carried by bearer tokens. UserID wins over the standard subject.
type Claims struct {
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// ActorFrom returns the actor stored by ActorMiddleware. The zero Actor means
// an anonymous caller.
func ActorFrom(ctx context.Context) Actor {
	a, _ := ctx.Value(actorKey{}).(Actor)
	return a
}

// WithActor stores a in ctx.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorMiddleware resolves the calling actor.
//
// With a secret, the actor comes from an HS256 bearer token; a missing header
// leaves the request anonymous and a bad token is rejected with 401. Without
// a secret the X-Actor-ID and X-Actor-Role headers are trusted as-is.
func ActorMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				a := Actor{
					ID:   generic.ActorID(strings.TrimSpace(r.Header.Get("X-Actor-ID"))),
					Role: generic.ActorRole(strings.TrimSpace(r.Header.Get("X-Actor-Role"))),
				}
				next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), a)))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				writeError(w, http.StatusUnauthorized, "Invalid authorization header format", nil)
				return
			}

			a, err := ParseToken(secret, tokenString)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid or expired token", err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), a)))
		})
	}
}

// ParseToken validates a bearer token and extracts the actor.
func ParseToken(secret, tokenString string) (Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Actor{}, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return Actor{}, errors.New("invalid token claims")
	}

	id := claims.UserID
	if id == "" {
		id = claims.Subject
	}
	if id == "" {
		return Actor{}, errors.New("token names no user")
	}
	return Actor{ID: generic.ActorID(id), Role: generic.ActorRole(claims.Role)}, nil
}

// IssueToken signs a token for a. Used by tooling and tests.
func IssueToken(secret string, a Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: string(a.ID),
		Role:   string(a.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(a.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
