package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/clinicore/booking-engine/internal/booking"
)

// Roles carried in tokens. The booking core never sees these: they are
// resolved here into an Actor, and per-appointment capabilities are derived
// from that inside the engine.
const (
	RoleAdmin    = "ADMIN"
	RolePatient  = "PATIENT"
	RoleProvider = "PROVIDER"
)

type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type contextKey string

const actorKey contextKey = "actor"

// Sign issues an HS256 token for the given identity. Used by the seeder and
// the simulator; production tokens come from the platform's auth service.
func Sign(secret string, id uuid.UUID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseActor validates a token and resolves the acting identity.
func ParseActor(secret, token string) (booking.Actor, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return booking.Actor{}, fmt.Errorf("parse token: %w", err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return booking.Actor{}, fmt.Errorf("token subject is not a UUID: %w", err)
	}

	return booking.Actor{ID: id, IsAdmin: claims.Role == RoleAdmin}, nil
}

// Middleware resolves the Bearer token into an Actor on the request context.
// Requests without a valid token are rejected; role checks happen later,
// against the appointment, inside the engine.
func Middleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				http.Error(w, `{"error":"missing_token"}`, http.StatusUnauthorized)
				return
			}

			actor, err := ParseActor(secret, token)
			if err != nil {
				http.Error(w, `{"error":"invalid_token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), actorKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFrom returns the resolved actor, if any.
func ActorFrom(ctx context.Context) (booking.Actor, bool) {
	actor, ok := ctx.Value(actorKey).(booking.Actor)
	return actor, ok
}
