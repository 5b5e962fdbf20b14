package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	UserTypeCustomer = "customer"
	UserTypeArtist   = "artist"
	UserTypeAdmin    = "admin"
)

var ErrInvalidToken = errors.New("invalid token")

type contextKey struct{}

// User is the authenticated identity carried in the request context.
type User struct {
	ID   int64
	Type string
}

type Claims struct {
	UserType string `json:"user_type"`
	jwt.RegisteredClaims
}

// NewToken signs a bearer token for the given user. Issued by the login
// service; here it also backs tests and local tooling.
func NewToken(secret string, userID int64, userType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserType: userType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseToken(secret, raw string) (User, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return User{}, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return User{}, ErrInvalidToken
	}

	return User{ID: userID, Type: claims.UserType}, nil
}

// RequireUser rejects requests without a valid bearer token and places the
// authenticated user in the request context.
func RequireUser(secret string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeUnauthorized(w)
			return
		}

		user, err := parseToken(secret, raw)
		if err != nil {
			writeUnauthorized(w)
			return
		}

		next(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, user)))
	}
}

// RequireAdmin is RequireUser plus an admin user-type check.
func RequireAdmin(secret string, next http.HandlerFunc) http.HandlerFunc {
	return RequireUser(secret, func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok || user.Type != UserTypeAdmin {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "admin access required"})
			return
		}
		next(w, r)
	})
}

func UserFromContext(ctx context.Context) (User, bool) {
	user, ok := ctx.Value(contextKey{}).(User)
	return user, ok
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

func writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": "authentication required"})
}
