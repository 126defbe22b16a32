package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fairyhunter13/orderflow/internal/domain"
)

type userKey struct{}

// UserFrom extracts the authenticated caller placed by RequireAuth.
func UserFrom(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(userKey{}).(domain.User)
	return u, ok
}

// orderClaims are the JWT claims this service understands. Tokens are minted
// by the identity service; this API only verifies them.
type orderClaims struct {
	IsVIP bool `json:"is_vip"`
	jwt.RegisteredClaims
}

// RequireAuth verifies the HS256 bearer token (Authorization header or
// "token" cookie) and stashes the caller on the request context.
func RequireAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := tokenFromRequest(r)
			if raw == "" {
				writeError(w, r, fmt.Errorf("%w: missing token", domain.ErrUnauthorized), nil)
				return
			}
			user, err := verifyToken(raw, secret)
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: %s", domain.ErrUnauthorized, "invalid token"), nil)
				return
			}
			ctx := context.WithValue(r.Context(), userKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if strings.HasPrefix(h, "Bearer ") {
			return strings.TrimPrefix(h, "Bearer ")
		}
		return ""
	}
	if c, err := r.Cookie("token"); err == nil {
		return c.Value
	}
	return ""
}

func verifyToken(raw, secret string) (domain.User, error) {
	var claims orderClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return domain.User{}, fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return domain.User{}, fmt.Errorf("token missing subject")
	}
	return domain.User{ID: claims.Subject, IsVIP: claims.IsVIP}, nil
}
