package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/AINative-Studio/rewardsy/internal/analytics"
)

type ctxKey string

const userKey ctxKey = "user"

type Middleware struct {
	secret []byte
	users  *Users
}

func New(secret []byte, users *Users) Middleware {
	return Middleware{secret: secret, users: users}
}

// bearer reads the token from the Authorization header, or from the token
// query parameter for clients that cannot set headers (websockets).
func bearer(r *http.Request) (string, bool) {
	if h := r.Header.Get("Authorization"); h != "" {
		if !strings.HasPrefix(h, "Bearer ") {
			return "", false
		}
		tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		return tok, tok != ""
	}
	tok := r.URL.Query().Get("token")
	return tok, tok != ""
}

func (m Middleware) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString, ok := bearer(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		claims, err := ParseToken(m.secret, tokenString)
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}

		user, ok := m.users.GetUserByEmail(r.Context(), claims.Email)
		if !ok {
			http.Error(w, "user not found", http.StatusUnauthorized)
			return
		}

		next(w, r.WithContext(WithUser(r.Context(), user)))
	}
}

// WithUser stores the authenticated user, and its id for analytics.
func WithUser(ctx context.Context, u User) context.Context {
	ctx = context.WithValue(ctx, userKey, u)
	return analytics.WithUserID(ctx, u.ID)
}

func UserFromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey).(User)
	return u, ok
}

func UserIDFromContext(ctx context.Context) (string, bool) {
	u, ok := UserFromContext(ctx)
	if !ok || u.ID == "" {
		return "", false
	}
	return u.ID, true
}
