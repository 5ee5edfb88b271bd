package middleware

import (
	"context"
	"net/http"

	"github.com/devhaven/auth-service/internal/account"
	"github.com/devhaven/auth-service/internal/logger"
	"github.com/devhaven/auth-service/internal/session"
)

// unexported, collision-proof context key
type userContextKeyType struct{}

var userKey = userContextKeyType{}

// UserFromContext returns the user attached by RequireAuth.
func UserFromContext(ctx context.Context) (*account.User, bool) {
	u, ok := ctx.Value(userKey).(*account.User)
	return u, ok && u != nil
}

// CurrentUserResolver answers "who is logged in" for a session id.
type CurrentUserResolver interface {
	CurrentUser(ctx context.Context, sessionID string) (*account.User, error)
}

type AuthMiddleware struct {
	Users  CurrentUserResolver
	Cookie session.CookieOptions
}

func NewAuthMiddleware(users CurrentUserResolver, cookie session.CookieOptions) *AuthMiddleware {
	return &AuthMiddleware{Users: users, Cookie: cookie}
}

func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := session.ReadCookie(r, a.Cookie)
		if sessionID == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		user, err := a.Users.CurrentUser(r.Context(), sessionID)
		if err != nil {
			logger.From(r.Context()).Error("resolve current user", logger.Err(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if user == nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		ctx = logger.ToContext(ctx, logger.From(ctx).With(logger.UserID(user.ID)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
