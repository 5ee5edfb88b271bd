package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/devhaven/auth-service/internal/account"
)

// GinRequireAuth adapts the net/http AuthMiddleware to Gin. Handlers behind
// it read the user with GinUser.
func GinRequireAuth(auth *AuthMiddleware) gin.HandlerFunc {
	return func(c *gin.Context) {
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Request = r
			c.Next()
		})

		auth.RequireAuth(next).ServeHTTP(c.Writer, c.Request)

		// RequireAuth answered on its own; stop the chain.
		if c.Writer.Written() {
			c.Abort()
		}
	}
}

// GinUser returns the user attached by GinRequireAuth.
func GinUser(c *gin.Context) (*account.User, bool) {
	return UserFromContext(c.Request.Context())
}
