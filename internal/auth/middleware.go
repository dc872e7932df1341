package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireSession protects a route group. API routes answer 401 JSON;
// browser routes redirect to the login page.
func RequireSession(signingKey string, api bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, err := c.Cookie(SessionCookie)
		if err == nil {
			if claims, perr := ParseSession(cookie, signingKey); perr == nil {
				c.Set("user", claims)
				c.Next()
				return
			}
		}
		if api {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"erro": "Não autorizado"})
			return
		}
		c.Redirect(http.StatusFound, "/login")
		c.Abort()
	}
}
