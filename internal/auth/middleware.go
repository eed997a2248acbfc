package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hydarlm/absensi-digital-sditalhikmah/internal/scope"
)

const principalKey = "principal"

// Require enforces bearer JWT tokens signed with HS256 and stores the
// authenticated principal on the request context.
func Require(signingKey, issuer string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		principal, err := Parse(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequireAdmin rejects non-admin principals; it runs after Require.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if Principal(c).Role != scope.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

// Principal returns the authenticated principal set by Require.
func Principal(c *gin.Context) scope.Principal {
	p, _ := c.Get(principalKey)
	principal, _ := p.(scope.Principal)
	return principal
}
