package rbac

import (
	"net/http"

	"coincall-platform/internal/auth"

	"github.com/gin-gonic/gin"
)

// RequireUser enforces that a user_id exists in context.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := auth.UserID(c.Request.Context())
		if err != nil || uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows access if the caller has any of the provided roles.
// Rules:
// - super_admin bypasses all checks
// - billing is a hidden role, and will be denied unless explicitly allowed
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}

		// super_admin bypasses all
		if IsSuperAdmin(role) {
			c.Next()
			return
		}

		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// SubjectUserID returns whose data the request is about: the caller, or the
// user named by the user_id query parameter when the caller may view others.
func SubjectUserID(c *gin.Context) (string, bool) {
	self, err := auth.UserID(c.Request.Context())
	if err != nil {
		return "", false
	}
	other := c.Query("user_id")
	if other == "" || other == self {
		return self, true
	}
	role, _ := auth.Role(c.Request.Context())
	if !CanViewOthers(role) {
		return "", false
	}
	return other, true
}
