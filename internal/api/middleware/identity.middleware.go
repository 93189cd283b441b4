package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/meditrust/hospital-core/internal/apperr"
)

// Context keys populated from the gateway's identity headers.
const (
	CtxTenantID    = "tenantId"
	CtxUserID      = "userId"
	CtxUserEmail   = "userEmail"
	CtxRoles       = "roles"
	CtxPermissions = "permissions"
)

// IdentityFromHeaders trusts the identity headers the gateway injected after
// token verification. Requests without a tenant are rejected; the services
// never guess a tenant on authenticated paths.
func IdentityFromHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader("X-Tenant-Id")
		if tenantID == "" {
			AbortWithError(c, apperr.Unauthorized("Missing tenant context"))
			return
		}

		c.Set(CtxTenantID, tenantID)
		c.Set(CtxUserID, c.GetHeader("X-User-Id"))
		c.Set(CtxUserEmail, c.GetHeader("X-User-Email"))
		c.Set(CtxRoles, splitHeader(c.GetHeader("X-User-Roles")))
		c.Set(CtxPermissions, splitHeader(c.GetHeader("X-User-Permissions")))

		c.Next()
	}
}

// TenantOnly admits requests carrying just a tenant, for public endpoints
// reached through the gateway's bypass (register, login).
func TenantOnly(defaultTenantID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader("X-Tenant-Id")
		if tenantID == "" {
			tenantID = defaultTenantID
		}
		c.Set(CtxTenantID, tenantID)
		c.Next()
	}
}

// Roles returns the caller's role names from the context.
func Roles(c *gin.Context) []string {
	if v, ok := c.Get(CtxRoles); ok {
		if roles, ok := v.([]string); ok {
			return roles
		}
	}
	return nil
}

// Permissions returns the caller's permission names from the context.
func Permissions(c *gin.Context) []string {
	if v, ok := c.Get(CtxPermissions); ok {
		if perms, ok := v.([]string); ok {
			return perms
		}
	}
	return nil
}

func splitHeader(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
