package gateway

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/meditrust/hospital-core/internal/apperr"
	"github.com/meditrust/hospital-core/internal/token"
	"github.com/meditrust/hospital-core/pkg/logger"
)

// Identity headers injected for downstream services. Any client-supplied
// values are stripped first; services trust these headers because only the
// gateway can reach them.
const (
	HeaderTenantID    = "X-Tenant-Id"
	HeaderUserID      = "X-User-Id"
	HeaderUserEmail   = "X-User-Email"
	HeaderUserRoles   = "X-User-Roles"
	HeaderPermissions = "X-User-Permissions"
	HeaderRequestID   = "X-Request-Id"
)

// AuthMiddleware verifies the bearer token on every non-public path and
// replaces the identity headers with values derived from the verified
// claims.
func AuthMiddleware(tokens *token.Service, defaultTenantID string, log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		stripIdentityHeaders(c)

		if IsPublicPath(c.Request.URL.Path) {
			// Public requests still carry a tenant so downstream writes are
			// tenant-scoped.
			c.Request.Header.Set(HeaderTenantID, defaultTenantID)
			ensureRequestID(c)
			c.Next()
			return
		}

		auth := c.GetHeader("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			renderError(c, apperr.Unauthorized("Missing or malformed Authorization header"))
			return
		}

		claims, err := tokens.Verify(strings.TrimPrefix(auth, "Bearer "))
		if err != nil {
			log.Warn("Token rejected", "path", c.Request.URL.Path, "error", err)
			renderError(c, apperr.From(err))
			return
		}
		if claims.Type == "refresh" {
			renderError(c, apperr.Unauthorized("Refresh tokens cannot access resources"))
			return
		}

		c.Request.Header.Set(HeaderTenantID, claims.TenantID)
		c.Request.Header.Set(HeaderUserID, claims.Subject)
		c.Request.Header.Set(HeaderUserEmail, claims.Email)
		if len(claims.Roles) > 0 {
			c.Request.Header.Set(HeaderUserRoles, strings.Join(claims.Roles, ","))
		}
		if len(claims.Permissions) > 0 {
			c.Request.Header.Set(HeaderPermissions, strings.Join(claims.Permissions, ","))
		}
		ensureRequestID(c)

		c.Set("tenantId", claims.TenantID)
		c.Set("userId", claims.Subject)
		c.Next()
	}
}

func stripIdentityHeaders(c *gin.Context) {
	for _, h := range []string{HeaderTenantID, HeaderUserID, HeaderUserEmail, HeaderUserRoles, HeaderPermissions} {
		c.Request.Header.Del(h)
	}
}

func ensureRequestID(c *gin.Context) {
	id := c.GetHeader(HeaderRequestID)
	if id == "" {
		id = uuid.NewString()
		c.Request.Header.Set(HeaderRequestID, id)
	}
	c.Writer.Header().Set(HeaderRequestID, id)
}

func renderError(c *gin.Context, err *apperr.Error) {
	c.AbortWithStatusJSON(err.HTTPStatus(), apperr.NewEnvelope(err, c.Request.URL.Path))
}
