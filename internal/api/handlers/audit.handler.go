package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meditrust/hospital-core/internal/api/middleware"
	"github.com/meditrust/hospital-core/internal/audit"
	"github.com/meditrust/hospital-core/internal/models"
	"github.com/meditrust/hospital-core/internal/rbac"
	"github.com/meditrust/hospital-core/pkg/logger"
)

const defaultAuditPageSize = 100

// AuditHandler serves the read side of the audit journal. All endpoints are
// admin-only.
type AuditHandler struct {
	repo   audit.Repository
	rbac   *rbac.Resolver
	logger logger.Logger
}

func NewAuditHandler(repo audit.Repository, resolver *rbac.Resolver, log logger.Logger) *AuditHandler {
	return &AuditHandler{repo: repo, rbac: resolver, logger: log}
}

func (h *AuditHandler) RegisterRoutes(router gin.IRouter) {
	group := router.Group("/api/audit")
	group.Use(middleware.IdentityFromHeaders())
	group.GET("", h.List)
	group.GET("/resource/:type/:id", h.ListByResource)
	group.GET("/user/:userId", h.ListByUser)
}

func (h *AuditHandler) List(c *gin.Context) {
	tenantID, ok := h.authorize(c)
	if !ok {
		return
	}

	entries, err := h.repo.ListByTenant(c.Request.Context(), tenantID, pageSize(c))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *AuditHandler) ListByResource(c *gin.Context) {
	tenantID, ok := h.authorize(c)
	if !ok {
		return
	}

	entries, err := h.repo.ListByResource(c.Request.Context(), tenantID,
		c.Param("type"), c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *AuditHandler) ListByUser(c *gin.Context) {
	tenantID, ok := h.authorize(c)
	if !ok {
		return
	}

	entries, err := h.repo.ListByUser(c.Request.Context(), tenantID,
		c.Param("userId"), pageSize(c))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *AuditHandler) authorize(c *gin.Context) (string, bool) {
	tenantID := c.GetString(middleware.CtxTenantID)
	err := h.rbac.RequireRole(c.Request.Context(), tenantID,
		c.GetString(middleware.CtxUserID), middleware.Roles(c), models.RoleAdmin)
	if err != nil {
		middleware.AbortWithError(c, err)
		return "", false
	}
	return tenantID, true
}

func pageSize(c *gin.Context) int {
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return defaultAuditPageSize
}
