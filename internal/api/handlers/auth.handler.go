package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/meditrust/hospital-core/internal/api/middleware"
	"github.com/meditrust/hospital-core/internal/apperr"
	"github.com/meditrust/hospital-core/internal/identity"
	"github.com/meditrust/hospital-core/internal/models"
	"github.com/meditrust/hospital-core/internal/rbac"
	"github.com/meditrust/hospital-core/pkg/logger"
)

// AuthHandler serves the /api/auth and /api/users endpoints of the auth
// service.
type AuthHandler struct {
	identity *identity.Service
	rbac     *rbac.Resolver
	logger   logger.Logger
}

func NewAuthHandler(identitySvc *identity.Service, resolver *rbac.Resolver, log logger.Logger) *AuthHandler {
	return &AuthHandler{identity: identitySvc, rbac: resolver, logger: log}
}

// RegisterRoutes mounts the auth endpoints. Public routes rely on the
// gateway bypass and carry only a tenant; the rest require the injected
// identity headers.
func (h *AuthHandler) RegisterRoutes(router gin.IRouter, defaultTenantID string) {
	public := router.Group("/api/auth")
	public.Use(middleware.TenantOnly(defaultTenantID))
	public.POST("/register", h.Register)
	public.POST("/login", h.Login)
	public.POST("/refresh", h.Refresh)

	authed := router.Group("/api/auth")
	authed.Use(middleware.IdentityFromHeaders())
	authed.GET("/me", h.Me)

	users := router.Group("/api/users")
	users.Use(middleware.IdentityFromHeaders())
	users.GET("/:id", h.GetUser)
	users.POST("/:id/deactivate", h.Deactivate)
	users.POST("/:id/reactivate", h.Reactivate)
	users.POST("/:id/roles/:role", h.GrantRole)
	users.DELETE("/:id/roles/:role", h.RevokeRole)
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, bindError(err))
		return
	}

	dto, err := h.identity.Register(c.Request.Context(), c.GetString(middleware.CtxTenantID), req)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, bindError(err))
		return
	}

	resp, err := h.identity.Login(c.Request.Context(), c.GetString(middleware.CtxTenantID), req)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req models.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, bindError(err))
		return
	}

	resp, err := h.identity.Refresh(c.Request.Context(), req)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Me returns the authenticated user's profile with resolved roles.
func (h *AuthHandler) Me(c *gin.Context) {
	dto, err := h.identity.Get(c.Request.Context(),
		c.GetString(middleware.CtxTenantID), c.GetString(middleware.CtxUserID))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *AuthHandler) GetUser(c *gin.Context) {
	tenantID := c.GetString(middleware.CtxTenantID)
	userID := c.GetString(middleware.CtxUserID)

	targetID := c.Param("id")
	if targetID != userID {
		if err := h.rbac.RequireRole(c.Request.Context(), tenantID, userID,
			middleware.Roles(c), models.RoleAdmin); err != nil {
			middleware.AbortWithError(c, err)
			return
		}
	}

	dto, err := h.identity.Get(c.Request.Context(), tenantID, targetID)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *AuthHandler) Deactivate(c *gin.Context) {
	if err := h.requireAdmin(c); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	if err := h.identity.Deactivate(c.Request.Context(),
		c.GetString(middleware.CtxTenantID), c.Param("id")); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) Reactivate(c *gin.Context) {
	if err := h.requireAdmin(c); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	if err := h.identity.Reactivate(c.Request.Context(),
		c.GetString(middleware.CtxTenantID), c.Param("id")); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) GrantRole(c *gin.Context) {
	if err := h.requireAdmin(c); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	err := h.rbac.GrantRole(c.Request.Context(),
		c.GetString(middleware.CtxTenantID), c.Param("id"), c.Param("role"))
	if err != nil {
		if errors.Is(err, rbac.ErrRoleNotFound) {
			middleware.AbortWithError(c, apperr.NotFound("Role", c.Param("role")))
			return
		}
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) RevokeRole(c *gin.Context) {
	if err := h.requireAdmin(c); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	err := h.rbac.RevokeRole(c.Request.Context(),
		c.GetString(middleware.CtxTenantID), c.Param("id"), c.Param("role"))
	if err != nil {
		if errors.Is(err, rbac.ErrRoleNotFound) {
			middleware.AbortWithError(c, apperr.NotFound("Role", c.Param("role")))
			return
		}
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) requireAdmin(c *gin.Context) error {
	return h.rbac.RequireRole(c.Request.Context(),
		c.GetString(middleware.CtxTenantID), c.GetString(middleware.CtxUserID),
		middleware.Roles(c), models.RoleAdmin)
}

// bindError converts gin binding failures into the validation envelope,
// listing each failed field.
func bindError(err error) *apperr.Error {
	appErr := apperr.Validation("Request validation failed")
	var vErrs validator.ValidationErrors
	if errors.As(err, &vErrs) {
		for _, fe := range vErrs {
			appErr = appErr.WithField(fe.Field(), "failed on rule: "+fe.Tag(), nil)
		}
		return appErr
	}
	return appErr.WithCause(err)
}
