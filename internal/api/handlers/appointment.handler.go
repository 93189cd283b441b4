package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meditrust/hospital-core/internal/api/middleware"
	"github.com/meditrust/hospital-core/internal/apperr"
	"github.com/meditrust/hospital-core/internal/appointment"
	"github.com/meditrust/hospital-core/internal/models"
	"github.com/meditrust/hospital-core/internal/rbac"
	"github.com/meditrust/hospital-core/pkg/logger"
)

// AppointmentHandler serves the /api/appointments endpoints.
type AppointmentHandler struct {
	appointments *appointment.Service
	rbac         *rbac.Resolver
	logger       logger.Logger
}

func NewAppointmentHandler(svc *appointment.Service, resolver *rbac.Resolver, log logger.Logger) *AppointmentHandler {
	return &AppointmentHandler{appointments: svc, rbac: resolver, logger: log}
}

func (h *AppointmentHandler) RegisterRoutes(router gin.IRouter) {
	group := router.Group("/api/appointments")
	group.Use(middleware.IdentityFromHeaders())

	group.POST("", h.Create)
	group.GET("/upcoming", h.ListUpcoming)
	group.GET("/counts", h.CountByStatus)
	group.GET("/patient/:patientId", h.ListByPatient)
	group.GET("/doctor/:doctorId", h.ListByDoctor)
	group.GET("/status/:status", h.ListByStatus)
	group.GET("/:id", h.Get)
	group.PUT("/:id", h.Update)
	group.POST("/:id/cancel", h.Cancel)
	group.DELETE("/:id", h.Delete)
}

func (h *AppointmentHandler) Create(c *gin.Context) {
	var req models.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, bindError(err))
		return
	}

	dto, err := h.appointments.Create(c.Request.Context(), c.GetString(middleware.CtxTenantID), req)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto)
}

func (h *AppointmentHandler) Get(c *gin.Context) {
	dto, err := h.appointments.Get(c.Request.Context(),
		c.GetString(middleware.CtxTenantID), c.Param("id"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

func (h *AppointmentHandler) ListByPatient(c *gin.Context) {
	dtos, err := h.appointments.ListByPatient(c.Request.Context(),
		c.GetString(middleware.CtxTenantID), c.Param("patientId"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos)
}

func (h *AppointmentHandler) ListByDoctor(c *gin.Context) {
	dtos, err := h.appointments.ListByDoctor(c.Request.Context(),
		c.GetString(middleware.CtxTenantID), c.Param("doctorId"))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos)
}

func (h *AppointmentHandler) ListByStatus(c *gin.Context) {
	dtos, err := h.appointments.ListByStatus(c.Request.Context(),
		c.GetString(middleware.CtxTenantID), models.AppointmentStatus(c.Param("status")))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos)
}

func (h *AppointmentHandler) ListUpcoming(c *gin.Context) {
	hoursAhead := appointment.DefaultUpcomingHours
	if raw := c.Query("hoursAhead"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			middleware.AbortWithError(c, apperr.Validation("hoursAhead must be a positive integer").
				WithField("hoursAhead", "must be a positive integer", raw))
			return
		}
		hoursAhead = n
	}

	dtos, err := h.appointments.ListUpcoming(c.Request.Context(),
		c.GetString(middleware.CtxTenantID), hoursAhead)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos)
}

func (h *AppointmentHandler) CountByStatus(c *gin.Context) {
	counts, err := h.appointments.CountByStatus(c.Request.Context(),
		c.GetString(middleware.CtxTenantID))
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (h *AppointmentHandler) Update(c *gin.Context) {
	var req models.UpdateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, bindError(err))
		return
	}

	dto, err := h.appointments.Update(c.Request.Context(),
		c.GetString(middleware.CtxTenantID), c.Param("id"), req)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *AppointmentHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	// Body is optional on cancel.
	_ = c.ShouldBindJSON(&req)

	dto, err := h.appointments.Cancel(c.Request.Context(),
		c.GetString(middleware.CtxTenantID), c.Param("id"), req.Reason)
	if err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto)
}

// Delete hard-deletes an appointment row. Restricted to admins; everyone
// else cancels.
func (h *AppointmentHandler) Delete(c *gin.Context) {
	tenantID := c.GetString(middleware.CtxTenantID)
	if err := h.rbac.RequireRole(c.Request.Context(), tenantID,
		c.GetString(middleware.CtxUserID), middleware.Roles(c), models.RoleAdmin); err != nil {
		middleware.AbortWithError(c, err)
		return
	}

	if err := h.appointments.Delete(c.Request.Context(), tenantID, c.Param("id")); err != nil {
		middleware.AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
