package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meditrust/hospital-core/internal/apperr"
	"github.com/meditrust/hospital-core/internal/config"
	"github.com/meditrust/hospital-core/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testLogger() logger.Logger {
	return logger.New("error", "middleware-test")
}

func serve(router *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestErrorHandlerRendersEnvelope(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler(testLogger()))
	router.GET("/api/appointments/:id", func(c *gin.Context) {
		AbortWithError(c, apperr.NotFound("Appointment", c.Param("id")))
	})

	w := serve(router, http.MethodGet, "/api/appointments/a1", nil)
	require.Equal(t, http.StatusNotFound, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `"status":404`)
	assert.Contains(t, body, `"errorCode":"NOT_FOUND"`)
	assert.Contains(t, body, `"message":"Appointment not found: a1"`)
	assert.Contains(t, body, `"path":"/api/appointments/a1"`)
}

func TestErrorHandlerHidesInternalDetails(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler(testLogger()))
	router.GET("/boom", func(c *gin.Context) {
		AbortWithError(c, errors.New("pq: relation does not exist"))
	})

	w := serve(router, http.MethodGet, "/boom", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "An unexpected error occurred")
	assert.NotContains(t, w.Body.String(), "pq:")
}

func TestErrorHandlerRecoversPanic(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler(testLogger()))
	router.GET("/panic", func(c *gin.Context) {
		panic("nil map write")
	})

	w := serve(router, http.MethodGet, "/panic", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), `"errorCode":"INTERNAL_ERROR"`)
	assert.NotContains(t, w.Body.String(), "nil map write")
}

func TestErrorHandlerLeavesSuccessAlone(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler(testLogger()))
	router.GET("/ok", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := serve(router, http.MethodGet, "/ok", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `{"ok":true}`, w.Body.String())
}

func TestIdentityFromHeaders(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler(testLogger()), IdentityFromHeaders())
	router.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"tenant": c.GetString(CtxTenantID),
			"user":   c.GetString(CtxUserID),
			"roles":  Roles(c),
			"perms":  Permissions(c),
		})
	})

	w := serve(router, http.MethodGet, "/whoami", map[string]string{
		"X-Tenant-Id":        "t1",
		"X-User-Id":          "u1",
		"X-User-Roles":       "DOCTOR, ADMIN",
		"X-User-Permissions": "appointment:read",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"roles":["DOCTOR","ADMIN"]`)
	assert.Contains(t, w.Body.String(), `"tenant":"t1"`)

	w = serve(router, http.MethodGet, "/whoami", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Missing tenant context")
}

func TestTenantOnlyAppliesDefault(t *testing.T) {
	router := gin.New()
	router.Use(TenantOnly("default-tenant"))
	router.GET("/t", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(CtxTenantID))
	})

	w := serve(router, http.MethodGet, "/t", nil)
	assert.Equal(t, "default-tenant", w.Body.String())

	w = serve(router, http.MethodGet, "/t", map[string]string{"X-Tenant-Id": "clinic-2"})
	assert.Equal(t, "clinic-2", w.Body.String())
}

func corsRouter(cfg config.CORSConfig) *gin.Engine {
	router := gin.New()
	router.Use(CORSMiddleware(cfg))
	router.GET("/api/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return router
}

func TestCORSPreflight(t *testing.T) {
	router := corsRouter(config.CORSConfig{
		AllowedOrigins:   []string{"https://portal.hospital.example"},
		AllowedMethods:   []string{"GET", "POST"},
		AllowCredentials: true,
		MaxAge:           3600,
	})

	w := serve(router, http.MethodOptions, "/api/ping", map[string]string{
		"Origin": "https://portal.hospital.example",
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://portal.hospital.example", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
	assert.Equal(t, "3600", w.Header().Get("Access-Control-Max-Age"))
}

func TestCORSRejectsUnlistedOrigin(t *testing.T) {
	router := corsRouter(config.CORSConfig{
		AllowedOrigins: []string{"https://portal.hospital.example"},
	})

	w := serve(router, http.MethodGet, "/api/ping", map[string]string{
		"Origin": "https://evil.example",
	})
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSWildcardSubdomain(t *testing.T) {
	assert.True(t, isOriginAllowed("https://app.hospital.example", []string{"*.hospital.example"}))
	assert.True(t, isOriginAllowed("https://anything.example", []string{"*"}))
	assert.False(t, isOriginAllowed("https://other.example", []string{"*.hospital.example"}))
	// Empty allow list admits local development only.
	assert.True(t, isOriginAllowed("http://localhost:3000", nil))
	assert.False(t, isOriginAllowed("https://other.example", nil))
}
