package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meditrust/hospital-core/internal/api/middleware"
	"github.com/meditrust/hospital-core/internal/config"
	"github.com/meditrust/hospital-core/internal/events"
	"github.com/meditrust/hospital-core/internal/identity"
	"github.com/meditrust/hospital-core/internal/models"
	"github.com/meditrust/hospital-core/internal/rbac"
	"github.com/meditrust/hospital-core/internal/token"
	"github.com/meditrust/hospital-core/pkg/cache"
	"github.com/meditrust/hospital-core/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memUserRepo is an in-memory identity.Repository for handler tests.
type memUserRepo struct {
	users map[string]*models.User
}

func newMemUserRepo() *memUserRepo { return &memUserRepo{users: make(map[string]*models.User)} }

func (m *memUserRepo) Create(_ context.Context, user *models.User) error {
	for _, u := range m.users {
		if u.TenantID == user.TenantID && u.Email == user.Email {
			return identity.ErrDuplicateEmail
		}
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memUserRepo) FindByEmail(_ context.Context, tenantID, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.TenantID == tenantID && u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

func (m *memUserRepo) FindByID(_ context.Context, tenantID, id string) (*models.User, error) {
	if u, ok := m.users[id]; ok && u.TenantID == tenantID {
		cp := *u
		return &cp, nil
	}
	return nil, identity.ErrUserNotFound
}

func (m *memUserRepo) RecordLoginSuccess(_ context.Context, _, id string, at time.Time) error {
	if u, ok := m.users[id]; ok {
		u.FailedAttempts = 0
		u.LockedUntil = nil
		u.LastLoginAt = &at
	}
	return nil
}

func (m *memUserRepo) RecordLoginFailure(_ context.Context, _, id string, attempts int, lockedUntil *time.Time) error {
	if u, ok := m.users[id]; ok {
		u.FailedAttempts = attempts
		u.LockedUntil = lockedUntil
	}
	return nil
}

func (m *memUserRepo) SetActive(_ context.Context, _, id string, active bool) error {
	if u, ok := m.users[id]; ok {
		u.Active = active
		return nil
	}
	return identity.ErrUserNotFound
}

func (m *memUserRepo) UpdateProfile(_ context.Context, user *models.User) error {
	if u, ok := m.users[user.ID]; ok {
		u.Name = user.Name
		u.Phone = user.Phone
		return nil
	}
	return identity.ErrUserNotFound
}

// memRBACRepo is an in-memory rbac.Repository seeding the system roles.
type memRBACRepo struct {
	assignments map[string][]string // tenant/user -> role names
	rolesByName map[string]*models.Role
}

func newMemRBACRepo() *memRBACRepo {
	return &memRBACRepo{
		assignments: make(map[string][]string),
		rolesByName: map[string]*models.Role{
			models.RoleAdmin:   {ID: "role-admin", Name: models.RoleAdmin, Active: true},
			models.RoleDoctor:  {ID: "role-doctor", Name: models.RoleDoctor, Active: true},
			models.RoleNurse:   {ID: "role-nurse", Name: models.RoleNurse, Active: true},
			models.RolePatient: {ID: "role-patient", Name: models.RolePatient, Active: true},
		},
	}
}

func (m *memRBACRepo) ValidRoleNames(_ context.Context, tenantID, userID string, _ time.Time) ([]string, error) {
	return m.assignments[tenantID+"/"+userID], nil
}

func (m *memRBACRepo) ValidPermissionNames(_ context.Context, tenantID, userID string, _ time.Time) ([]string, error) {
	var perms []string
	for _, role := range m.assignments[tenantID+"/"+userID] {
		if role == models.RolePatient {
			perms = append(perms, "appointment:read")
		}
	}
	return perms, nil
}

func (m *memRBACRepo) HasResourcePermission(_ context.Context, _, _, _, _, _ string) (bool, error) {
	return false, nil
}

func (m *memRBACRepo) ResourceIDsFor(_ context.Context, _, _, _, _ string) ([]string, error) {
	return nil, nil
}

func (m *memRBACRepo) FindRoleByName(_ context.Context, _, name string) (*models.Role, error) {
	if role, ok := m.rolesByName[name]; ok {
		return role, nil
	}
	return nil, rbac.ErrRoleNotFound
}

func (m *memRBACRepo) AssignRole(_ context.Context, a *models.UserRole) error {
	for name, role := range m.rolesByName {
		if role.ID == a.RoleID {
			key := a.TenantID + "/" + a.UserID
			m.assignments[key] = append(m.assignments[key], name)
		}
	}
	return nil
}

func (m *memRBACRepo) RevokeRole(_ context.Context, tenantID, userID, roleID string) error {
	key := tenantID + "/" + userID
	var kept []string
	for _, name := range m.assignments[key] {
		if m.rolesByName[name].ID != roleID {
			kept = append(kept, name)
		}
	}
	m.assignments[key] = kept
	return nil
}

type authFixture struct {
	router   *gin.Engine
	rbacRepo *memRBACRepo
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	log := logger.New("error", "handler-test")
	tokens, err := token.NewService(config.JWTConfig{
		Secret:                "handler-test-secret",
		Issuer:                "hospital-system",
		ExpirationSeconds:     3600,
		RefreshExpirationDays: 7,
	})
	require.NoError(t, err)

	rbacRepo := newMemRBACRepo()
	resolver := rbac.NewResolver(rbacRepo, cache.NewLocal(), log)
	identitySvc := identity.NewService(newMemUserRepo(), resolver, tokens,
		events.NewMemoryPublisher(), config.LockoutConfig{Threshold: 5, DurationMinutes: 30}, log)

	router := gin.New()
	router.Use(middleware.ErrorHandler(log))
	NewAuthHandler(identitySvc, resolver, log).RegisterRoutes(router, "default-tenant")

	return &authFixture{router: router, rbacRepo: rbacRepo}
}

func (f *authFixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

const registerBody = `{"name":"Alice Smith","email":"alice@example.com","password":"Str0ng!Pass"}`

func TestRegisterEndpoint(t *testing.T) {
	f := newAuthFixture(t)

	w := f.do(http.MethodPost, "/api/auth/register", registerBody, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	var dto models.UserDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dto))
	assert.Equal(t, "alice@example.com", dto.Email)
	assert.Equal(t, "default-tenant", dto.TenantID)
	assert.Contains(t, dto.Roles, models.RolePatient)
}

func TestRegisterDuplicateIs409(t *testing.T) {
	f := newAuthFixture(t)
	f.do(http.MethodPost, "/api/auth/register", registerBody, nil)

	w := f.do(http.MethodPost, "/api/auth/register", registerBody, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"errorCode":"CONFLICT"`)
}

func TestRegisterValidationEnvelope(t *testing.T) {
	f := newAuthFixture(t)

	w := f.do(http.MethodPost, "/api/auth/register", `{"name":"A","email":"nope","password":""}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, `"errorCode":"VALIDATION_ERROR"`)
	assert.Contains(t, body, `"fieldErrors"`)
	assert.Contains(t, body, `"path":"/api/auth/register"`)
}

func TestWeakPasswordIs400WithFieldErrors(t *testing.T) {
	f := newAuthFixture(t)

	w := f.do(http.MethodPost, "/api/auth/register",
		`{"name":"Alice Smith","email":"alice@example.com","password":"weakpass"}`, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "uppercase")
}

func TestLoginEndpoint(t *testing.T) {
	f := newAuthFixture(t)
	f.do(http.MethodPost, "/api/auth/register", registerBody, nil)

	w := f.do(http.MethodPost, "/api/auth/login",
		`{"email":"alice@example.com","password":"Str0ng!Pass"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "Bearer", resp.TokenType)
}

func TestLoginBadCredentialsIs401(t *testing.T) {
	f := newAuthFixture(t)
	f.do(http.MethodPost, "/api/auth/register", registerBody, nil)

	w := f.do(http.MethodPost, "/api/auth/login",
		`{"email":"alice@example.com","password":"Wrong!Pass1"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid email or password")
}

func TestRefreshEndpoint(t *testing.T) {
	f := newAuthFixture(t)
	f.do(http.MethodPost, "/api/auth/register", registerBody, nil)

	w := f.do(http.MethodPost, "/api/auth/login",
		`{"email":"alice@example.com","password":"Str0ng!Pass"}`, nil)
	var resp models.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	w = f.do(http.MethodPost, "/api/auth/refresh",
		`{"refreshToken":"`+resp.RefreshToken+`"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"token"`)
}

func TestMeRequiresIdentityHeaders(t *testing.T) {
	f := newAuthFixture(t)

	w := f.do(http.MethodGet, "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMeReturnsProfile(t *testing.T) {
	f := newAuthFixture(t)
	w := f.do(http.MethodPost, "/api/auth/register", registerBody, nil)
	var dto models.UserDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dto))

	w = f.do(http.MethodGet, "/api/auth/me", "", map[string]string{
		"X-Tenant-Id": "default-tenant",
		"X-User-Id":   dto.ID,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice@example.com")
}

func TestRoleGrantRequiresAdmin(t *testing.T) {
	f := newAuthFixture(t)
	w := f.do(http.MethodPost, "/api/auth/register", registerBody, nil)
	var dto models.UserDTO
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dto))

	// A plain patient cannot grant roles.
	w = f.do(http.MethodPost, "/api/users/"+dto.ID+"/roles/DOCTOR", "", map[string]string{
		"X-Tenant-Id":  "default-tenant",
		"X-User-Id":    dto.ID,
		"X-User-Roles": models.RolePatient,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// An admin can.
	w = f.do(http.MethodPost, "/api/users/"+dto.ID+"/roles/DOCTOR", "", map[string]string{
		"X-Tenant-Id":  "default-tenant",
		"X-User-Id":    "admin-1",
		"X-User-Roles": models.RoleAdmin,
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, f.rbacRepo.assignments["default-tenant/"+dto.ID], models.RoleDoctor)
}
