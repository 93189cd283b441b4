// Package rbac resolves effective roles and permissions for authenticated
// users and answers authorization questions for the HTTP layer.
package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/meditrust/hospital-core/internal/apperr"
	"github.com/meditrust/hospital-core/internal/models"
	"github.com/meditrust/hospital-core/pkg/cache"
	"github.com/meditrust/hospital-core/pkg/logger"
)

// ErrRoleNotFound is returned when a named role does not exist in the tenant.
var ErrRoleNotFound = errors.New("rbac: role not found")

// ResolutionCacheName is the local cache holding resolved role/permission
// sets. Invalidated on user.updated and cache.invalidate broadcasts.
const ResolutionCacheName = "rbac-resolution"

// resolutionTTL bounds staleness between a role change and its effect on
// requests served from the cache.
const resolutionTTL = 60 * time.Second

type cachedResolution struct {
	roles       []string
	permissions []string
	expiresAt   time.Time
}

// Resolver answers authorization questions. Token permissions, when present,
// are authoritative for the token's lifetime; database resolution is the
// fallback for tokens minted without a permission claim.
type Resolver struct {
	repo   Repository
	local  *cache.Local
	logger logger.Logger
}

func NewResolver(repo Repository, local *cache.Local, log logger.Logger) *Resolver {
	return &Resolver{repo: repo, local: local, logger: log}
}

// RoleNamesForUser resolves the user's in-force role names.
func (r *Resolver) RoleNamesForUser(ctx context.Context, tenantID, userID string) ([]string, error) {
	res, err := r.resolve(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	return res.roles, nil
}

// PermissionsForUser resolves the user's effective permission names through a
// single joined lookup over roles and role permissions.
func (r *Resolver) PermissionsForUser(ctx context.Context, tenantID, userID string) ([]string, error) {
	res, err := r.resolve(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	return res.permissions, nil
}

func (r *Resolver) resolve(ctx context.Context, tenantID, userID string) (*cachedResolution, error) {
	key := tenantID + "/" + userID
	if v, ok := r.local.Get(ResolutionCacheName, key); ok {
		if res := v.(*cachedResolution); time.Now().Before(res.expiresAt) {
			return res, nil
		}
		r.local.Evict(ResolutionCacheName, key)
	}

	now := time.Now().UTC()
	roles, err := r.repo.ValidRoleNames(ctx, tenantID, userID, now)
	if err != nil {
		return nil, err
	}
	permissions, err := r.repo.ValidPermissionNames(ctx, tenantID, userID, now)
	if err != nil {
		return nil, err
	}

	res := &cachedResolution{
		roles:       roles,
		permissions: permissions,
		expiresAt:   time.Now().Add(resolutionTTL),
	}
	r.local.Put(ResolutionCacheName, key, res)
	return res, nil
}

// HasPermission checks a required permission against the token's permission
// claim when present, otherwise against the database resolution.
func (r *Resolver) HasPermission(ctx context.Context, tenantID, userID string, tokenPermissions []string, required string) (bool, error) {
	if len(tokenPermissions) > 0 {
		return containsName(tokenPermissions, required), nil
	}
	permissions, err := r.PermissionsForUser(ctx, tenantID, userID)
	if err != nil {
		return false, err
	}
	return containsName(permissions, required), nil
}

// RequirePermission returns Forbidden when the permission is missing.
func (r *Resolver) RequirePermission(ctx context.Context, tenantID, userID string, tokenPermissions []string, required string) error {
	ok, err := r.HasPermission(ctx, tenantID, userID, tokenPermissions, required)
	if err != nil {
		return apperr.Unexpected("Failed to resolve permissions", err)
	}
	if !ok {
		return apperr.Forbidden("Missing required permission: " + required)
	}
	return nil
}

// HasRole reports whether the user holds the named role.
func (r *Resolver) HasRole(ctx context.Context, tenantID, userID string, tokenRoles []string, role string) (bool, error) {
	if len(tokenRoles) > 0 {
		return containsName(tokenRoles, role), nil
	}
	roles, err := r.RoleNamesForUser(ctx, tenantID, userID)
	if err != nil {
		return false, err
	}
	return containsName(roles, role), nil
}

// RequireRole returns Forbidden when the role is missing.
func (r *Resolver) RequireRole(ctx context.Context, tenantID, userID string, tokenRoles []string, role string) error {
	ok, err := r.HasRole(ctx, tenantID, userID, tokenRoles, role)
	if err != nil {
		return apperr.Unexpected("Failed to resolve roles", err)
	}
	if !ok {
		return apperr.Forbidden("Missing required role: " + role)
	}
	return nil
}

// Convenience predicates over the well-known clinical roles.
func (r *Resolver) IsAdmin(ctx context.Context, tenantID, userID string, tokenRoles []string) (bool, error) {
	return r.HasRole(ctx, tenantID, userID, tokenRoles, models.RoleAdmin)
}

func (r *Resolver) IsDoctor(ctx context.Context, tenantID, userID string, tokenRoles []string) (bool, error) {
	return r.HasRole(ctx, tenantID, userID, tokenRoles, models.RoleDoctor)
}

func (r *Resolver) IsNurse(ctx context.Context, tenantID, userID string, tokenRoles []string) (bool, error) {
	return r.HasRole(ctx, tenantID, userID, tokenRoles, models.RoleNurse)
}

func (r *Resolver) IsPatient(ctx context.Context, tenantID, userID string, tokenRoles []string) (bool, error) {
	return r.HasRole(ctx, tenantID, userID, tokenRoles, models.RolePatient)
}

// CanAccessResource authorizes an action on one resource instance. A
// type-wide permission ("<resource>:<action>") grants access to every
// instance; otherwise an exact resource grant must exist.
func (r *Resolver) CanAccessResource(ctx context.Context, tenantID, userID string, tokenPermissions []string, resource, resourceID, action string) (bool, error) {
	ok, err := r.HasPermission(ctx, tenantID, userID, tokenPermissions, resource+":"+action)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}
	return r.repo.HasResourcePermission(ctx, tenantID, userID, resource, resourceID, action)
}

// ListAccessibleResources enumerates the resource instances the user may act
// on. A type-wide permission short-circuits to AllowAll with an empty id
// list.
func (r *Resolver) ListAccessibleResources(ctx context.Context, tenantID, userID string, tokenPermissions []string, resource, action string) (*models.AccessibleResources, error) {
	ok, err := r.HasPermission(ctx, tenantID, userID, tokenPermissions, resource+":"+action)
	if err != nil {
		return nil, err
	}
	if ok {
		return &models.AccessibleResources{AllowAll: true}, nil
	}
	ids, err := r.repo.ResourceIDsFor(ctx, tenantID, userID, resource, action)
	if err != nil {
		return nil, err
	}
	return &models.AccessibleResources{ResourceIDs: ids}, nil
}

// GrantRole assigns a named role to the user and drops the cached resolution
// so the change is visible immediately on this node.
func (r *Resolver) GrantRole(ctx context.Context, tenantID, userID, roleName string) error {
	role, err := r.repo.FindRoleByName(ctx, tenantID, roleName)
	if err != nil {
		return err
	}
	assignment := &models.UserRole{
		ID:         uuid.NewString(),
		UserID:     userID,
		RoleID:     role.ID,
		TenantID:   tenantID,
		AssignedBy: "system",
		Active:     true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.repo.AssignRole(ctx, assignment); err != nil {
		return err
	}
	r.local.Evict(ResolutionCacheName, tenantID+"/"+userID)
	return nil
}

// RevokeRole removes a role assignment and drops the cached resolution.
func (r *Resolver) RevokeRole(ctx context.Context, tenantID, userID, roleName string) error {
	role, err := r.repo.FindRoleByName(ctx, tenantID, roleName)
	if err != nil {
		return err
	}
	if err := r.repo.RevokeRole(ctx, tenantID, userID, role.ID); err != nil {
		return err
	}
	r.local.Evict(ResolutionCacheName, tenantID+"/"+userID)
	return nil
}

// InvalidateUser drops one user's cached resolution. The auth service's
// cache consumer calls this on user.updated events.
func (r *Resolver) InvalidateUser(tenantID, userID string) {
	r.local.Evict(ResolutionCacheName, tenantID+"/"+userID)
}

// InvalidateAll flushes the resolution cache. Called on cache.invalidate
// broadcasts naming this cache.
func (r *Resolver) InvalidateAll() {
	r.local.Clear(ResolutionCacheName)
}

func containsName(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}
