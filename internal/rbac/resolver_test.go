package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meditrust/hospital-core/internal/apperr"
	"github.com/meditrust/hospital-core/internal/models"
	"github.com/meditrust/hospital-core/pkg/cache"
	"github.com/meditrust/hospital-core/pkg/logger"
)

type fakeRBACRepo struct {
	roles          map[string][]string // tenant/user -> role names
	permissions    map[string][]string // tenant/user -> permission names
	resourceGrants map[string][]string // tenant/user/resource/action -> resource ids
	rolesByName    map[string]*models.Role
	queries        int
}

func newFakeRBACRepo() *fakeRBACRepo {
	return &fakeRBACRepo{
		roles:          make(map[string][]string),
		permissions:    make(map[string][]string),
		resourceGrants: make(map[string][]string),
		rolesByName: map[string]*models.Role{
			models.RolePatient: {ID: "role-patient", Name: models.RolePatient, Active: true},
			models.RoleDoctor:  {ID: "role-doctor", Name: models.RoleDoctor, Active: true},
			models.RoleAdmin:   {ID: "role-admin", Name: models.RoleAdmin, Active: true},
		},
	}
}

func (f *fakeRBACRepo) ValidRoleNames(_ context.Context, tenantID, userID string, _ time.Time) ([]string, error) {
	f.queries++
	return f.roles[tenantID+"/"+userID], nil
}

func (f *fakeRBACRepo) ValidPermissionNames(_ context.Context, tenantID, userID string, _ time.Time) ([]string, error) {
	f.queries++
	return f.permissions[tenantID+"/"+userID], nil
}

func (f *fakeRBACRepo) HasResourcePermission(_ context.Context, tenantID, userID, resource, resourceID, action string) (bool, error) {
	for _, id := range f.resourceGrants[tenantID+"/"+userID+"/"+resource+"/"+action] {
		if id == resourceID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRBACRepo) ResourceIDsFor(_ context.Context, tenantID, userID, resource, action string) ([]string, error) {
	return f.resourceGrants[tenantID+"/"+userID+"/"+resource+"/"+action], nil
}

func (f *fakeRBACRepo) FindRoleByName(_ context.Context, _, name string) (*models.Role, error) {
	if role, ok := f.rolesByName[name]; ok {
		return role, nil
	}
	return nil, ErrRoleNotFound
}

func (f *fakeRBACRepo) AssignRole(_ context.Context, assignment *models.UserRole) error {
	key := assignment.TenantID + "/" + assignment.UserID
	for name, role := range f.rolesByName {
		if role.ID == assignment.RoleID {
			f.roles[key] = append(f.roles[key], name)
		}
	}
	return nil
}

func (f *fakeRBACRepo) RevokeRole(_ context.Context, tenantID, userID, roleID string) error {
	key := tenantID + "/" + userID
	var kept []string
	for _, name := range f.roles[key] {
		if f.rolesByName[name].ID != roleID {
			kept = append(kept, name)
		}
	}
	f.roles[key] = kept
	return nil
}

func newTestResolver(t *testing.T) (*Resolver, *fakeRBACRepo) {
	t.Helper()
	repo := newFakeRBACRepo()
	return NewResolver(repo, cache.NewLocal(), logger.New("error", "rbac-test")), repo
}

func TestTokenPermissionsAreAuthoritative(t *testing.T) {
	r, repo := newTestResolver(t)
	repo.permissions["t1/u1"] = []string{"patient:read"}

	// The token claim wins even when the database disagrees.
	ok, err := r.HasPermission(context.Background(), "t1", "u1",
		[]string{"appointment:write"}, "appointment:write")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, repo.queries)

	ok, err = r.HasPermission(context.Background(), "t1", "u1",
		[]string{"appointment:write"}, "patient:read")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDatabaseFallbackWhenTokenHasNoPermissions(t *testing.T) {
	r, repo := newTestResolver(t)
	repo.permissions["t1/u1"] = []string{"patient:read"}

	ok, err := r.HasPermission(context.Background(), "t1", "u1", nil, "patient:read")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Positive(t, repo.queries)
}

func TestResolutionIsCached(t *testing.T) {
	r, repo := newTestResolver(t)
	repo.roles["t1/u1"] = []string{models.RoleDoctor}
	repo.permissions["t1/u1"] = []string{"patient:read"}

	_, err := r.PermissionsForUser(context.Background(), "t1", "u1")
	require.NoError(t, err)
	first := repo.queries

	_, err = r.PermissionsForUser(context.Background(), "t1", "u1")
	require.NoError(t, err)
	_, err = r.RoleNamesForUser(context.Background(), "t1", "u1")
	require.NoError(t, err)
	assert.Equal(t, first, repo.queries)
}

func TestInvalidateUserDropsCache(t *testing.T) {
	r, repo := newTestResolver(t)
	repo.permissions["t1/u1"] = []string{"patient:read"}

	_, err := r.PermissionsForUser(context.Background(), "t1", "u1")
	require.NoError(t, err)

	repo.permissions["t1/u1"] = []string{"patient:read", "patient:write"}
	r.InvalidateUser("t1", "u1")

	perms, err := r.PermissionsForUser(context.Background(), "t1", "u1")
	require.NoError(t, err)
	assert.Contains(t, perms, "patient:write")
}

func TestRequirePermissionForbidden(t *testing.T) {
	r, _ := newTestResolver(t)

	err := r.RequirePermission(context.Background(), "t1", "u1", nil, "patient:delete")
	require.Error(t, err)
	assert.Equal(t, apperr.KindForbidden, apperr.From(err).Kind)
}

func TestRolePredicates(t *testing.T) {
	r, repo := newTestResolver(t)
	repo.roles["t1/u1"] = []string{models.RoleDoctor}

	isDoctor, err := r.IsDoctor(context.Background(), "t1", "u1", nil)
	require.NoError(t, err)
	assert.True(t, isDoctor)

	isAdmin, err := r.IsAdmin(context.Background(), "t1", "u1", nil)
	require.NoError(t, err)
	assert.False(t, isAdmin)

	// Token roles short-circuit the lookup.
	isNurse, err := r.IsNurse(context.Background(), "t1", "u2", []string{models.RoleNurse})
	require.NoError(t, err)
	assert.True(t, isNurse)
}

func TestCanAccessResourceFallsBackToResourceGrant(t *testing.T) {
	r, repo := newTestResolver(t)
	repo.resourceGrants["t1/u1/medical-record/read"] = []string{"rec-7"}

	ok, err := r.CanAccessResource(context.Background(), "t1", "u1", nil, "medical-record", "rec-7", "read")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.CanAccessResource(context.Background(), "t1", "u1", nil, "medical-record", "rec-8", "read")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListAccessibleResources(t *testing.T) {
	r, repo := newTestResolver(t)
	repo.resourceGrants["t1/u1/medical-record/read"] = []string{"rec-1", "rec-2"}

	scoped, err := r.ListAccessibleResources(context.Background(), "t1", "u1", nil, "medical-record", "read")
	require.NoError(t, err)
	assert.False(t, scoped.AllowAll)
	assert.Equal(t, []string{"rec-1", "rec-2"}, scoped.ResourceIDs)

	// Type-wide permission means allow-all with no enumeration.
	all, err := r.ListAccessibleResources(context.Background(), "t1", "u2",
		[]string{"medical-record:read"}, "medical-record", "read")
	require.NoError(t, err)
	assert.True(t, all.AllowAll)
	assert.Empty(t, all.ResourceIDs)
}

func TestGrantAndRevokeRole(t *testing.T) {
	r, _ := newTestResolver(t)

	require.NoError(t, r.GrantRole(context.Background(), "t1", "u1", models.RolePatient))
	roles, err := r.RoleNamesForUser(context.Background(), "t1", "u1")
	require.NoError(t, err)
	assert.Contains(t, roles, models.RolePatient)

	require.NoError(t, r.RevokeRole(context.Background(), "t1", "u1", models.RolePatient))
	roles, err = r.RoleNamesForUser(context.Background(), "t1", "u1")
	require.NoError(t, err)
	assert.NotContains(t, roles, models.RolePatient)

	err = r.GrantRole(context.Background(), "t1", "u1", "NO_SUCH_ROLE")
	assert.ErrorIs(t, err, ErrRoleNotFound)
}
