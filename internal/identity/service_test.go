package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meditrust/hospital-core/internal/apperr"
	"github.com/meditrust/hospital-core/internal/config"
	"github.com/meditrust/hospital-core/internal/events"
	"github.com/meditrust/hospital-core/internal/models"
	"github.com/meditrust/hospital-core/internal/token"
	"github.com/meditrust/hospital-core/pkg/logger"
)

type fakeRepo struct {
	users map[string]*models.User // keyed by tenant+"/"+email
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{users: make(map[string]*models.User)}
}

func (f *fakeRepo) key(tenantID, email string) string { return tenantID + "/" + email }

func (f *fakeRepo) Create(_ context.Context, user *models.User) error {
	k := f.key(user.TenantID, user.Email)
	if _, ok := f.users[k]; ok {
		return ErrDuplicateEmail
	}
	cp := *user
	f.users[k] = &cp
	return nil
}

func (f *fakeRepo) FindByEmail(_ context.Context, tenantID, email string) (*models.User, error) {
	if u, ok := f.users[f.key(tenantID, email)]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, ErrUserNotFound
}

func (f *fakeRepo) FindByID(_ context.Context, tenantID, id string) (*models.User, error) {
	for _, u := range f.users {
		if u.TenantID == tenantID && u.ID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (f *fakeRepo) RecordLoginSuccess(_ context.Context, tenantID, id string, at time.Time) error {
	for _, u := range f.users {
		if u.TenantID == tenantID && u.ID == id {
			u.FailedAttempts = 0
			u.LockedUntil = nil
			u.LastLoginAt = &at
		}
	}
	return nil
}

func (f *fakeRepo) RecordLoginFailure(_ context.Context, tenantID, id string, attempts int, lockedUntil *time.Time) error {
	for _, u := range f.users {
		if u.TenantID == tenantID && u.ID == id {
			u.FailedAttempts = attempts
			u.LockedUntil = lockedUntil
		}
	}
	return nil
}

func (f *fakeRepo) SetActive(_ context.Context, tenantID, id string, active bool) error {
	for _, u := range f.users {
		if u.TenantID == tenantID && u.ID == id {
			u.Active = active
			return nil
		}
	}
	return ErrUserNotFound
}

func (f *fakeRepo) UpdateProfile(_ context.Context, user *models.User) error {
	for _, u := range f.users {
		if u.TenantID == user.TenantID && u.ID == user.ID {
			u.Name = user.Name
			u.Phone = user.Phone
			return nil
		}
	}
	return ErrUserNotFound
}

type fakeRoles struct {
	granted map[string][]string // userID -> role names
}

func newFakeRoles() *fakeRoles { return &fakeRoles{granted: make(map[string][]string)} }

func (f *fakeRoles) RoleNamesForUser(_ context.Context, _, userID string) ([]string, error) {
	return f.granted[userID], nil
}

func (f *fakeRoles) PermissionsForUser(_ context.Context, _, userID string) ([]string, error) {
	var perms []string
	for _, r := range f.granted[userID] {
		if r == models.RolePatient {
			perms = append(perms, "appointment:read")
		}
	}
	return perms, nil
}

func (f *fakeRoles) GrantRole(_ context.Context, _, userID, roleName string) error {
	f.granted[userID] = append(f.granted[userID], roleName)
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeRepo, *events.MemoryPublisher) {
	t.Helper()
	tokens, err := token.NewService(config.JWTConfig{
		Secret:                "test-secret",
		Issuer:                "hospital-system",
		ExpirationSeconds:     3600,
		RefreshExpirationDays: 7,
	})
	require.NoError(t, err)

	repo := newFakeRepo()
	pub := events.NewMemoryPublisher()
	svc := NewService(repo, newFakeRoles(), tokens, pub,
		config.LockoutConfig{Threshold: 3, DurationMinutes: 30},
		logger.New("error", "identity-test"))
	return svc, repo, pub
}

func register(t *testing.T, svc *Service) *models.UserDTO {
	t.Helper()
	dto, err := svc.Register(context.Background(), "tenant-a", models.RegisterRequest{
		Name:     "Alice Smith",
		Email:    "alice@example.com",
		Password: "Str0ng!Pass",
	})
	require.NoError(t, err)
	return dto
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		valid    bool
	}{
		{"valid", "Str0ng!Pass", true},
		{"too short", "S0r!t", false},
		{"no uppercase", "str0ng!pass", false},
		{"no lowercase", "STR0NG!PASS", false},
		{"no digit", "Strong!Pass", false},
		{"no special", "Str0ngPass1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.valid {
				assert.Nil(t, err)
			} else {
				require.NotNil(t, err)
				assert.Equal(t, apperr.KindValidation, err.Kind)
				assert.NotEmpty(t, err.FieldErrors)
			}
		})
	}
}

func TestRegister(t *testing.T) {
	svc, _, pub := newTestService(t)

	dto := register(t, svc)
	assert.Equal(t, "alice@example.com", dto.Email)
	assert.Equal(t, "tenant-a", dto.TenantID)
	assert.Contains(t, dto.Roles, models.RolePatient)

	published := pub.ByRoutingKey(events.KeyUserRegistered)
	require.Len(t, published, 1)
	assert.Equal(t, "tenant-a", published[0].Header().TenantID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, _, _ := newTestService(t)
	register(t, svc)

	_, err := svc.Register(context.Background(), "tenant-a", models.RegisterRequest{
		Name:     "Alice Again",
		Email:    "Alice@Example.com", // email comparison is case-insensitive
		Password: "Str0ng!Pass",
	})
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.From(err).Kind)
}

func TestRegisterAcrossTenants(t *testing.T) {
	svc, _, _ := newTestService(t)
	register(t, svc)

	// Same email in a different tenant is a different identity.
	_, err := svc.Register(context.Background(), "tenant-b", models.RegisterRequest{
		Name:     "Alice B",
		Email:    "alice@example.com",
		Password: "Str0ng!Pass",
	})
	assert.NoError(t, err)
}

func TestLoginSuccess(t *testing.T) {
	svc, repo, _ := newTestService(t)
	register(t, svc)

	resp, err := svc.Login(context.Background(), "tenant-a", models.LoginRequest{
		Email:    "alice@example.com",
		Password: "Str0ng!Pass",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.EqualValues(t, 3600, resp.ExpiresIn)

	user, err := repo.FindByEmail(context.Background(), "tenant-a", "alice@example.com")
	require.NoError(t, err)
	assert.NotNil(t, user.LastLoginAt)
	assert.Zero(t, user.FailedAttempts)
}

func TestLoginWrongPasswordAndUnknownEmailSameMessage(t *testing.T) {
	svc, _, _ := newTestService(t)
	register(t, svc)

	_, errWrongPass := svc.Login(context.Background(), "tenant-a", models.LoginRequest{
		Email:    "alice@example.com",
		Password: "Wr0ng!Pass",
	})
	_, errUnknown := svc.Login(context.Background(), "tenant-a", models.LoginRequest{
		Email:    "nobody@example.com",
		Password: "Str0ng!Pass",
	})

	require.Error(t, errWrongPass)
	require.Error(t, errUnknown)
	assert.Equal(t, apperr.From(errWrongPass).Message, apperr.From(errUnknown).Message)
	assert.Equal(t, apperr.KindUnauthorized, apperr.From(errWrongPass).Kind)
}

func TestLoginLockoutAfterThreshold(t *testing.T) {
	svc, repo, _ := newTestService(t)
	register(t, svc)

	bad := models.LoginRequest{Email: "alice@example.com", Password: "Wr0ng!Pass"}
	for i := 0; i < 3; i++ {
		_, err := svc.Login(context.Background(), "tenant-a", bad)
		assert.Equal(t, apperr.KindUnauthorized, apperr.From(err).Kind)
	}

	user, err := repo.FindByEmail(context.Background(), "tenant-a", "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, user.LockedUntil)
	assert.True(t, user.LockedUntil.After(time.Now()))

	// Even the correct password is refused while the window is open.
	_, err = svc.Login(context.Background(), "tenant-a", models.LoginRequest{
		Email:    "alice@example.com",
		Password: "Str0ng!Pass",
	})
	assert.Equal(t, apperr.KindForbidden, apperr.From(err).Kind)
}

func TestLoginLockoutExpires(t *testing.T) {
	svc, repo, _ := newTestService(t)
	register(t, svc)

	user, err := repo.FindByEmail(context.Background(), "tenant-a", "alice@example.com")
	require.NoError(t, err)
	expired := time.Now().Add(-time.Minute)
	require.NoError(t, repo.RecordLoginFailure(context.Background(), "tenant-a", user.ID, 3, &expired))

	resp, err := svc.Login(context.Background(), "tenant-a", models.LoginRequest{
		Email:    "alice@example.com",
		Password: "Str0ng!Pass",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)

	user, err = repo.FindByEmail(context.Background(), "tenant-a", "alice@example.com")
	require.NoError(t, err)
	assert.Zero(t, user.FailedAttempts)
	assert.Nil(t, user.LockedUntil)
}

func TestLoginInactiveAccount(t *testing.T) {
	svc, _, _ := newTestService(t)
	dto := register(t, svc)
	require.NoError(t, svc.Deactivate(context.Background(), "tenant-a", dto.ID))

	_, err := svc.Login(context.Background(), "tenant-a", models.LoginRequest{
		Email:    "alice@example.com",
		Password: "Str0ng!Pass",
	})
	assert.Equal(t, apperr.KindForbidden, apperr.From(err).Kind)
}

func TestRefresh(t *testing.T) {
	svc, _, _ := newTestService(t)
	register(t, svc)

	resp, err := svc.Login(context.Background(), "tenant-a", models.LoginRequest{
		Email:    "alice@example.com",
		Password: "Str0ng!Pass",
	})
	require.NoError(t, err)

	refreshed, err := svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: resp.RefreshToken})
	require.NoError(t, err)
	assert.NotEmpty(t, refreshed.Token)
	assert.Empty(t, refreshed.RefreshToken)
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	register(t, svc)

	resp, err := svc.Login(context.Background(), "tenant-a", models.LoginRequest{
		Email:    "alice@example.com",
		Password: "Str0ng!Pass",
	})
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), models.RefreshRequest{RefreshToken: resp.Token})
	assert.Equal(t, apperr.KindUnauthorized, apperr.From(err).Kind)
}

func TestDeactivatePublishesUserUpdated(t *testing.T) {
	svc, _, pub := newTestService(t)
	dto := register(t, svc)

	require.NoError(t, svc.Deactivate(context.Background(), "tenant-a", dto.ID))

	published := pub.ByRoutingKey(events.KeyUserUpdated)
	require.Len(t, published, 1)
	updated := published[0].(*events.UserUpdated)
	assert.False(t, updated.Active)
}
