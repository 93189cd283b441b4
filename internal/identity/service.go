// Package identity implements the tenant-scoped user store: registration,
// credential verification with lockout, and account lifecycle.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meditrust/hospital-core/internal/apperr"
	"github.com/meditrust/hospital-core/internal/config"
	"github.com/meditrust/hospital-core/internal/events"
	"github.com/meditrust/hospital-core/internal/models"
	"github.com/meditrust/hospital-core/internal/monitoring"
	"github.com/meditrust/hospital-core/internal/token"
	"github.com/meditrust/hospital-core/pkg/logger"
)

// invalidCredentialsMsg is returned for both unknown email and wrong
// password so responses do not reveal which one failed.
const invalidCredentialsMsg = "Invalid email or password"

// RoleDirectory resolves and assigns roles for authenticated users. The RBAC
// resolver implements it.
type RoleDirectory interface {
	RoleNamesForUser(ctx context.Context, tenantID, userID string) ([]string, error)
	PermissionsForUser(ctx context.Context, tenantID, userID string) ([]string, error)
	GrantRole(ctx context.Context, tenantID, userID, roleName string) error
}

// Service is the identity store facade used by the auth HTTP handlers.
type Service struct {
	repo      Repository
	roles     RoleDirectory
	tokens    *token.Service
	publisher events.Publisher
	lockout   config.LockoutConfig
	logger    logger.Logger
}

func NewService(repo Repository, roles RoleDirectory, tokens *token.Service, publisher events.Publisher, lockout config.LockoutConfig, log logger.Logger) *Service {
	return &Service{
		repo:      repo,
		roles:     roles,
		tokens:    tokens,
		publisher: publisher,
		lockout:   lockout,
		logger:    log,
	}
}

// Register creates a new user, grants the default PATIENT role and publishes
// user.registered after the write commits. Duplicate emails within the
// tenant map to Conflict.
func (s *Service) Register(ctx context.Context, tenantID string, req models.RegisterRequest) (*models.UserDTO, error) {
	if err := ValidatePassword(req.Password); err != nil {
		return nil, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, apperr.Unexpected("Failed to process registration", err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:                uuid.NewString(),
		TenantID:          tenantID,
		Name:              strings.TrimSpace(req.Name),
		Email:             strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:             req.Phone,
		PasswordHash:      hash,
		Active:            true,
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, apperr.Conflict("Email is already registered")
		}
		return nil, apperr.Unexpected("Failed to create user", err)
	}

	if err := s.roles.GrantRole(ctx, tenantID, user.ID, models.RolePatient); err != nil {
		s.logger.Error("Failed to grant default role",
			"user_id", user.ID, "tenant_id", tenantID, "error", err)
	}

	evt := &events.UserRegistered{
		Envelope: events.NewEnvelope(events.KeyUserRegistered, tenantID),
		UserID:   user.ID,
		Name:     user.Name,
		Email:    user.Email,
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Error("Failed to publish user.registered", "user_id", user.ID, "error", err)
	}

	dto := user.ToDTO([]string{models.RolePatient})
	return &dto, nil
}

// Login verifies credentials and runs the lockout state machine: each failed
// attempt increments the counter, crossing the threshold locks the account
// for the configured duration, and a success resets both.
func (s *Service) Login(ctx context.Context, tenantID string, req models.LoginRequest) (*models.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := s.repo.FindByEmail(ctx, tenantID, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			monitoring.RecordAuthAttempt("password", "unknown_user")
			return nil, apperr.Unauthorized(invalidCredentialsMsg)
		}
		return nil, apperr.Unexpected("Failed to authenticate", err)
	}

	now := time.Now().UTC()
	if user.IsLocked(now) {
		monitoring.RecordAuthAttempt("password", "locked")
		return nil, apperr.Forbidden("Account is temporarily locked due to repeated failed logins")
	}
	if !user.Active {
		monitoring.RecordAuthAttempt("password", "inactive")
		return nil, apperr.Forbidden("Account is disabled")
	}

	if !CheckPassword(req.Password, user.PasswordHash) {
		if err := s.recordFailure(ctx, user, now); err != nil {
			s.logger.Error("Failed to record login failure", "user_id", user.ID, "error", err)
		}
		monitoring.RecordAuthAttempt("password", "bad_credentials")
		return nil, apperr.Unauthorized(invalidCredentialsMsg)
	}

	if err := s.repo.RecordLoginSuccess(ctx, tenantID, user.ID, now); err != nil {
		s.logger.Error("Failed to reset lockout counters", "user_id", user.ID, "error", err)
	}

	roles, err := s.roles.RoleNamesForUser(ctx, tenantID, user.ID)
	if err != nil {
		return nil, apperr.Unexpected("Failed to resolve roles", err)
	}
	permissions, err := s.roles.PermissionsForUser(ctx, tenantID, user.ID)
	if err != nil {
		return nil, apperr.Unexpected("Failed to resolve permissions", err)
	}

	access, expiresIn, err := s.tokens.MintAccess(user.ID, tenantID, user.Email, user.Name, "", roles, permissions)
	if err != nil {
		return nil, apperr.Unexpected("Failed to issue token", err)
	}
	refresh, err := s.tokens.MintRefresh(user.ID, tenantID, user.Email)
	if err != nil {
		return nil, apperr.Unexpected("Failed to issue refresh token", err)
	}

	monitoring.RecordAuthAttempt("password", "success")
	return &models.LoginResponse{
		Token:        access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    expiresIn,
		User:         user.ToDTO(roles),
	}, nil
}

// recordFailure increments the failed-attempt counter and opens the lockout
// window once the threshold is reached.
func (s *Service) recordFailure(ctx context.Context, user *models.User, now time.Time) error {
	attempts := user.FailedAttempts + 1
	var lockedUntil *time.Time
	if attempts >= s.lockout.Threshold {
		until := now.Add(time.Duration(s.lockout.DurationMinutes) * time.Minute)
		lockedUntil = &until
		s.logger.Warn("Account locked after repeated failures",
			"user_id", user.ID, "tenant_id", user.TenantID, "attempts", attempts)
	}
	return s.repo.RecordLoginFailure(ctx, user.TenantID, user.ID, attempts, lockedUntil)
}

// Refresh exchanges a valid refresh token for a fresh access token. The user
// must still be active and unlocked at refresh time.
func (s *Service) Refresh(ctx context.Context, req models.RefreshRequest) (*models.LoginResponse, error) {
	claims, err := s.tokens.VerifyRefresh(req.RefreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.repo.FindByID(ctx, claims.TenantID, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperr.Unauthorized("Invalid or expired token")
		}
		return nil, apperr.Unexpected("Failed to refresh token", err)
	}
	if !user.CanLogin(time.Now().UTC()) {
		return nil, apperr.Forbidden("Account is disabled or locked")
	}

	roles, err := s.roles.RoleNamesForUser(ctx, user.TenantID, user.ID)
	if err != nil {
		return nil, apperr.Unexpected("Failed to resolve roles", err)
	}
	permissions, err := s.roles.PermissionsForUser(ctx, user.TenantID, user.ID)
	if err != nil {
		return nil, apperr.Unexpected("Failed to resolve permissions", err)
	}

	access, expiresIn, err := s.tokens.MintAccess(user.ID, user.TenantID, user.Email, user.Name, "", roles, permissions)
	if err != nil {
		return nil, apperr.Unexpected("Failed to issue token", err)
	}

	monitoring.RecordAuthAttempt("refresh", "success")
	return &models.LoginResponse{
		Token:     access,
		TokenType: "Bearer",
		ExpiresIn: expiresIn,
		User:      user.ToDTO(roles),
	}, nil
}

// Get returns one user's wire representation with resolved roles.
func (s *Service) Get(ctx context.Context, tenantID, userID string) (*models.UserDTO, error) {
	user, err := s.repo.FindByID(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, apperr.NotFound("User", userID)
		}
		return nil, apperr.Unexpected("Failed to load user", err)
	}
	roles, err := s.roles.RoleNamesForUser(ctx, tenantID, userID)
	if err != nil {
		return nil, apperr.Unexpected("Failed to resolve roles", err)
	}
	dto := user.ToDTO(roles)
	return &dto, nil
}

// Deactivate soft-deletes the account. The user row and its audit trail are
// kept; only login is revoked.
func (s *Service) Deactivate(ctx context.Context, tenantID, userID string) error {
	return s.setActive(ctx, tenantID, userID, false)
}

// Reactivate re-enables a previously deactivated account.
func (s *Service) Reactivate(ctx context.Context, tenantID, userID string) error {
	return s.setActive(ctx, tenantID, userID, true)
}

func (s *Service) setActive(ctx context.Context, tenantID, userID string, active bool) error {
	if err := s.repo.SetActive(ctx, tenantID, userID, active); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return apperr.NotFound("User", userID)
		}
		return apperr.Unexpected("Failed to update user", err)
	}

	user, err := s.repo.FindByID(ctx, tenantID, userID)
	if err != nil {
		return apperr.Unexpected("Failed to load user", err)
	}
	evt := &events.UserUpdated{
		Envelope: events.NewEnvelope(events.KeyUserUpdated, tenantID),
		UserID:   user.ID,
		Email:    user.Email,
		Active:   user.Active,
	}
	if err := s.publisher.Publish(ctx, evt); err != nil {
		s.logger.Error("Failed to publish user.updated", "user_id", userID, "error", err)
	}
	return nil
}
