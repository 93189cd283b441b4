package models

import "time"

// User is a tenant-scoped identity. Email is unique per tenant, not
// globally.
type User struct {
	ID                string     `db:"id" json:"id"`
	TenantID          string     `db:"tenant_id" json:"tenantId"`
	Name              string     `db:"name" json:"name"`
	Email             string     `db:"email" json:"email"`
	Phone             string     `db:"phone" json:"phone,omitempty"`
	PasswordHash      string     `db:"password_hash" json:"-"`
	Active            bool       `db:"active" json:"active"`
	EmailVerified     bool       `db:"email_verified" json:"emailVerified"`
	FailedAttempts    int        `db:"failed_attempts" json:"-"`
	LockedUntil       *time.Time `db:"locked_until" json:"-"`
	LastLoginAt       *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
	PasswordChangedAt time.Time  `db:"password_changed_at" json:"-"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
}

// IsLocked reports whether the lockout window is still open.
func (u *User) IsLocked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// CanLogin gates authentication: the account must be active and not locked.
func (u *User) CanLogin(now time.Time) bool {
	return u.Active && !u.IsLocked(now)
}

// UserDTO is the wire representation of a user; it never carries password
// material or lockout counters.
type UserDTO struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenantId"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone,omitempty"`
	Active        bool       `json:"active"`
	EmailVerified bool       `json:"emailVerified"`
	LastLoginAt   *time.Time `json:"lastLoginAt,omitempty"`
	Roles         []string   `json:"roles,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// ToDTO projects a user onto its wire representation.
func (u *User) ToDTO(roles []string) UserDTO {
	return UserDTO{
		ID:            u.ID,
		TenantID:      u.TenantID,
		Name:          u.Name,
		Email:         u.Email,
		Phone:         u.Phone,
		Active:        u.Active,
		EmailVerified: u.EmailVerified,
		LastLoginAt:   u.LastLoginAt,
		Roles:         roles,
		CreatedAt:     u.CreatedAt,
	}
}

// RegisterRequest is the registration payload.
type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Phone    string `json:"phone" binding:"omitempty,max=20"`
}

// LoginRequest is the credential payload.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the minted token pair and the authenticated user.
type LoginResponse struct {
	Token        string  `json:"token"`
	RefreshToken string  `json:"refreshToken,omitempty"`
	TokenType    string  `json:"tokenType"`
	ExpiresIn    int64   `json:"expiresIn"`
	User         UserDTO `json:"user"`
}

// RefreshRequest exchanges a refresh token for a new access token.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}
