package models

import (
	"time"
)

type Status string

const (
	StatusActive              Status = "ACTIVE"
	StatusSuspended           Status = "SUSPENDED"
	StatusDeactivated         Status = "DEACTIVATED"
	StatusPendingVerification Status = "PENDING_VERIFICATION"
	StatusUnderReview         Status = "UNDER_REVIEW"
)

const (
	RoleUser       = "user"
	RoleAgent      = "agent"
	RoleDepartment = "department"
	RoleAdmin      = "admin"
	RoleSuperadmin = "superadmin"
)

// Principal is an account record inside one partition. The same shape is
// stored in every partition's collection or table.
type Principal struct {
	ID            string     `gorm:"primaryKey;type:varchar(36)"  bson:"_id"                        json:"id"`
	Partition     string     `gorm:"not null"                     bson:"partition"                  json:"partition"`
	Email         string     `gorm:"not null"                     bson:"email"                      json:"email"`
	Role          string     `gorm:"not null"                     bson:"role"                       json:"role"`
	PasswordHash  string     `gorm:"not null"                     bson:"password_hash"              json:"-"`
	Status        Status     `gorm:"not null"                     bson:"status"                     json:"status"`
	EmailVerified bool       `gorm:"not null;default:false"       bson:"email_verified"             json:"emailVerified"`
	FailedLogins  int        `gorm:"not null;default:0"           bson:"failed_logins"              json:"-"`
	LockedUntil   *time.Time `bson:"locked_until,omitempty"     json:"-"`
	LastLoginAt   *time.Time `bson:"last_login_at,omitempty"    json:"lastLoginAt,omitempty"`

	ResetTokenHash       string     `bson:"reset_token_hash,omitempty"         json:"-"`
	ResetTokenExpiresAt  *time.Time `bson:"reset_token_expires_at,omitempty"   json:"-"`
	VerifyTokenHash      string     `bson:"verify_token_hash,omitempty"        json:"-"`
	VerifyTokenExpiresAt *time.Time `bson:"verify_token_expires_at,omitempty"  json:"-"`

	Profile map[string]any `gorm:"type:text;serializer:json" bson:"profile,omitempty" json:"profile,omitempty"`

	CreatedAt time.Time `gorm:"not null" bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `gorm:"not null" bson:"updated_at" json:"updatedAt"`
}

// PrincipalView is what clients get back. Credential and token fields
// never appear here.
type PrincipalView struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	Role          string         `json:"role"`
	Partition     string         `json:"partition"`
	Status        Status         `json:"status"`
	EmailVerified bool           `json:"emailVerified"`
	LastLoginAt   *time.Time     `json:"lastLoginAt,omitempty"`
	Profile       map[string]any `json:"profile,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

func (p *Principal) Sanitized() PrincipalView {
	return PrincipalView{
		ID:            p.ID,
		Email:         p.Email,
		Role:          p.Role,
		Partition:     p.Partition,
		Status:        p.Status,
		EmailVerified: p.EmailVerified,
		LastLoginAt:   p.LastLoginAt,
		Profile:       p.Profile,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func (p *Principal) LockedAt(now time.Time) bool {
	return p.LockedUntil != nil && now.Before(*p.LockedUntil)
}
