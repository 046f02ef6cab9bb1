// Package repo is the credential store adapter. One Store serves every
// partition; the partition decides which collection or table is touched.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/govlink/govlink/internal/models"
	"github.com/govlink/govlink/internal/partition"
)

var (
	ErrNotFound = errors.New("principal not found")
	ErrConflict = errors.New("principal already exists")
)

type Store interface {
	FindByEmail(ctx context.Context, p partition.Config, email string) (*models.Principal, error)
	FindByID(ctx context.Context, p partition.Config, id string) (*models.Principal, error)
	Create(ctx context.Context, p partition.Config, pr *models.Principal) error

	// RecordLogin stamps last login and clears the failure counter and lock.
	RecordLogin(ctx context.Context, p partition.Config, id string, at time.Time) error
	// RecordFailedLogin bumps the failure counter. Once it reaches
	// maxFailures the principal is locked until now+lockFor and the counter
	// starts over. The returned time is the lock expiry, nil when unlocked.
	RecordFailedLogin(ctx context.Context, p partition.Config, id string, maxFailures int, lockFor time.Duration, now time.Time) (*time.Time, error)

	SetResetToken(ctx context.Context, p partition.Config, id, tokenHash string, expiresAt time.Time) error
	// RedeemResetToken swaps the password hash and clears the reset token in
	// one conditional write. A second redemption finds nothing.
	RedeemResetToken(ctx context.Context, p partition.Config, tokenHash, newPasswordHash string, now time.Time) (*models.Principal, error)

	SetVerifyToken(ctx context.Context, p partition.Config, id, tokenHash string, expiresAt time.Time) error
	// RedeemVerifyToken marks the email verified, promotes a pending
	// principal to ACTIVE and clears the token.
	RedeemVerifyToken(ctx context.Context, p partition.Config, tokenHash string, now time.Time) (*models.Principal, error)

	UpdateStatus(ctx context.Context, p partition.Config, id string, status models.Status, now time.Time) (*models.Principal, error)

	Migrate(ctx context.Context, parts []partition.Config) error
	Ping(ctx context.Context) error
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
