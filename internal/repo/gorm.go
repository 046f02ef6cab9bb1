package repo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/govlink/govlink/internal/models"
	"github.com/govlink/govlink/internal/partition"
)

type GormRepo struct {
	DB *gorm.DB
}

func NewGormRepo(db *gorm.DB) *GormRepo {
	return &GormRepo{DB: db}
}

func (r *GormRepo) table(ctx context.Context, p partition.Config) *gorm.DB {
	return r.DB.WithContext(ctx).Table(p.Collection)
}

func (r *GormRepo) Migrate(ctx context.Context, parts []partition.Config) error {
	for _, p := range parts {
		if err := r.table(ctx, p).AutoMigrate(&models.Principal{}); err != nil {
			return fmt.Errorf("migrate %s: %w", p.Collection, err)
		}
		stmts := []string{
			fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%[1]s_email ON %[1]s (email)", p.Collection),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%[1]s_reset_token_hash ON %[1]s (reset_token_hash)", p.Collection),
			fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%[1]s_verify_token_hash ON %[1]s (verify_token_hash)", p.Collection),
		}
		for _, s := range stmts {
			if err := r.DB.WithContext(ctx).Exec(s).Error; err != nil {
				return fmt.Errorf("index %s: %w", p.Collection, err)
			}
		}
	}
	return nil
}

func (r *GormRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *GormRepo) first(ctx context.Context, p partition.Config, query string, args ...any) (*models.Principal, error) {
	var pr models.Principal
	if err := r.table(ctx, p).Where(query, args...).First(&pr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &pr, nil
}

func (r *GormRepo) FindByEmail(ctx context.Context, p partition.Config, email string) (*models.Principal, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, ErrNotFound
	}
	return r.first(ctx, p, "email = ?", email)
}

func (r *GormRepo) FindByID(ctx context.Context, p partition.Config, id string) (*models.Principal, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	return r.first(ctx, p, "id = ?", id)
}

func (r *GormRepo) Create(ctx context.Context, p partition.Config, pr *models.Principal) error {
	pr.Email = NormalizeEmail(pr.Email)
	pr.Partition = p.Name

	var n int64
	if err := r.table(ctx, p).Where("email = ?", pr.Email).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return ErrConflict
	}
	if err := r.table(ctx, p).Create(pr).Error; err != nil {
		if isDuplicate(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func (r *GormRepo) update(ctx context.Context, p partition.Config, id string, fields map[string]any) error {
	res := r.table(ctx, p).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormRepo) RecordLogin(ctx context.Context, p partition.Config, id string, at time.Time) error {
	at = at.UTC()
	return r.update(ctx, p, id, map[string]any{
		"last_login_at": at,
		"failed_logins": 0,
		"locked_until":  nil,
		"updated_at":    at,
	})
}

func (r *GormRepo) RecordFailedLogin(ctx context.Context, p partition.Config, id string, maxFailures int, lockFor time.Duration, now time.Time) (*time.Time, error) {
	now = now.UTC()
	var lockedUntil *time.Time

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Table(p.Collection).Where("id = ?", id).Updates(map[string]any{
			"failed_logins": gorm.Expr("failed_logins + 1"),
			"updated_at":    now,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		var pr models.Principal
		if err := tx.Table(p.Collection).Select("failed_logins").Where("id = ?", id).First(&pr).Error; err != nil {
			return err
		}
		if maxFailures <= 0 || pr.FailedLogins < maxFailures {
			return nil
		}

		until := now.Add(lockFor)
		lockedUntil = &until
		return tx.Table(p.Collection).Where("id = ?", id).Updates(map[string]any{
			"failed_logins": 0,
			"locked_until":  until,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return lockedUntil, nil
}

func (r *GormRepo) SetResetToken(ctx context.Context, p partition.Config, id, tokenHash string, expiresAt time.Time) error {
	return r.update(ctx, p, id, map[string]any{
		"reset_token_hash":       tokenHash,
		"reset_token_expires_at": expiresAt.UTC(),
		"updated_at":             time.Now().UTC(),
	})
}

func (r *GormRepo) SetVerifyToken(ctx context.Context, p partition.Config, id, tokenHash string, expiresAt time.Time) error {
	return r.update(ctx, p, id, map[string]any{
		"verify_token_hash":       tokenHash,
		"verify_token_expires_at": expiresAt.UTC(),
		"updated_at":              time.Now().UTC(),
	})
}

// redeem finds the holder of a live token hash and applies fields only if
// the hash is still in place, so two racing redemptions cannot both win.
// Expiry is compared in Go to stay independent of how the driver stores
// timestamps.
func (r *GormRepo) redeem(ctx context.Context, p partition.Config, hashCol, expCol, tokenHash string, now time.Time, fields map[string]any) (*models.Principal, error) {
	if tokenHash == "" {
		return nil, ErrNotFound
	}

	pr, err := r.first(ctx, p, hashCol+" = ?", tokenHash)
	if err != nil {
		return nil, err
	}

	var exp *time.Time
	switch expCol {
	case "reset_token_expires_at":
		exp = pr.ResetTokenExpiresAt
	case "verify_token_expires_at":
		exp = pr.VerifyTokenExpiresAt
	}
	if exp == nil || !now.Before(*exp) {
		return nil, ErrNotFound
	}

	fields[hashCol] = ""
	fields[expCol] = nil
	fields["updated_at"] = now.UTC()

	res := r.table(ctx, p).Where("id = ? AND "+hashCol+" = ?", pr.ID, tokenHash).Updates(fields)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return r.FindByID(ctx, p, pr.ID)
}

func (r *GormRepo) RedeemResetToken(ctx context.Context, p partition.Config, tokenHash, newPasswordHash string, now time.Time) (*models.Principal, error) {
	return r.redeem(ctx, p, "reset_token_hash", "reset_token_expires_at", tokenHash, now, map[string]any{
		"password_hash": newPasswordHash,
		"failed_logins": 0,
		"locked_until":  nil,
	})
}

func (r *GormRepo) RedeemVerifyToken(ctx context.Context, p partition.Config, tokenHash string, now time.Time) (*models.Principal, error) {
	return r.redeem(ctx, p, "verify_token_hash", "verify_token_expires_at", tokenHash, now, map[string]any{
		"email_verified": true,
		"status": gorm.Expr("CASE WHEN status = ? THEN ? ELSE status END",
			string(models.StatusPendingVerification), string(models.StatusActive)),
	})
}

func (r *GormRepo) UpdateStatus(ctx context.Context, p partition.Config, id string, status models.Status, now time.Time) (*models.Principal, error) {
	if err := r.update(ctx, p, id, map[string]any{
		"status":     string(status),
		"updated_at": now.UTC(),
	}); err != nil {
		return nil, err
	}
	return r.FindByID(ctx, p, id)
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
