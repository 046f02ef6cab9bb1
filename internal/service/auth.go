package service

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/govlink/govlink/internal/activity"
	"github.com/govlink/govlink/internal/apperr"
	"github.com/govlink/govlink/internal/hash"
	"github.com/govlink/govlink/internal/logging"
	"github.com/govlink/govlink/internal/mail"
	"github.com/govlink/govlink/internal/metrics"
	"github.com/govlink/govlink/internal/models"
	"github.com/govlink/govlink/internal/partition"
	"github.com/govlink/govlink/internal/repo"
	"github.com/govlink/govlink/internal/tokens"
	"github.com/govlink/govlink/internal/transport"
)

const (
	DefaultResetTokenTTL  = time.Hour
	DefaultVerifyTokenTTL = 24 * time.Hour

	singleUseTokenBytes = 32
)

type Deps struct {
	Store    repo.Store
	Tokens   *tokens.Manager
	Activity activity.Sink
	Mail     mail.Sender
}

// AuthService runs the session lifecycle for one partition.
type AuthService struct {
	p        partition.Config
	store    repo.Store
	tokens   *tokens.Manager
	activity activity.Sink
	mail     mail.Sender

	publicBaseURL   string
	maxFailedLogins int
	lockDuration    time.Duration
	resetTTL        time.Duration
	verifyTTL       time.Duration
	now             func() time.Time
}

type Option func(*AuthService)

func WithClock(now func() time.Time) Option {
	return func(s *AuthService) {
		if now != nil {
			s.now = now
		}
	}
}

func WithLockout(maxFailures int, lockFor time.Duration) Option {
	return func(s *AuthService) {
		s.maxFailedLogins = maxFailures
		s.lockDuration = lockFor
	}
}

func WithPublicBaseURL(u string) Option {
	return func(s *AuthService) { s.publicBaseURL = strings.TrimRight(u, "/") }
}

func WithTokenTTLs(reset, verify time.Duration) Option {
	return func(s *AuthService) {
		if reset > 0 {
			s.resetTTL = reset
		}
		if verify > 0 {
			s.verifyTTL = verify
		}
	}
}

func NewAuthService(p partition.Config, d Deps, opts ...Option) *AuthService {
	s := &AuthService{
		p:               p,
		store:           d.Store,
		tokens:          d.Tokens,
		activity:        d.Activity,
		mail:            d.Mail,
		maxFailedLogins: 5,
		lockDuration:    15 * time.Minute,
		resetTTL:        DefaultResetTokenTTL,
		verifyTTL:       DefaultVerifyTokenTTL,
		now:             time.Now,
	}
	if s.activity == nil {
		s.activity = activity.Nop{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *AuthService) Partition() partition.Config { return s.p }

type LoginResult struct {
	Tokens    *tokens.Pair
	Principal *models.Principal
}

func validation(err error) error {
	return apperr.Validation("Validation failed", transport.FieldErrors(err)...)
}

func (s *AuthService) Login(ctx context.Context, req transport.LoginRequest) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.login", "partition", s.p.Name)
	if err := req.Validate(); err != nil {
		return nil, validation(err)
	}
	email := repo.NormalizeEmail(req.Email)
	now := s.now()

	pr, err := s.store.FindByEmail(ctx, s.p, email)
	if errors.Is(err, repo.ErrNotFound) {
		hash.EqualizeTiming(req.Password)
		s.record(ctx, l, activity.LoginFailure, nil, email, map[string]string{"reason": "unknown_email"})
		metrics.AuthAttempt(s.p.Name, "login", "invalid_credentials")
		l.Warn("login_failed", "status", 401)
		return nil, apperr.InvalidCredentials()
	}
	if err != nil {
		l.Error("login_failed", "status", 500, "error", err)
		return nil, apperr.Internal(err)
	}

	if !hash.CheckPassword(pr.PasswordHash, req.Password) {
		meta := map[string]string{"reason": "wrong_password"}
		// Failures during an active lock are not counted; the lock never moves.
		var lockedUntil *time.Time
		if pr.LockedAt(now) {
			meta["locked"] = "true"
		} else {
			var lerr error
			lockedUntil, lerr = s.store.RecordFailedLogin(ctx, s.p, pr.ID, s.maxFailedLogins, s.lockDuration, now)
			if lerr != nil {
				l.Error("record_failed_login", "principal_id", pr.ID, "error", lerr)
			}
		}
		if lockedUntil != nil {
			meta["locked_until"] = lockedUntil.Format(time.RFC3339)
			l.Warn("account_locked", "principal_id", pr.ID, "until", *lockedUntil)
		}
		s.record(ctx, l, activity.LoginFailure, pr, email, meta)
		metrics.AuthAttempt(s.p.Name, "login", "invalid_credentials")
		l.Warn("login_failed", "status", 401, "principal_id", pr.ID)
		return nil, apperr.InvalidCredentials()
	}

	if err := Gate(s.p, pr, now); err != nil {
		s.record(ctx, l, activity.LoginBlocked, pr, email, map[string]string{"status": string(pr.Status)})
		metrics.AuthAttempt(s.p.Name, "login", "blocked")
		l.Warn("login_blocked", "status", 403, "principal_id", pr.ID, "account_status", pr.Status)
		return nil, err
	}

	pair, err := s.tokens.Issue(pr.ID, pr.Role, s.p)
	if err != nil {
		l.Error("login_failed", "status", 500, "error", err)
		return nil, apperr.Internal(err)
	}

	if err := s.store.RecordLogin(ctx, s.p, pr.ID, now); err != nil {
		l.Error("record_login", "principal_id", pr.ID, "error", err)
	} else {
		at := now.UTC()
		pr.LastLoginAt = &at
		pr.FailedLogins = 0
		pr.LockedUntil = nil
	}

	s.record(ctx, l, activity.LoginSuccess, pr, email, nil)
	metrics.AuthAttempt(s.p.Name, "login", "success")
	l.Info("login_successful", "principal_id", pr.ID)

	return &LoginResult{Tokens: pair, Principal: pr}, nil
}

// Refresh always rotates: the caller gets a new access and refresh token.
// The presented refresh token is not revoked, so concurrent refreshes with
// the same token all succeed.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*LoginResult, error) {
	l := logging.FromContext(ctx).With("svc", "auth.refresh", "partition", s.p.Name)

	claims, err := s.tokens.Verify(refreshToken, tokens.Refresh, s.p.Name)
	if err != nil {
		metrics.AuthAttempt(s.p.Name, "refresh", "invalid_token")
		l.Warn("refresh_rejected", "status", 401, "error", err)
		return nil, apperr.InvalidToken(apperr.MsgInvalidRefreshToken, err)
	}

	pr, err := s.store.FindByID(ctx, s.p, claims.Subject)
	if errors.Is(err, repo.ErrNotFound) {
		metrics.AuthAttempt(s.p.Name, "refresh", "invalid_token")
		l.Warn("refresh_rejected", "status", 401, "principal_id", claims.Subject, "reason", "principal gone")
		return nil, apperr.InvalidToken(apperr.MsgInvalidRefreshToken, err)
	}
	if err != nil {
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, apperr.Internal(err)
	}

	if err := Gate(s.p, pr, s.now()); err != nil {
		metrics.AuthAttempt(s.p.Name, "refresh", "blocked")
		l.Warn("refresh_blocked", "status", 403, "principal_id", pr.ID, "account_status", pr.Status)
		return nil, err
	}

	pair, err := s.tokens.Issue(pr.ID, pr.Role, s.p)
	if err != nil {
		l.Error("refresh_failed", "status", 500, "error", err)
		return nil, apperr.Internal(err)
	}

	s.record(ctx, l, activity.Refresh, pr, pr.Email, nil)
	metrics.AuthAttempt(s.p.Name, "refresh", "success")
	return &LoginResult{Tokens: pair, Principal: pr}, nil
}

// Authenticate verifies an access token and reloads the principal behind it.
// Profile data always comes from the store, never from the claims.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*models.Principal, *tokens.Claims, error) {
	l := logging.FromContext(ctx).With("svc", "auth.authenticate", "partition", s.p.Name)

	claims, err := s.tokens.Verify(accessToken, tokens.Access, s.p.Name)
	if err != nil {
		l.Debug("access_rejected", "error", err)
		return nil, nil, apperr.InvalidToken(apperr.MsgInvalidAccessToken, err)
	}

	pr, err := s.store.FindByID(ctx, s.p, claims.Subject)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil, apperr.NotFound("Account not found")
	}
	if err != nil {
		l.Error("authenticate_failed", "status", 500, "error", err)
		return nil, nil, apperr.Internal(err)
	}

	if err := Gate(s.p, pr, s.now()); err != nil {
		return nil, nil, err
	}
	return pr, claims, nil
}

func (s *AuthService) Me(ctx context.Context, accessToken string) (*models.Principal, error) {
	pr, _, err := s.Authenticate(ctx, accessToken)
	return pr, err
}

// Logout is stateless. The handler clears cookies; a still-valid access
// token only lets us attribute the event.
func (s *AuthService) Logout(ctx context.Context, accessToken string) {
	l := logging.FromContext(ctx).With("svc", "auth.logout", "partition", s.p.Name)

	claims, err := s.tokens.Verify(accessToken, tokens.Access, s.p.Name)
	if err != nil {
		l.Info("logout", "attributed", false)
		return
	}
	e := activity.NewEvent(activity.Logout, s.p.Name, s.now())
	e.PrincipalID = claims.Subject
	e.ClientIP = ClientIPFromContext(ctx)
	if err := s.activity.Record(ctx, e); err != nil {
		l.Warn("activity_record_failed", "type", e.Type, "error", err)
	}
	l.Info("logout", "attributed", true, "principal_id", claims.Subject)
}

func (s *AuthService) Register(ctx context.Context, req transport.RegisterRequest) (*models.Principal, error) {
	l := logging.FromContext(ctx).With("svc", "auth.register", "partition", s.p.Name)
	if !s.p.SelfRegistration {
		return nil, apperr.Forbidden("Registration is not available for this account type")
	}
	if err := req.Validate(); err != nil {
		return nil, validation(err)
	}

	pwHash, err := hash.HashPassword(req.Password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		return nil, apperr.Internal(err)
	}

	now := s.now().UTC()
	pr := &models.Principal{
		ID:           uuid.NewString(),
		Email:        repo.NormalizeEmail(req.Email),
		Role:         s.p.DefaultRole,
		PasswordHash: pwHash,
		Status:       models.StatusPendingVerification,
		Profile:      req.Profile,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, s.p, pr); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			l.Warn("register_error", "status", 409, "reason", "email already registered")
			return nil, apperr.Conflict("Email is already registered")
		}
		l.Error("register_error", "status", 500, "error", err)
		return nil, apperr.Internal(err)
	}

	s.record(ctx, l, activity.Registered, pr, pr.Email, nil)
	s.sendVerification(ctx, l, pr)
	l.Info("registered", "principal_id", pr.ID)
	return pr, nil
}

// Seed creates a principal directly, bypassing registration rules. Used to
// bootstrap the first superadmin. An existing email is left untouched.
func (s *AuthService) Seed(ctx context.Context, email, password, role string) (*models.Principal, bool, error) {
	if !s.p.HasRole(role) {
		return nil, false, apperr.Validation("Role is not valid for partition")
	}
	if existing, err := s.store.FindByEmail(ctx, s.p, email); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, false, err
	}

	pwHash, err := hash.HashPassword(password)
	if err != nil {
		return nil, false, err
	}
	now := s.now().UTC()
	pr := &models.Principal{
		ID:            uuid.NewString(),
		Email:         repo.NormalizeEmail(email),
		Role:          role,
		PasswordHash:  pwHash,
		Status:        models.StatusActive,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, s.p, pr); err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return pr, true, nil
}

func (s *AuthService) ChangeStatus(ctx context.Context, id string, req transport.StatusChangeRequest, actorID string) (*models.Principal, error) {
	l := logging.FromContext(ctx).With("svc", "auth.change_status", "partition", s.p.Name)
	if err := req.Validate(); err != nil {
		return nil, validation(err)
	}
	if !s.p.Knows(req.Status) {
		return nil, apperr.Validation("Validation failed", "status: not valid for "+s.p.Name+" accounts")
	}

	before, err := s.store.FindByID(ctx, s.p, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperr.NotFound("Account not found")
	}
	if err != nil {
		return nil, apperr.Internal(err)
	}

	pr, err := s.store.UpdateStatus(ctx, s.p, id, req.Status, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		return nil, apperr.NotFound("Account not found")
	}
	if err != nil {
		l.Error("status_change_failed", "status", 500, "error", err)
		return nil, apperr.Internal(err)
	}

	s.record(ctx, l, activity.StatusChanged, pr, pr.Email, map[string]string{
		"from":   string(before.Status),
		"to":     string(pr.Status),
		"actor":  actorID,
		"reason": req.Reason,
	})
	l.Info("status_changed", "principal_id", pr.ID, "from", before.Status, "to", pr.Status, "actor", actorID)
	return pr, nil
}

func (s *AuthService) link(path, token string) string {
	q := url.Values{}
	q.Set("token", token)
	return s.publicBaseURL + path + "?" + q.Encode()
}

func (s *AuthService) record(ctx context.Context, l *slog.Logger, t activity.Type, pr *models.Principal, email string, meta map[string]string) {
	e := activity.NewEvent(t, s.p.Name, s.now())
	e.Email = email
	e.ClientIP = ClientIPFromContext(ctx)
	e.Metadata = meta
	if pr != nil {
		e.PrincipalID = pr.ID
	}
	if err := s.activity.Record(ctx, e); err != nil {
		l.Warn("activity_record_failed", "type", t, "error", err)
	}
}
