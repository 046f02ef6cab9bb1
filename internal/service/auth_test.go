package service

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/govlink/govlink/internal/activity"
	"github.com/govlink/govlink/internal/apperr"
	"github.com/govlink/govlink/internal/db"
	"github.com/govlink/govlink/internal/hash"
	"github.com/govlink/govlink/internal/mail"
	"github.com/govlink/govlink/internal/models"
	"github.com/govlink/govlink/internal/partition"
	"github.com/govlink/govlink/internal/repo"
	"github.com/govlink/govlink/internal/tokens"
	"github.com/govlink/govlink/internal/transport"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingSink struct {
	mu     sync.Mutex
	events []activity.Event
}

func (r *recordingSink) Record(_ context.Context, e activity.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) types() []activity.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]activity.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type outbox struct {
	mu   sync.Mutex
	msgs []mail.Message
	err  error
}

func (o *outbox) Send(_ context.Context, m mail.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, m)
	return o.err
}

func (o *outbox) last(t *testing.T) mail.Message {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.msgs)
	return o.msgs[len(o.msgs)-1]
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	u, err := url.Parse(link)
	require.NoError(t, err)
	tok := u.Query().Get("token")
	require.NotEmpty(t, tok)
	return tok
}

type env struct {
	clock    *testClock
	store    repo.Store
	tokens   *tokens.Manager
	sink     *recordingSink
	mail     *outbox
	services map[string]*AuthService
}

func newEnv(t *testing.T) *env {
	t.Helper()

	gdb, err := db.OpenSQLite(":memory:")
	require.NoError(t, err)
	store := repo.NewGormRepo(gdb)
	require.NoError(t, store.Migrate(context.Background(), partition.Defaults()))

	clk := &testClock{t: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
	tm, err := tokens.NewManager([]byte("test-jwt-secret"), []byte("test-refresh-secret"), tokens.WithClock(clk.Now))
	require.NoError(t, err)

	e := &env{
		clock:    clk,
		store:    store,
		tokens:   tm,
		sink:     &recordingSink{},
		mail:     &outbox{},
		services: map[string]*AuthService{},
	}
	for _, p := range partition.Defaults() {
		e.services[p.Name] = NewAuthService(p, Deps{
			Store:    store,
			Tokens:   tm,
			Activity: e.sink,
			Mail:     e.mail,
		},
			WithClock(clk.Now),
			WithLockout(3, 10*time.Minute),
			WithPublicBaseURL("https://portal.example/"),
		)
	}
	return e
}

func (e *env) svc(name string) *AuthService { return e.services[name] }

func (e *env) seed(t *testing.T, ptn, email, password string, status models.Status) *models.Principal {
	t.Helper()
	svc := e.svc(ptn)
	pwHash, err := hash.HashPassword(password)
	require.NoError(t, err)
	pr := &models.Principal{
		ID:           uuid.NewString(),
		Email:        email,
		Role:         svc.Partition().DefaultRole,
		PasswordHash: pwHash,
		Status:       status,
		Profile:      map[string]any{"name": "Ada"},
	}
	require.NoError(t, e.store.Create(context.Background(), svc.Partition(), pr))
	return pr
}

func requireKind(t *testing.T, err error, k apperr.Kind) *apperr.Error {
	t.Helper()
	require.Error(t, err)
	var ae *apperr.Error
	require.True(t, errors.As(err, &ae), "expected *apperr.Error, got %T", err)
	require.Equal(t, k, ae.Kind, "message: %s", ae.Message)
	return ae
}

func TestLogin_ActivePrincipalGetsPairForItself(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	for _, ptn := range []string{partition.User, partition.Agent, partition.Admin, partition.Department} {
		t.Run(ptn, func(t *testing.T) {
			pr := e.seed(t, ptn, ptn+"@gov.example", "correct-password", models.StatusActive)

			res, err := e.svc(ptn).Login(ctx, transport.LoginRequest{Email: "  " + ptn + "@GOV.example", Password: "correct-password"})
			require.NoError(t, err)

			ac, err := e.tokens.Verify(res.Tokens.AccessToken, tokens.Access, ptn)
			require.NoError(t, err)
			assert.Equal(t, pr.ID, ac.Subject)
			assert.Equal(t, pr.Role, ac.Role)

			rc, err := e.tokens.Verify(res.Tokens.RefreshToken, tokens.Refresh, ptn)
			require.NoError(t, err)
			assert.Equal(t, pr.ID, rc.Subject)

			stored, err := e.store.FindByID(ctx, e.svc(ptn).Partition(), pr.ID)
			require.NoError(t, err)
			require.NotNil(t, stored.LastLoginAt)
			assert.True(t, stored.LastLoginAt.Equal(e.clock.Now()))
		})
	}
	assert.Contains(t, e.sink.types(), activity.LoginSuccess)
}

func TestLogin_StatusGate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	tests := []struct {
		ptn     string
		status  models.Status
		allowed bool
	}{
		{partition.User, models.StatusActive, true},
		{partition.User, models.StatusPendingVerification, true},
		{partition.User, models.StatusSuspended, false},
		{partition.User, models.StatusDeactivated, false},
		{partition.Agent, models.StatusPendingVerification, false},
		{partition.Agent, models.StatusUnderReview, false},
		{partition.Admin, models.StatusSuspended, false},
		{partition.Department, models.StatusUnderReview, false},
		{partition.Department, models.StatusActive, true},
	}

	for _, tt := range tests {
		t.Run(tt.ptn+"/"+string(tt.status), func(t *testing.T) {
			email := uuid.NewString()[:8] + "@gov.example"
			e.seed(t, tt.ptn, email, "correct-password", tt.status)

			res, err := e.svc(tt.ptn).Login(ctx, transport.LoginRequest{Email: email, Password: "correct-password"})
			if tt.allowed {
				require.NoError(t, err)
				assert.NotEmpty(t, res.Tokens.AccessToken)
				return
			}
			ae := requireKind(t, err, apperr.KindAccountNotActive)
			assert.Equal(t, tt.status, ae.Status)
			assert.Equal(t, "Account is "+string(tt.status), ae.Message)
			assert.Nil(t, res)
		})
	}
}

func TestLogin_UnknownEmailAndWrongPasswordLookTheSame(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, partition.User, "known@gov.example", "correct-password", models.StatusActive)

	_, errUnknown := e.svc(partition.User).Login(ctx, transport.LoginRequest{Email: "unknown@gov.example", Password: "whatever"})
	_, errWrong := e.svc(partition.User).Login(ctx, transport.LoginRequest{Email: "known@gov.example", Password: "whatever"})

	a := requireKind(t, errUnknown, apperr.KindInvalidCredentials)
	b := requireKind(t, errWrong, apperr.KindInvalidCredentials)
	assert.Equal(t, a.Message, b.Message)
	assert.Equal(t, a.HTTPStatus(), b.HTTPStatus())
	assert.Equal(t, apperr.MsgInvalidCredentials, a.Message)
}

func TestLogin_Validation(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc(partition.User).Login(context.Background(), transport.LoginRequest{Email: "not-an-email"})
	ae := requireKind(t, err, apperr.KindValidation)
	assert.Len(t, ae.Fields, 2)
}

func TestLogin_LockoutAfterRepeatedFailures(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := e.svc(partition.Agent)
	e.seed(t, partition.Agent, "field@gov.example", "correct-password", models.StatusActive)

	for i := 0; i < 3; i++ {
		_, err := svc.Login(ctx, transport.LoginRequest{Email: "field@gov.example", Password: "nope"})
		requireKind(t, err, apperr.KindInvalidCredentials)
	}

	_, err := svc.Login(ctx, transport.LoginRequest{Email: "field@gov.example", Password: "correct-password"})
	requireKind(t, err, apperr.KindAccountLocked)

	// Wrong password while locked stays generic.
	_, err = svc.Login(ctx, transport.LoginRequest{Email: "field@gov.example", Password: "nope"})
	requireKind(t, err, apperr.KindInvalidCredentials)

	e.clock.Advance(11 * time.Minute)
	_, err = svc.Login(ctx, transport.LoginRequest{Email: "field@gov.example", Password: "correct-password"})
	require.NoError(t, err)

	stored, err := e.store.FindByEmail(ctx, svc.Partition(), "field@gov.example")
	require.NoError(t, err)
	assert.Equal(t, 0, stored.FailedLogins)
	assert.Nil(t, stored.LockedUntil)
}

func TestLogin_FailuresWhileLockedDoNotExtendTheLock(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := e.svc(partition.User)
	e.seed(t, partition.User, "victim@b.com", "correct-password", models.StatusActive)

	for i := 0; i < 3; i++ {
		_, err := svc.Login(ctx, transport.LoginRequest{Email: "victim@b.com", Password: "nope"})
		requireKind(t, err, apperr.KindInvalidCredentials)
	}
	locked, err := e.store.FindByEmail(ctx, svc.Partition(), "victim@b.com")
	require.NoError(t, err)
	require.NotNil(t, locked.LockedUntil)
	until := *locked.LockedUntil

	for i := 0; i < 6; i++ {
		e.clock.Advance(time.Minute)
		_, err := svc.Login(ctx, transport.LoginRequest{Email: "victim@b.com", Password: "nope"})
		requireKind(t, err, apperr.KindInvalidCredentials)
	}

	stored, err := e.store.FindByEmail(ctx, svc.Partition(), "victim@b.com")
	require.NoError(t, err)
	require.NotNil(t, stored.LockedUntil)
	assert.True(t, stored.LockedUntil.Equal(until), "lock moved from %v to %v", until, *stored.LockedUntil)
	assert.Equal(t, 0, stored.FailedLogins)

	e.clock.Advance(5 * time.Minute)
	_, err = svc.Login(ctx, transport.LoginRequest{Email: "victim@b.com", Password: "correct-password"})
	require.NoError(t, err)
}

func TestRefresh_OutlivesAccessToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := e.svc(partition.User)
	e.seed(t, partition.User, "a@b.com", "correct-password", models.StatusActive)

	res, err := svc.Login(ctx, transport.LoginRequest{Email: "a@b.com", Password: "correct-password"})
	require.NoError(t, err)

	e.clock.Advance(16 * time.Minute)
	_, err = svc.Me(ctx, res.Tokens.AccessToken)
	ae := requireKind(t, err, apperr.KindInvalidToken)
	assert.Equal(t, apperr.MsgInvalidAccessToken, ae.Message)
	assert.ErrorIs(t, err, tokens.ErrExpiredToken)

	refreshed, err := svc.Refresh(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, res.Tokens.RefreshToken, refreshed.Tokens.RefreshToken)

	me, err := svc.Me(ctx, refreshed.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", me.Email)
	assert.Equal(t, e.clock.Now().Add(7*24*time.Hour), refreshed.Tokens.RefreshExp)
}

func TestRefresh_Rejections(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	pr := e.seed(t, partition.Agent, "agent@gov.example", "correct-password", models.StatusActive)

	res, err := e.svc(partition.Agent).Login(ctx, transport.LoginRequest{Email: "agent@gov.example", Password: "correct-password"})
	require.NoError(t, err)

	t.Run("access token is not a refresh token", func(t *testing.T) {
		_, err := e.svc(partition.Agent).Refresh(ctx, res.Tokens.AccessToken)
		ae := requireKind(t, err, apperr.KindInvalidToken)
		assert.Equal(t, apperr.MsgInvalidRefreshToken, ae.Message)
	})

	t.Run("other partition", func(t *testing.T) {
		_, err := e.svc(partition.Admin).Refresh(ctx, res.Tokens.RefreshToken)
		requireKind(t, err, apperr.KindInvalidToken)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := e.svc(partition.Agent).Refresh(ctx, "")
		requireKind(t, err, apperr.KindInvalidToken)
	})

	t.Run("suspended since issuance", func(t *testing.T) {
		_, err := e.store.UpdateStatus(ctx, e.svc(partition.Agent).Partition(), pr.ID, models.StatusSuspended, e.clock.Now())
		require.NoError(t, err)

		_, err = e.svc(partition.Agent).Refresh(ctx, res.Tokens.RefreshToken)
		ae := requireKind(t, err, apperr.KindAccountNotActive)
		assert.Equal(t, models.StatusSuspended, ae.Status)
	})

	t.Run("expired", func(t *testing.T) {
		e.clock.Advance(8 * 24 * time.Hour)
		_, err := e.svc(partition.Agent).Refresh(ctx, res.Tokens.RefreshToken)
		requireKind(t, err, apperr.KindInvalidToken)
		assert.ErrorIs(t, err, tokens.ErrExpiredToken)
	})
}

// Rotation does not revoke the presented token, so two racing refreshes
// with the same token both succeed and both pairs stay valid.
func TestRefresh_ConcurrentRotationRaceIsAccepted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := e.svc(partition.User)
	e.seed(t, partition.User, "race@b.com", "correct-password", models.StatusActive)

	res, err := svc.Login(ctx, transport.LoginRequest{Email: "race@b.com", Password: "correct-password"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*LoginResult, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Refresh(ctx, res.Tokens.RefreshToken)
		}(i)
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		_, err := svc.Me(ctx, results[i].Tokens.AccessToken)
		assert.NoError(t, err)
	}

	// The superseded refresh token still works until it expires.
	_, err = svc.Refresh(ctx, res.Tokens.RefreshToken)
	assert.NoError(t, err)
}

func TestMe(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := e.svc(partition.Department)
	pr := e.seed(t, partition.Department, "dept@gov.example", "correct-password", models.StatusActive)

	res, err := svc.Login(ctx, transport.LoginRequest{Email: "dept@gov.example", Password: "correct-password"})
	require.NoError(t, err)

	t.Run("fresh record", func(t *testing.T) {
		me, err := svc.Me(ctx, res.Tokens.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, pr.ID, me.ID)
		assert.Equal(t, "Ada", me.Profile["name"])
	})

	t.Run("cross partition", func(t *testing.T) {
		_, err := e.svc(partition.Admin).Me(ctx, res.Tokens.AccessToken)
		requireKind(t, err, apperr.KindInvalidToken)
	})

	t.Run("refresh token is not an access token", func(t *testing.T) {
		_, err := svc.Me(ctx, res.Tokens.RefreshToken)
		requireKind(t, err, apperr.KindInvalidToken)
	})

	t.Run("status changed after login", func(t *testing.T) {
		_, err := e.store.UpdateStatus(ctx, svc.Partition(), pr.ID, models.StatusDeactivated, e.clock.Now())
		require.NoError(t, err)

		_, err = svc.Me(ctx, res.Tokens.AccessToken)
		ae := requireKind(t, err, apperr.KindAccountNotActive)
		assert.Equal(t, "Account is DEACTIVATED", ae.Message)
	})

	t.Run("principal gone", func(t *testing.T) {
		ghost, err := e.tokens.Issue(uuid.NewString(), "department", svc.Partition())
		require.NoError(t, err)
		_, err = svc.Me(ctx, ghost.AccessToken)
		requireKind(t, err, apperr.KindNotFound)
	})
}

func TestLogout_RecordsWhenAttributable(t *testing.T) {
	e := newEnv(t)
	ctx := WithClientIP(context.Background(), "10.0.0.7")
	svc := e.svc(partition.User)
	e.seed(t, partition.User, "bye@b.com", "correct-password", models.StatusActive)

	res, err := svc.Login(ctx, transport.LoginRequest{Email: "bye@b.com", Password: "correct-password"})
	require.NoError(t, err)

	svc.Logout(ctx, res.Tokens.AccessToken)
	svc.Logout(ctx, "garbage")

	var logouts []activity.Event
	for _, ev := range e.sink.events {
		if ev.Type == activity.Logout {
			logouts = append(logouts, ev)
		}
	}
	require.Len(t, logouts, 1)
	assert.Equal(t, res.Principal.ID, logouts[0].PrincipalID)
	assert.Equal(t, "10.0.0.7", logouts[0].ClientIP)
}

func TestPasswordReset_SingleUse(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := e.svc(partition.User)
	e.seed(t, partition.User, "forgot@b.com", "old-password", models.StatusActive)

	require.NoError(t, svc.ForgotPassword(ctx, transport.EmailRequest{Email: "Forgot@B.com"}))
	msg := e.mail.last(t)
	assert.Equal(t, "forgot@b.com", msg.To)
	assert.Equal(t, mail.TemplatePasswordReset, msg.Template)
	assert.Contains(t, msg.Link, "https://portal.example/reset-password/user?token=")
	tok := tokenFromLink(t, msg.Link)

	stored, err := e.store.FindByEmail(ctx, svc.Partition(), "forgot@b.com")
	require.NoError(t, err)
	assert.Equal(t, hash.Sha256Hex(tok), stored.ResetTokenHash)
	require.NotNil(t, stored.ResetTokenExpiresAt)
	assert.True(t, stored.ResetTokenExpiresAt.Equal(e.clock.Now().Add(time.Hour)))

	req := transport.ResetPasswordRequest{Token: tok, NewPassword: "new-password", ConfirmPassword: "new-password"}
	require.NoError(t, svc.ResetPassword(ctx, req))

	err = svc.ResetPassword(ctx, req)
	ae := requireKind(t, err, apperr.KindInvalidToken)
	assert.Equal(t, apperr.MsgInvalidResetToken, ae.Message)

	_, err = svc.Login(ctx, transport.LoginRequest{Email: "forgot@b.com", Password: "old-password"})
	requireKind(t, err, apperr.KindInvalidCredentials)
	_, err = svc.Login(ctx, transport.LoginRequest{Email: "forgot@b.com", Password: "new-password"})
	require.NoError(t, err)
}

func TestPasswordReset_ExpiredToken(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := e.svc(partition.Admin)
	e.seed(t, partition.Admin, "admin@gov.example", "old-password", models.StatusActive)

	require.NoError(t, svc.ForgotPassword(ctx, transport.EmailRequest{Email: "admin@gov.example"}))
	tok := tokenFromLink(t, e.mail.last(t).Link)

	e.clock.Advance(61 * time.Minute)
	err := svc.ResetPassword(ctx, transport.ResetPasswordRequest{Token: tok, NewPassword: "new-password", ConfirmPassword: "new-password"})
	requireKind(t, err, apperr.KindInvalidToken)
}

func TestForgotPassword_DoesNotEnumerate(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := e.svc(partition.User)

	require.NoError(t, svc.ForgotPassword(ctx, transport.EmailRequest{Email: "ghost@b.com"}))
	assert.Equal(t, 0, e.mail.count())

	err := svc.ForgotPassword(ctx, transport.EmailRequest{Email: "not-an-email"})
	requireKind(t, err, apperr.KindValidation)
}

func TestForgotPassword_SwallowsMailFailure(t *testing.T) {
	e := newEnv(t)
	e.mail.err = errors.New("smtp relay down")
	e.seed(t, partition.User, "m@b.com", "old-password", models.StatusActive)

	assert.NoError(t, e.svc(partition.User).ForgotPassword(context.Background(), transport.EmailRequest{Email: "m@b.com"}))
	assert.Equal(t, 1, e.mail.count())
}

func TestResetPassword_Validation(t *testing.T) {
	e := newEnv(t)
	err := e.svc(partition.User).ResetPassword(context.Background(),
		transport.ResetPasswordRequest{Token: "t", NewPassword: "new-password", ConfirmPassword: "other-password"})
	ae := requireKind(t, err, apperr.KindValidation)
	assert.Equal(t, []string{"confirmPassword: values must match"}, ae.Fields)
}

func TestRegisterAndVerifyEmail(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := e.svc(partition.User)

	pr, err := svc.Register(ctx, transport.RegisterRequest{
		Email: "New@Citizen.example", Password: "password1", ConfirmPassword: "password1",
		Profile: map[string]any{"name": "Grace"},
	})
	require.NoError(t, err)
	assert.Equal(t, "new@citizen.example", pr.Email)
	assert.Equal(t, models.StatusPendingVerification, pr.Status)
	assert.Equal(t, models.RoleUser, pr.Role)

	// Pending users may already sign in.
	_, err = svc.Login(ctx, transport.LoginRequest{Email: "new@citizen.example", Password: "password1"})
	require.NoError(t, err)

	msg := e.mail.last(t)
	assert.Equal(t, mail.TemplateEmailVerification, msg.Template)
	assert.Contains(t, msg.Link, "/auth/user/verify-email?token=")
	tok := tokenFromLink(t, msg.Link)

	verified, err := svc.VerifyEmail(ctx, transport.VerifyEmailQuery{Token: tok})
	require.NoError(t, err)
	assert.True(t, verified.EmailVerified)
	assert.Equal(t, models.StatusActive, verified.Status)

	_, err = svc.VerifyEmail(ctx, transport.VerifyEmailQuery{Token: tok})
	ae := requireKind(t, err, apperr.KindInvalidToken)
	assert.Equal(t, apperr.MsgInvalidVerifyToken, ae.Message)

	// Already verified: no new mail.
	before := e.mail.count()
	require.NoError(t, svc.RequestEmailVerification(ctx, transport.EmailRequest{Email: "new@citizen.example"}))
	assert.Equal(t, before, e.mail.count())

	_, err = svc.Register(ctx, transport.RegisterRequest{Email: "new@citizen.example", Password: "password1", ConfirmPassword: "password1"})
	requireKind(t, err, apperr.KindConflict)
}

func TestRequestEmailVerification_ExpiresAfterADay(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := e.svc(partition.User)
	e.seed(t, partition.User, "slow@b.com", "password1", models.StatusPendingVerification)

	require.NoError(t, svc.RequestEmailVerification(ctx, transport.EmailRequest{Email: "slow@b.com"}))
	tok := tokenFromLink(t, e.mail.last(t).Link)

	e.clock.Advance(25 * time.Hour)
	_, err := svc.VerifyEmail(ctx, transport.VerifyEmailQuery{Token: tok})
	requireKind(t, err, apperr.KindInvalidToken)

	require.NoError(t, svc.RequestEmailVerification(ctx, transport.EmailRequest{Email: "ghost@b.com"}))
}

func TestRegister_OnlyWhereSelfRegistrationIsOpen(t *testing.T) {
	e := newEnv(t)
	_, err := e.svc(partition.Admin).Register(context.Background(),
		transport.RegisterRequest{Email: "x@gov.example", Password: "password1", ConfirmPassword: "password1"})
	requireKind(t, err, apperr.KindForbidden)
}

func TestChangeStatus(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	agent := e.seed(t, partition.Agent, "agent@gov.example", "password1", models.StatusActive)
	user := e.seed(t, partition.User, "user@gov.example", "password1", models.StatusActive)

	pr, err := e.svc(partition.Agent).ChangeStatus(ctx, agent.ID,
		transport.StatusChangeRequest{Status: models.StatusUnderReview, Reason: "audit"}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, pr.Status)

	_, err = e.svc(partition.Agent).Login(ctx, transport.LoginRequest{Email: "agent@gov.example", Password: "password1"})
	requireKind(t, err, apperr.KindAccountNotActive)

	_, err = e.svc(partition.User).ChangeStatus(ctx, user.ID,
		transport.StatusChangeRequest{Status: models.StatusUnderReview}, "admin-1")
	requireKind(t, err, apperr.KindValidation)

	_, err = e.svc(partition.User).ChangeStatus(ctx, uuid.NewString(),
		transport.StatusChangeRequest{Status: models.StatusSuspended}, "admin-1")
	requireKind(t, err, apperr.KindNotFound)

	var changed *activity.Event
	for i := range e.sink.events {
		if e.sink.events[i].Type == activity.StatusChanged {
			changed = &e.sink.events[i]
		}
	}
	require.NotNil(t, changed)
	assert.Equal(t, "ACTIVE", changed.Metadata["from"])
	assert.Equal(t, "UNDER_REVIEW", changed.Metadata["to"])
	assert.Equal(t, "admin-1", changed.Metadata["actor"])
}

func TestSeed(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	svc := e.svc(partition.Admin)

	pr, created, err := svc.Seed(ctx, "root@gov.example", "password1", models.RoleSuperadmin)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.RoleSuperadmin, pr.Role)

	again, created, err := svc.Seed(ctx, "root@gov.example", "other", models.RoleSuperadmin)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, pr.ID, again.ID)

	_, _, err = svc.Seed(ctx, "x@gov.example", "password1", models.RoleUser)
	requireKind(t, err, apperr.KindValidation)

	res, err := svc.Login(ctx, transport.LoginRequest{Email: "root@gov.example", Password: "password1"})
	require.NoError(t, err)
	claims, err := e.tokens.Verify(res.Tokens.AccessToken, tokens.Access, partition.Admin)
	require.NoError(t, err)
	assert.Equal(t, models.RoleSuperadmin, claims.Role)
}

func TestGate(t *testing.T) {
	user, _ := partition.DefaultRegistry().Get(partition.User)
	now := time.Now()
	future := now.Add(time.Minute)

	assert.NoError(t, Gate(user, &models.Principal{Status: models.StatusActive}, now))
	requireKind(t, Gate(user, &models.Principal{Status: models.StatusSuspended}, now), apperr.KindAccountNotActive)
	requireKind(t, Gate(user, &models.Principal{Status: models.StatusSuspended, LockedUntil: &future}, now), apperr.KindAccountLocked)
}
