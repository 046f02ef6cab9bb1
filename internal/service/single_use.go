package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/govlink/govlink/internal/activity"
	"github.com/govlink/govlink/internal/apperr"
	"github.com/govlink/govlink/internal/hash"
	"github.com/govlink/govlink/internal/logging"
	"github.com/govlink/govlink/internal/mail"
	"github.com/govlink/govlink/internal/models"
	"github.com/govlink/govlink/internal/repo"
	"github.com/govlink/govlink/internal/transport"
)

// Password reset and email verification share one pattern: a random token
// goes out by mail, only its SHA-256 is stored, and redemption clears it.

// ForgotPassword never reveals whether the email exists. Store and mail
// failures after lookup are logged and swallowed for the same reason.
func (s *AuthService) ForgotPassword(ctx context.Context, req transport.EmailRequest) error {
	l := logging.FromContext(ctx).With("svc", "auth.forgot_password", "partition", s.p.Name)
	if err := req.Validate(); err != nil {
		return validation(err)
	}

	pr, err := s.store.FindByEmail(ctx, s.p, req.Email)
	if errors.Is(err, repo.ErrNotFound) {
		l.Info("reset_requested", "known", false)
		return nil
	}
	if err != nil {
		l.Error("reset_request_failed", "status", 500, "error", err)
		return apperr.Internal(err)
	}

	token, err := hash.NewToken(singleUseTokenBytes)
	if err != nil {
		l.Error("reset_token_failed", "error", err)
		return nil
	}
	if err := s.store.SetResetToken(ctx, s.p, pr.ID, hash.Sha256Hex(token), s.now().Add(s.resetTTL)); err != nil {
		l.Error("reset_token_store_failed", "principal_id", pr.ID, "error", err)
		return nil
	}

	s.send(ctx, l, mail.Message{
		To:        pr.Email,
		Template:  mail.TemplatePasswordReset,
		Partition: s.p.Name,
		Link:      s.link("/reset-password/"+s.p.Name, token),
	})
	s.record(ctx, l, activity.PasswordResetRequested, pr, pr.Email, nil)
	l.Info("reset_requested", "known", true, "principal_id", pr.ID)
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, req transport.ResetPasswordRequest) error {
	l := logging.FromContext(ctx).With("svc", "auth.reset_password", "partition", s.p.Name)
	if err := req.Validate(); err != nil {
		return validation(err)
	}

	pwHash, err := hash.HashPassword(req.NewPassword)
	if err != nil {
		l.Error("reset_failed", "status", 500, "error", err)
		return apperr.Internal(err)
	}

	pr, err := s.store.RedeemResetToken(ctx, s.p, hash.Sha256Hex(req.Token), pwHash, s.now())
	if errors.Is(err, repo.ErrNotFound) {
		l.Warn("reset_rejected", "status", 401)
		return apperr.InvalidToken(apperr.MsgInvalidResetToken, err)
	}
	if err != nil {
		l.Error("reset_failed", "status", 500, "error", err)
		return apperr.Internal(err)
	}

	s.record(ctx, l, activity.PasswordReset, pr, pr.Email, nil)
	l.Info("password_reset", "principal_id", pr.ID)
	return nil
}

func (s *AuthService) RequestEmailVerification(ctx context.Context, req transport.EmailRequest) error {
	l := logging.FromContext(ctx).With("svc", "auth.request_verification", "partition", s.p.Name)
	if err := req.Validate(); err != nil {
		return validation(err)
	}

	pr, err := s.store.FindByEmail(ctx, s.p, req.Email)
	if errors.Is(err, repo.ErrNotFound) {
		l.Info("verification_requested", "known", false)
		return nil
	}
	if err != nil {
		l.Error("verification_request_failed", "status", 500, "error", err)
		return apperr.Internal(err)
	}
	if pr.EmailVerified {
		l.Info("verification_requested", "known", true, "already_verified", true)
		return nil
	}

	s.sendVerification(ctx, l, pr)
	return nil
}

func (s *AuthService) sendVerification(ctx context.Context, l *slog.Logger, pr *models.Principal) {
	token, err := hash.NewToken(singleUseTokenBytes)
	if err != nil {
		l.Error("verify_token_failed", "error", err)
		return
	}
	if err := s.store.SetVerifyToken(ctx, s.p, pr.ID, hash.Sha256Hex(token), s.now().Add(s.verifyTTL)); err != nil {
		l.Error("verify_token_store_failed", "principal_id", pr.ID, "error", err)
		return
	}

	s.send(ctx, l, mail.Message{
		To:        pr.Email,
		Template:  mail.TemplateEmailVerification,
		Partition: s.p.Name,
		Link:      s.link("/auth/"+s.p.Name+"/verify-email", token),
	})
	s.record(ctx, l, activity.EmailVerificationRequested, pr, pr.Email, nil)
	l.Info("verification_requested", "known", true, "principal_id", pr.ID)
}

func (s *AuthService) VerifyEmail(ctx context.Context, req transport.VerifyEmailQuery) (*models.Principal, error) {
	l := logging.FromContext(ctx).With("svc", "auth.verify_email", "partition", s.p.Name)
	if err := req.Validate(); err != nil {
		return nil, validation(err)
	}

	pr, err := s.store.RedeemVerifyToken(ctx, s.p, hash.Sha256Hex(req.Token), s.now())
	if errors.Is(err, repo.ErrNotFound) {
		l.Warn("verification_rejected", "status", 401)
		return nil, apperr.InvalidToken(apperr.MsgInvalidVerifyToken, err)
	}
	if err != nil {
		l.Error("verification_failed", "status", 500, "error", err)
		return nil, apperr.Internal(err)
	}

	s.record(ctx, l, activity.EmailVerified, pr, pr.Email, nil)
	l.Info("email_verified", "principal_id", pr.ID, "account_status", pr.Status)
	return pr, nil
}

func (s *AuthService) send(ctx context.Context, l *slog.Logger, m mail.Message) {
	if s.mail == nil {
		l.Warn("mail_not_configured", "template", m.Template)
		return
	}
	if err := s.mail.Send(ctx, m); err != nil {
		l.Error("mail_send_failed", "template", m.Template, "error", err)
	}
}
