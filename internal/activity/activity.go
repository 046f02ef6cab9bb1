// Package activity records what happened to a principal's session. Sinks are
// best effort: callers log a failed Record and move on.
package activity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	LoginSuccess               Type = "login_success"
	LoginFailure               Type = "login_failure"
	LoginBlocked               Type = "login_blocked"
	Refresh                    Type = "refresh"
	Logout                     Type = "logout"
	PasswordResetRequested     Type = "password_reset_requested"
	PasswordReset              Type = "password_reset"
	EmailVerificationRequested Type = "email_verification_requested"
	EmailVerified              Type = "email_verified"
	Registered                 Type = "registered"
	StatusChanged              Type = "status_changed"
)

type Event struct {
	ID          string            `json:"id"`
	Type        Type              `json:"type"`
	Partition   string            `json:"partition"`
	PrincipalID string            `json:"principalId,omitempty"`
	Email       string            `json:"email,omitempty"`
	ClientIP    string            `json:"clientIp,omitempty"`
	OccurredAt  time.Time         `json:"occurredAt"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

func NewEvent(t Type, ptn string, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       t,
		Partition:  ptn,
		OccurredAt: at.UTC(),
	}
}

type Sink interface {
	Record(ctx context.Context, e Event) error
}

type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Record(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
