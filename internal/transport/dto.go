// Package transport holds the typed request bodies. Each one validates
// itself before a service sees it.
package transport

import (
	"errors"
	"fmt"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/govlink/govlink/internal/models"
)

const (
	minPasswordLen = 8
	// bcrypt rejects longer input.
	maxPasswordBytes = 72
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type EmailRequest struct {
	Email string `json:"email"`
}

func (r EmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

type ResetPasswordRequest struct {
	Token           string `json:"token"`
	NewPassword     string `json:"newPassword"`
	ConfirmPassword string `json:"confirmPassword"`
}

func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.NewPassword, passwordRules...),
		validation.Field(&r.ConfirmPassword, validation.Required, validation.By(StringEquals(r.NewPassword))),
	)
}

type VerifyEmailQuery struct {
	Token string `query:"token"`
}

func (r VerifyEmailQuery) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

type RegisterRequest struct {
	Email           string         `json:"email"`
	Password        string         `json:"password"`
	ConfirmPassword string         `json:"confirmPassword"`
	Profile         map[string]any `json:"profile"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 254), is.Email),
		validation.Field(&r.Password, passwordRules...),
		validation.Field(&r.ConfirmPassword, validation.Required, validation.By(StringEquals(r.Password))),
	)
}

// StatusChangeRequest replaces free-form field patches: status is the only
// field an admin may move through this route.
type StatusChangeRequest struct {
	Status models.Status `json:"status"`
	Reason string        `json:"reason"`
}

func (r StatusChangeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Status, validation.Required, validation.In(
			models.StatusActive,
			models.StatusSuspended,
			models.StatusDeactivated,
			models.StatusPendingVerification,
			models.StatusUnderReview,
		)),
		validation.Field(&r.Reason, validation.Length(0, 500)),
	)
}

type ActivityQuery struct {
	Partition   string `query:"partition"`
	PrincipalID string `query:"principal"`
	Type        string `query:"type"`
	Page        int    `query:"page"`
	Size        int    `query:"size"`
}

var passwordRules = []validation.Rule{
	validation.Required,
	validation.Length(minPasswordLen, 0),
	validation.By(maxBytes(maxPasswordBytes)),
}

// maxBytes limits encoded length. Length counts runes, so multibyte input
// could pass it and still overflow.
func maxBytes(n int) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if len(s) > n {
			return fmt.Errorf("the length must be no more than %d bytes", n)
		}
		return nil
	}
}

func StringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FieldErrors flattens validation output into "field: message" lines,
// sorted so responses are stable.
func FieldErrors(err error) []string {
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for field, e := range verrs {
		out = append(out, fmt.Sprintf("%s: %s", field, e.Error()))
	}
	sort.Strings(out)
	return out
}
