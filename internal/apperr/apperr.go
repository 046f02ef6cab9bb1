// Package apperr is the error taxonomy every handler answers with.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/govlink/govlink/internal/models"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindInvalidCredentials
	KindInvalidToken
	KindAccountNotActive
	KindAccountLocked
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimited
)

const (
	MsgInvalidCredentials  = "Invalid email or password"
	MsgInvalidAccessToken  = "Invalid or expired access token"
	MsgInvalidRefreshToken = "Invalid or expired refresh token"
	MsgInvalidResetToken   = "Invalid or expired reset token"
	MsgInvalidVerifyToken  = "Invalid or expired verification token"
	MsgInternal            = "Internal server error"
	MsgAccountLocked       = "Account is temporarily locked"
)

type Error struct {
	Kind    Kind
	Message string
	Fields  []string
	Status  models.Status
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidCredentials, KindInvalidToken:
		return http.StatusUnauthorized
	case KindAccountNotActive, KindAccountLocked, KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func Validation(msg string, fields ...string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

func InvalidCredentials() *Error {
	return &Error{Kind: KindInvalidCredentials, Message: MsgInvalidCredentials}
}

func InvalidToken(msg string, cause error) *Error {
	return &Error{Kind: KindInvalidToken, Message: msg, Err: cause}
}

func AccountNotActive(s models.Status) *Error {
	return &Error{Kind: KindAccountNotActive, Message: fmt.Sprintf("Account is %s", s), Status: s}
}

func AccountLocked() *Error {
	return &Error{Kind: KindAccountLocked, Message: MsgAccountLocked}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func RateLimited(msg string) *Error {
	return &Error{Kind: KindRateLimited, Message: msg}
}

func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: MsgInternal, Err: cause}
}

// As extracts an *Error from err; anything else is reported as internal.
func As(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}

func Is(err error, k Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == k
}
