// Package ratelimit throttles unauthenticated auth endpoints per client key.
package ratelimit

import (
	"context"
	"net/http"
	"time"
)

const DefaultMessage = "Too many attempts, please try again later"

type Decision struct {
	Allowed    bool
	Message    string
	StatusCode int
	RetryAfter time.Duration
}

type Limiter interface {
	Check(ctx context.Context, key string) (Decision, error)
}

func allow() Decision {
	return Decision{Allowed: true, StatusCode: http.StatusOK}
}

func deny(retry time.Duration) Decision {
	if retry < 0 {
		retry = 0
	}
	return Decision{
		Allowed:    false,
		Message:    DefaultMessage,
		StatusCode: http.StatusTooManyRequests,
		RetryAfter: retry,
	}
}
