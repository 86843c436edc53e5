package domain

import (
	"errors"
	"time"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidSession     = errors.New("invalid session")
	ErrSessionExpired     = errors.New("session expired")
	ErrCSRFMismatch       = errors.New("csrf token mismatch")
	ErrRateLimited        = errors.New("too many login attempts")
	ErrInvalidWebhookKey  = errors.New("invalid webhook key")
	ErrWebhookDisabled    = errors.New("webhook disabled")
)

// RateLimitedError carries how long the caller should wait. It matches
// ErrRateLimited.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return ErrRateLimited.Error()
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
