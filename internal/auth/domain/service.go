package domain

import (
	"context"
	"time"
)

type LoginRequest struct {
	Username  string
	Password  string
	IPAddress string
	UserAgent string
}

type LoginResult struct {
	Session   SessionView
	RawToken  string
	ExpiresAt time.Time
}

type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, rawToken string) error
	Authenticate(ctx context.Context, rawToken string) (*Session, error)
	VerifyCSRF(session *Session, token string) error
	VerifyWebhookKey(key string) error
}
