package domain

import (
	"context"
	"time"
)

// Session is an authenticated admin. Sessions live in memory only.
type Session struct {
	ID        string
	Username  string
	CSRFToken string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (s Session) View() SessionView {
	return SessionView{
		Username:  s.Username,
		CSRFToken: s.CSRFToken,
		ExpiresAt: s.ExpiresAt,
	}
}

type SessionView struct {
	Username  string    `json:"username"`
	CSRFToken string    `json:"csrfToken"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionStore keeps sessions keyed by their raw token. Get reports
// ErrSessionExpired for sessions past ExpiresAt and forgets them.
type SessionStore interface {
	Create(ctx context.Context, session Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	SweepExpired(ctx context.Context) (int, error)
}
