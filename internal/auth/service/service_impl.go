package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	auditdomain "github.com/smallbiznis/parkvoucher/internal/audit/domain"
	"github.com/smallbiznis/parkvoucher/internal/auth/domain"
	"github.com/smallbiznis/parkvoucher/internal/auth/password"
	"github.com/smallbiznis/parkvoucher/internal/clock"
	"github.com/smallbiznis/parkvoucher/internal/config"
	obsmetrics "github.com/smallbiznis/parkvoucher/internal/observability/metrics"
	"github.com/smallbiznis/parkvoucher/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	sessionTokenBytes = 32
	defaultSessionTTL = 12 * time.Hour

	loginKeyPrefix = "login:"
)

const (
	reasonInvalidCredentials = "invalid_credentials"
	reasonRateLimited        = "rate_limited"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Config   config.Config
	Policy   *config.PolicyHolder
	Sessions domain.SessionStore
	Limiter  ratelimit.Limiter
	Verifier password.Verifier
	Audit    auditdomain.Service
	Clock    clock.Clock
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	policy     *config.PolicyHolder
	sessions   domain.SessionStore
	limiter    ratelimit.Limiter
	verifier   password.Verifier
	audit      auditdomain.Service
	clock      clock.Clock
	metrics    *obsmetrics.Metrics
	username   string
	webhookKey string
	sessionTTL time.Duration
}

func New(p Params) domain.Service {
	ttl := p.Config.SessionTTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &Service{
		log:        p.Log.Named("auth.service"),
		policy:     p.Policy,
		sessions:   p.Sessions,
		limiter:    p.Limiter,
		verifier:   p.Verifier,
		audit:      p.Audit,
		clock:      p.Clock,
		metrics:    p.Metrics,
		username:   strings.TrimSpace(p.Config.AdminUsername),
		webhookKey: strings.TrimSpace(p.Config.WebhookKey),
		sessionTTL: ttl,
	}
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	username := strings.TrimSpace(req.Username)
	policy := s.policy.Get()

	limitKey := loginKeyPrefix + strings.TrimSpace(req.IPAddress)
	limit, err := s.limiter.Allow(ctx, limitKey, policy.LoginMaxAttempts, policy.LoginWindow)
	if err != nil {
		// Fail open while the limiter backend is down.
		s.log.Warn("login rate limiter unavailable", zap.Error(err))
		limit = ratelimit.Result{Allowed: true}
	}
	if !limit.Allowed {
		s.recordLogin(ctx, username, false, reasonRateLimited)
		return nil, &domain.RateLimitedError{RetryAfter: limit.RetryAfter}
	}

	if !s.checkCredentials(username, req.Password) {
		s.recordLogin(ctx, username, false, reasonInvalidCredentials)
		return nil, domain.ErrInvalidCredentials
	}

	if _, err := s.sessions.SweepExpired(ctx); err != nil {
		s.log.Warn("failed to sweep expired sessions", zap.Error(err))
	}

	rawToken, err := newToken()
	if err != nil {
		return nil, err
	}
	csrfToken, err := newToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	session := domain.Session{
		ID:        rawToken,
		Username:  s.username,
		CSRFToken: csrfToken,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	if err := s.limiter.Reset(ctx, limitKey); err != nil {
		s.log.Warn("failed to reset login rate limit", zap.Error(err))
	}
	s.recordLogin(ctx, username, true, "")

	return &domain.LoginResult{
		Session:   session.View(),
		RawToken:  rawToken,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

func (s *Service) Logout(ctx context.Context, rawToken string) error {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil
	}

	username := ""
	if session, err := s.sessions.Get(ctx, token); err == nil {
		username = session.Username
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		return err
	}
	if err := s.audit.Log(ctx, auditdomain.TypeAdminLogout, "", map[string]any{"username": username}); err != nil {
		s.log.Error("failed to record logout", zap.Error(err))
	}
	return nil
}

func (s *Service) Authenticate(ctx context.Context, rawToken string) (*domain.Session, error) {
	token := strings.TrimSpace(rawToken)
	if token == "" {
		return nil, domain.ErrInvalidSession
	}
	return s.sessions.Get(ctx, token)
}

func (s *Service) VerifyCSRF(session *domain.Session, token string) error {
	if session == nil {
		return domain.ErrInvalidSession
	}
	token = strings.TrimSpace(token)
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(session.CSRFToken)) != 1 {
		return domain.ErrCSRFMismatch
	}
	return nil
}

func (s *Service) VerifyWebhookKey(key string) error {
	if s.webhookKey == "" {
		return domain.ErrWebhookDisabled
	}
	key = strings.TrimSpace(key)
	if key == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.webhookKey)) != 1 {
		return domain.ErrInvalidWebhookKey
	}
	return nil
}

func (s *Service) checkCredentials(username, candidate string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	// The hash runs even when the username is wrong.
	passOK := candidate != "" && s.verifier.Verify(candidate)
	return userOK && passOK && s.username != ""
}

func (s *Service) recordLogin(ctx context.Context, username string, success bool, reason string) {
	outcome := "success"
	if !success {
		outcome = reason
	}
	s.metrics.RecordLoginAttempt(ctx, outcome)

	meta := map[string]any{
		"username": username,
		"success":  success,
	}
	if reason != "" {
		meta["reason"] = reason
	}
	if err := s.audit.Log(ctx, auditdomain.TypeAdminLogin, "", meta); err != nil {
		s.log.Error("failed to record login attempt", zap.Error(err))
	}
}

func newToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
