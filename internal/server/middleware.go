package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/parkvoucher/internal/auditcontext"
	authdomain "github.com/smallbiznis/parkvoucher/internal/auth/domain"
)

const (
	contextSessionKey = "admin_session"
	csrfHeader        = "X-CSRF-Token"
	webhookKeyHeader  = "X-Webhook-Key"
)

// AdminRequired resolves the session cookie and rejects the request without one.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := s.resolveSession(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		c.Set(contextSessionKey, session)
		ctx := auditcontext.WithActor(c.Request.Context(), auditcontext.ActorTypeAdmin, session.Username)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// CSRFRequired checks the CSRF header on state-changing requests. It must run
// after AdminRequired.
func (s *Server) CSRFRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		session, ok := sessionFromContext(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if err := s.authsvc.VerifyCSRF(session, c.GetHeader(csrfHeader)); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func (s *Server) resolveSession(c *gin.Context) (*authdomain.Session, error) {
	token, ok := s.sessions.ReadToken(c)
	if !ok {
		return nil, ErrUnauthorized
	}

	session, err := s.authsvc.Authenticate(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, authdomain.ErrSessionExpired) || errors.Is(err, authdomain.ErrInvalidSession) {
			s.sessions.Clear(c)
		}
		return nil, err
	}
	return session, nil
}

func sessionFromContext(c *gin.Context) (*authdomain.Session, bool) {
	value, ok := c.Get(contextSessionKey)
	if !ok {
		return nil, false
	}
	session, ok := value.(*authdomain.Session)
	return session, ok && session != nil
}

func webhookKeyFromRequest(c *gin.Context, bodyKey string) string {
	if key := strings.TrimSpace(c.GetHeader(webhookKeyHeader)); key != "" {
		return key
	}
	return strings.TrimSpace(bodyKey)
}
