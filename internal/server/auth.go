package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/parkvoucher/internal/auditcontext"
	authdomain "github.com/smallbiznis/parkvoucher/internal/auth/domain"
	"go.uber.org/zap"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	result, err := s.authsvc.Login(c.Request.Context(), authdomain.LoginRequest{
		Username:  strings.TrimSpace(req.Username),
		Password:  req.Password,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.sessions.Set(c, result.RawToken, result.ExpiresAt)
	c.JSON(http.StatusOK, result.Session)
}

// Logout succeeds even without a live session.
func (s *Server) Logout(c *gin.Context) {
	token, ok := s.sessions.ReadToken(c)
	if ok {
		ctx := c.Request.Context()
		if session, err := s.authsvc.Authenticate(ctx, token); err == nil {
			ctx = auditcontext.WithActor(ctx, auditcontext.ActorTypeAdmin, session.Username)
		}
		if err := s.authsvc.Logout(ctx, token); err != nil {
			s.log.Warn("logout failed", zap.Error(err))
		}
	}

	s.sessions.Clear(c)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) Session(c *gin.Context) {
	session, ok := sessionFromContext(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	c.JSON(http.StatusOK, session.View())
}
