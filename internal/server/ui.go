package server

import (
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	adminPage  = "/admin.html"
	redeemPage = "/redeem.html"
)

// registerUIRoutes guards the redeem page. Every other asset is served by the
// fallback handler.
func (s *Server) registerUIRoutes() {
	s.engine.GET(redeemPage, func(c *gin.Context) {
		if _, err := s.resolveSession(c); err != nil {
			c.Redirect(http.StatusFound, adminPage+"?next="+url.QueryEscape(c.Request.URL.RequestURI()))
			return
		}
		if !fileExists(s.cfg.PublicDir, redeemPage) {
			AbortWithError(c, ErrNotFound)
			return
		}
		c.File(filepath.Join(s.cfg.PublicDir, redeemPage))
	})
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api/") || c.Request.Method != http.MethodGet {
			AbortWithError(c, ErrNotFound)
			return
		}

		if path == "/" {
			path = adminPage
		}
		if fileExists(s.cfg.PublicDir, path) {
			c.File(filepath.Join(s.cfg.PublicDir, filepath.Clean(path)))
			return
		}

		AbortWithError(c, ErrNotFound)
	})
}

func fileExists(publicDir, reqPath string) bool {
	if strings.TrimSpace(publicDir) == "" {
		return false
	}
	clean := filepath.Clean("/" + reqPath)

	// prevent path traversal
	if clean == "." || clean == "/" || strings.Contains(clean, "..") {
		return false
	}

	fullPath := filepath.Join(publicDir, clean)

	info, err := os.Stat(fullPath)
	if err != nil {
		return false
	}

	return !info.IsDir()
}
