package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/parkvoucher/internal/cache"
	voucherdomain "github.com/smallbiznis/parkvoucher/internal/voucher/domain"
	voucherservice "github.com/smallbiznis/parkvoucher/internal/voucher/service"
)

type warningView struct {
	Level voucherdomain.WarnLevel `json:"level"`
	Text  string                  `json:"text"`
}

type voucherView struct {
	voucherdomain.Voucher
	Used    int         `json:"used"`
	Warning warningView `json:"warning"`
}

func (s *Server) toVoucherView(v voucherdomain.Voucher) voucherView {
	policy := s.policy.Get()
	level, text := voucherdomain.Warning(v.Remain, policy.WarnThreshold, policy.SevereThreshold)
	v.QRDataURL = ""
	return voucherView{
		Voucher: v,
		Used:    v.Used(),
		Warning: warningView{Level: level, Text: text},
	}
}

func (s *Server) toVoucherViews(items []voucherdomain.Voucher) []voucherView {
	views := make([]voucherView, 0, len(items))
	for _, item := range items {
		views = append(views, s.toVoucherView(item))
	}
	return views
}

// baseURL prefers the configured public URL and falls back to the request host.
func (s *Server) baseURL(c *gin.Context) string {
	if s.cfg.PublicBaseURL != "" {
		return s.cfg.PublicBaseURL
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if forwarded := strings.TrimSpace(c.GetHeader("X-Forwarded-Proto")); forwarded != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(forwarded, ",")[0]))
	}
	host := c.Request.Host
	if forwarded := strings.TrimSpace(c.GetHeader("X-Forwarded-Host")); forwarded != "" {
		host = strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return scheme + "://" + host
}

func isMultipart(c *gin.Context) bool {
	return c.ContentType() == "multipart/form-data"
}

func statusOK(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// qrDataURL renders content as a QR image, reusing recent renders. Uploaded
// overrides bypass the cache.
func (s *Server) qrDataURL(v voucherdomain.Voucher, content string) (string, error) {
	manual := v.QRSource == voucherdomain.QRSourceManual && v.QRDataURL != ""
	key := cache.Key(content)
	if !manual {
		if cached, ok := s.qrCache.Get(key); ok {
			return cached, nil
		}
	}

	rendered, err := voucherservice.QRDataURL(v, content)
	if err != nil {
		return "", err
	}
	if !manual {
		s.qrCache.Set(key, rendered)
	}
	return rendered, nil
}
