package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/parkvoucher/internal/audit/domain"
)

type listAuditLogsQuery struct {
	Type      string `form:"type"`
	VoucherID string `form:"voucherId"`
	Page      int    `form:"page"`
	PageSize  int    `form:"pageSize"`
}

func (s *Server) ListAuditLogs(c *gin.Context) {
	var query listAuditLogsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	typ := strings.TrimSpace(query.Type)
	if typ != "" && !auditdomain.Type(typ).Valid() {
		AbortWithError(c, newValidationError("type", "invalid_type", "未知的日志类型"))
		return
	}

	resp, err := s.auditSvc.List(c.Request.Context(), auditdomain.ListRequest{
		Type:      typ,
		VoucherID: strings.TrimSpace(query.VoucherID),
		Page:      query.Page,
		PageSize:  query.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
