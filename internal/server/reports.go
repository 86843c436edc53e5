package server

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	reportdomain "github.com/smallbiznis/parkvoucher/internal/report/domain"
)

const csvContentType = "text/csv; charset=utf-8"

type usageQuery struct {
	StartDate string `form:"startDate"`
	EndDate   string `form:"endDate"`
	VoucherID string `form:"voucherId"`
	Page      int    `form:"page"`
	PageSize  int    `form:"pageSize"`
}

func (q usageQuery) toDomain() reportdomain.UsageQuery {
	return reportdomain.UsageQuery{
		StartDate: strings.TrimSpace(q.StartDate),
		EndDate:   strings.TrimSpace(q.EndDate),
		VoucherID: strings.TrimSpace(q.VoucherID),
		Page:      q.Page,
		PageSize:  q.PageSize,
	}
}

func (s *Server) GetStats(c *gin.Context) {
	stats, err := s.reportSvc.Stats(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) ListUsages(c *gin.Context) {
	var query usageQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.reportSvc.ListUsages(c.Request.Context(), query.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) ExportUsages(c *gin.Context) {
	var query usageQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var buf bytes.Buffer
	if err := s.reportSvc.ExportUsagesCSV(c.Request.Context(), &buf, query.toDomain()); err != nil {
		AbortWithError(c, err)
		return
	}
	s.writeCSV(c, "usages", buf.Bytes())
}

func (s *Server) ExportVouchers(c *gin.Context) {
	var buf bytes.Buffer
	if err := s.reportSvc.ExportVouchersCSV(c.Request.Context(), &buf); err != nil {
		AbortWithError(c, err)
		return
	}
	s.writeCSV(c, "vouchers", buf.Bytes())
}

// writeCSV sends a buffered export so a failed read never leaves a partial file.
func (s *Server) writeCSV(c *gin.Context, name string, data []byte) {
	filename := fmt.Sprintf("%s-%s.csv", name, s.now().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, csvContentType, data)
}
