package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/parkvoucher/internal/auditcontext"
	voucherdomain "github.com/smallbiznis/parkvoucher/internal/voucher/domain"
)

type webhookUseRequest struct {
	Key       string `json:"key"`
	VoucherID string `json:"voucherId"`
}

type webhookUseResponse struct {
	Usage   voucherdomain.UsageRecord `json:"usage"`
	Voucher voucherView               `json:"voucher"`
}

// WebhookUse records one parking use on behalf of the property system. An
// empty voucherId consumes the oldest usable voucher.
func (s *Server) WebhookUse(c *gin.Context) {
	var req webhookUseRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.authsvc.VerifyWebhookKey(webhookKeyFromRequest(c, req.Key)); err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := auditcontext.WithActor(c.Request.Context(), auditcontext.ActorTypeWebhook, "property")
	result, err := s.voucherSvc.RecordWebhookUsage(ctx, strings.TrimSpace(req.VoucherID))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, webhookUseResponse{
		Usage:   result.Usage,
		Voucher: s.toVoucherView(result.Voucher),
	})
}
