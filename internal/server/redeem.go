package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/parkvoucher/internal/audit/domain"
	voucherdomain "github.com/smallbiznis/parkvoucher/internal/voucher/domain"
)

type redeemResponse struct {
	Voucher   voucherView                `json:"voucher"`
	Warning   warningView                `json:"warning"`
	QRDataURL string                     `json:"qrDataUrl"`
	Usage     *voucherdomain.UsageRecord `json:"usage,omitempty"`
}

// The redeem page shows the bare voucher id as a QR code for the gate scanner.
func (s *Server) redeemView(voucher voucherdomain.Voucher) (redeemResponse, error) {
	qr, err := s.qrDataURL(voucher, voucher.ID)
	if err != nil {
		return redeemResponse{}, err
	}
	view := s.toVoucherView(voucher)
	return redeemResponse{
		Voucher:   view,
		Warning:   view.Warning,
		QRDataURL: qr,
	}, nil
}

func (s *Server) GetRedeemVoucher(c *gin.Context) {
	voucher, err := s.voucherSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.redeemView(*voucher)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) DisplayVoucher(c *gin.Context) {
	if err := s.voucherSvc.RecordDisplay(c.Request.Context(), c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}
	statusOK(c)
}

func (s *Server) ConfirmVoucher(c *gin.Context) {
	result, err := s.voucherSvc.RecordUsage(c.Request.Context(), voucherdomain.UsageRequest{
		VoucherID: c.Param("id"),
		Source:    voucherdomain.UsageSourceManual,
		AuditType: auditdomain.TypeConfirm,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.redeemView(result.Voucher)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	resp.Usage = &result.Usage
	c.JSON(http.StatusOK, resp)
}
