package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/parkvoucher/internal/audit/domain"
	"github.com/smallbiznis/parkvoucher/internal/qrcode"
	voucherdomain "github.com/smallbiznis/parkvoucher/internal/voucher/domain"
	voucherservice "github.com/smallbiznis/parkvoucher/internal/voucher/service"
	"github.com/smallbiznis/parkvoucher/pkg/db/pagination"
)

type createVoucherRequest struct {
	Total     flexInt `json:"total"`
	Note      string  `json:"note"`
	QRDataURL string  `json:"qrDataUrl"`
}

type updateVoucherRequest struct {
	Note   *string `json:"note"`
	Status *string `json:"status"`
	Remain flexInt `json:"remain"`
}

type uploadQRRequest struct {
	QRDataURL string `json:"qrDataUrl"`
}

type createVoucherResponse struct {
	Voucher       voucherView `json:"voucher"`
	RedeemURL     string      `json:"redeemUrl"`
	RedeemFullURL string      `json:"redeemFullUrl"`
	QRDataURL     string      `json:"qrDataUrl"`
}

type voucherDetailResponse struct {
	Voucher       voucherView         `json:"voucher"`
	Logs          []auditdomain.Entry `json:"logs"`
	QRDataURL     string              `json:"qrDataUrl"`
	RedeemURL     string              `json:"redeemUrl"`
	RedeemFullURL string              `json:"redeemFullUrl"`
}

type voucherListResponse struct {
	Items      []voucherView         `json:"items"`
	Pagination pagination.Page       `json:"pagination"`
	Summary    voucherdomain.Summary `json:"summary"`
}

type useVoucherResponse struct {
	Usage   voucherdomain.UsageRecord `json:"usage"`
	Voucher voucherView               `json:"voucher"`
	Remain  int                       `json:"remain"`
}

func (s *Server) CreateVoucher(c *gin.Context) {
	req, err := s.bindCreateVoucher(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	voucher, err := s.voucherSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	fullURL := voucherservice.RedeemURL(s.baseURL(c), voucher.ID)
	qr, err := s.qrDataURL(*voucher, fullURL)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, createVoucherResponse{
		Voucher:       s.toVoucherView(*voucher),
		RedeemURL:     voucherservice.RedeemURL("", voucher.ID),
		RedeemFullURL: fullURL,
		QRDataURL:     qr,
	})
}

func (s *Server) bindCreateVoucher(c *gin.Context) (voucherdomain.CreateRequest, error) {
	if isMultipart(c) {
		total, err := strconv.Atoi(strings.TrimSpace(c.PostForm("total")))
		if err != nil {
			return voucherdomain.CreateRequest{}, voucherdomain.ErrInvalidTotal
		}
		qr, err := s.readQRImage(c)
		if err != nil {
			return voucherdomain.CreateRequest{}, err
		}
		return voucherdomain.CreateRequest{
			Total:     total,
			Note:      c.PostForm("note"),
			QRDataURL: qr,
		}, nil
	}

	var req createVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return voucherdomain.CreateRequest{}, invalidRequestError()
	}
	return voucherdomain.CreateRequest{
		Total:     req.Total.Value,
		Note:      req.Note,
		QRDataURL: req.QRDataURL,
	}, nil
}

// readQRImage returns the uploaded qrImage part as a data URL, or "" when the
// form carries none.
func (s *Server) readQRImage(c *gin.Context) (string, error) {
	header, err := c.FormFile("qrImage")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", invalidRequestError()
	}

	maxBytes := s.policy.Get().MaxQRBytes
	if header.Size > int64(maxBytes) {
		return "", voucherdomain.ErrInvalidQRImage
	}

	file, err := header.Open()
	if err != nil {
		return "", invalidRequestError()
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, int64(maxBytes)+1))
	if err != nil {
		return "", invalidRequestError()
	}
	if len(data) == 0 || len(data) > maxBytes {
		return "", voucherdomain.ErrInvalidQRImage
	}

	// the part's Content-Type is client supplied; the bytes decide
	return qrcode.EncodeDataURL(http.DetectContentType(data), data), nil
}

func (s *Server) ListVouchers(c *gin.Context) {
	page, err := bindPagination(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.voucherSvc.List(c.Request.Context(), voucherdomain.ListRequest{
		Q:        strings.TrimSpace(c.Query("q")),
		Status:   strings.TrimSpace(c.Query("status")),
		Page:     page.Page,
		PageSize: page.PageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, voucherListResponse{
		Items:      s.toVoucherViews(resp.Items),
		Pagination: resp.Pagination,
		Summary:    resp.Summary,
	})
}

func (s *Server) GetVoucher(c *gin.Context) {
	detail, err := s.voucherSvc.GetDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	fullURL := voucherservice.RedeemURL(s.baseURL(c), detail.Voucher.ID)
	qr, err := s.qrDataURL(detail.Voucher, fullURL)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, voucherDetailResponse{
		Voucher:       s.toVoucherView(detail.Voucher),
		Logs:          detail.Logs,
		QRDataURL:     qr,
		RedeemURL:     voucherservice.RedeemURL("", detail.Voucher.ID),
		RedeemFullURL: fullURL,
	})
}

func (s *Server) UpdateVoucher(c *gin.Context) {
	var req updateVoucherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	voucher, err := s.voucherSvc.Update(c.Request.Context(), c.Param("id"), voucherdomain.UpdateRequest{
		Note:   req.Note,
		Status: req.Status,
		Remain: req.Remain.Ptr(),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"voucher": s.toVoucherView(*voucher)})
}

func (s *Server) DisableVoucher(c *gin.Context) {
	voucher, err := s.voucherSvc.Disable(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"voucher": s.toVoucherView(*voucher)})
}

func (s *Server) UseVoucher(c *gin.Context) {
	result, err := s.voucherSvc.RecordUsage(c.Request.Context(), voucherdomain.UsageRequest{
		VoucherID: c.Param("id"),
		Source:    voucherdomain.UsageSourceManual,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, useVoucherResponse{
		Usage:   result.Usage,
		Voucher: s.toVoucherView(result.Voucher),
		Remain:  result.Voucher.Remain,
	})
}

func (s *Server) UploadVoucherQR(c *gin.Context) {
	var dataURL string
	if isMultipart(c) {
		qr, err := s.readQRImage(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		dataURL = qr
	} else {
		var req uploadQRRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		dataURL = strings.TrimSpace(req.QRDataURL)
	}
	if dataURL == "" {
		AbortWithError(c, voucherdomain.ErrInvalidQRImage)
		return
	}

	voucher, err := s.voucherSvc.UploadQR(c.Request.Context(), c.Param("id"), dataURL)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"voucher":   s.toVoucherView(*voucher),
		"qrDataUrl": voucher.QRDataURL,
	})
}
