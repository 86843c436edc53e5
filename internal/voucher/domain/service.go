package domain

import (
	"context"

	auditdomain "github.com/smallbiznis/parkvoucher/internal/audit/domain"
	"github.com/smallbiznis/parkvoucher/pkg/db/pagination"
)

type CreateRequest struct {
	Total     int
	Note      string
	QRDataURL string
}

// UpdateRequest applies only the fields that are set.
type UpdateRequest struct {
	Note   *string
	Status *string
	Remain *int
}

type ListRequest struct {
	Q        string
	Status   string
	Page     int
	PageSize int
}

type Summary struct {
	TotalIssued int `json:"totalIssued"`
	TotalUsed   int `json:"totalUsed"`
	TotalRemain int `json:"totalRemain"`
}

type ListResponse struct {
	Items      []Voucher       `json:"items"`
	Pagination pagination.Page `json:"pagination"`
	Summary    Summary         `json:"summary"`
}

type UsageRequest struct {
	VoucherID string
	Source    UsageSource
	// AuditType overrides the default WEBHOOK_USE / MANUAL_USE entry type.
	AuditType auditdomain.Type
}

type UsageResult struct {
	Usage   UsageRecord `json:"usage"`
	Voucher Voucher     `json:"voucher"`
}

type Detail struct {
	Voucher Voucher             `json:"voucher"`
	Logs    []auditdomain.Entry `json:"logs"`
}

type Service interface {
	Create(ctx context.Context, req CreateRequest) (*Voucher, error)
	Get(ctx context.Context, id string) (*Voucher, error)
	GetDetail(ctx context.Context, id string) (*Detail, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
	Update(ctx context.Context, id string, req UpdateRequest) (*Voucher, error)
	Disable(ctx context.Context, id string) (*Voucher, error)
	UploadQR(ctx context.Context, id, dataURL string) (*Voucher, error)
	RecordDisplay(ctx context.Context, id string) error
	RecordUsage(ctx context.Context, req UsageRequest) (*UsageResult, error)
	// RecordWebhookUsage picks the oldest usable voucher when voucherID is empty.
	RecordWebhookUsage(ctx context.Context, voucherID string) (*UsageResult, error)
}
