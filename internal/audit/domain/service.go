package domain

import (
	"context"
	"errors"

	"github.com/smallbiznis/parkvoucher/pkg/db/pagination"
)

type ListRequest struct {
	Type      string
	VoucherID string
	Page      int
	PageSize  int
}

type ListResponse struct {
	Items      []Entry         `json:"items"`
	Pagination pagination.Page `json:"pagination"`
}

type Service interface {
	// Append writes an entry directly. Callers must already hold the write queue.
	Append(ctx context.Context, typ Type, voucherID string, meta map[string]any) (Entry, error)
	// Log enqueues an entry as its own write-queue task.
	Log(ctx context.Context, typ Type, voucherID string, meta map[string]any) error
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	ForVoucher(ctx context.Context, voucherID string) ([]Entry, error)
}

var ErrInvalidType = errors.New("invalid_audit_type")
