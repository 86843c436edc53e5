package domain

import (
	"context"
	"errors"
	"io"

	voucherdomain "github.com/smallbiznis/parkvoucher/internal/voucher/domain"
	"github.com/smallbiznis/parkvoucher/pkg/db/pagination"
)

const RecentDays = 7

var ErrInvalidDate = errors.New("invalid_date")

type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type Stats struct {
	TotalVouchers    int        `json:"totalVouchers"`
	ActiveVouchers   int        `json:"activeVouchers"`
	DisabledVouchers int        `json:"disabledVouchers"`
	TotalIssued      int        `json:"totalIssued"`
	TotalUsed        int        `json:"totalUsed"`
	TotalRemain      int        `json:"totalRemain"`
	TodayCreated     int        `json:"todayCreated"`
	TodayUsed        int        `json:"todayUsed"`
	ThisMonthUsed    int        `json:"thisMonthUsed"`
	ThisYearUsed     int        `json:"thisYearUsed"`
	RecentDays       []DayCount `json:"recentDays"`
}

// UsageQuery dates are YYYY-MM-DD in the configured zone or RFC 3339.
type UsageQuery struct {
	StartDate string
	EndDate   string
	VoucherID string
	Page      int
	PageSize  int
}

type UsageSummary struct {
	TotalUsages int `json:"totalUsages"`
}

type UsageListResponse struct {
	Items      []voucherdomain.UsageRecord `json:"items"`
	Pagination pagination.Page             `json:"pagination"`
	Summary    UsageSummary                `json:"summary"`
}

type Service interface {
	Stats(ctx context.Context) (*Stats, error)
	ListUsages(ctx context.Context, query UsageQuery) (*UsageListResponse, error)
	ExportVouchersCSV(ctx context.Context, w io.Writer) error
	ExportUsagesCSV(ctx context.Context, w io.Writer, query UsageQuery) error
}
