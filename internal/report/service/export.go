package service

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/smallbiznis/parkvoucher/internal/report/domain"
	voucherdomain "github.com/smallbiznis/parkvoucher/internal/voucher/domain"
)

const (
	utf8BOM          = "\ufeff"
	exportTimeLayout = "2006-01-02 15:04:05"
)

var (
	voucherCSVHeader = []string{"记录号", "购买次数", "已用次数", "剩余次数", "状态", "备注", "创建时间", "最后使用时间"}
	usageCSVHeader   = []string{"使用ID", "记录号", "使用时间", "来源"}
)

func statusLabel(status voucherdomain.Status) string {
	switch status {
	case voucherdomain.StatusActive:
		return "有效"
	case voucherdomain.StatusDisabled:
		return "已停用"
	default:
		return string(status)
	}
}

func (s *Service) ExportVouchersCSV(ctx context.Context, w io.Writer) error {
	vouchers, err := s.store.LoadVouchers(ctx)
	if err != nil {
		return err
	}
	items := make([]voucherdomain.Voucher, 0, len(vouchers))
	for _, voucher := range vouchers {
		items = append(items, voucher)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].Seq > items[j].Seq
	})

	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(voucherCSVHeader); err != nil {
		return err
	}
	for _, voucher := range items {
		lastUsed := ""
		if voucher.LastUsedAt != nil {
			lastUsed = s.formatTime(*voucher.LastUsedAt)
		}
		if err := cw.Write([]string{
			voucher.ID,
			strconv.Itoa(voucher.Total),
			strconv.Itoa(voucher.Used()),
			strconv.Itoa(voucher.Remain),
			statusLabel(voucher.Status),
			voucher.Note,
			s.formatTime(voucher.CreatedAt),
			lastUsed,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *Service) ExportUsagesCSV(ctx context.Context, w io.Writer, query domain.UsageQuery) error {
	usages, err := s.filterUsages(ctx, query)
	if err != nil {
		return err
	}

	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(usageCSVHeader); err != nil {
		return err
	}
	for _, usage := range usages {
		if err := cw.Write([]string{
			usage.ID,
			usage.VoucherID,
			s.formatTime(usage.UsedAt),
			usage.Source.Label(),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (s *Service) formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(s.location).Format(exportTimeLayout)
}
