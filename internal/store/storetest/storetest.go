// Package storetest holds the behaviour every store backend must share.
package storetest

import (
	"context"
	"testing"
	"time"

	auditdomain "github.com/smallbiznis/parkvoucher/internal/audit/domain"
	storedomain "github.com/smallbiznis/parkvoucher/internal/store/domain"
	voucherdomain "github.com/smallbiznis/parkvoucher/internal/voucher/domain"
)

// Run exercises a fresh store returned by newStore.
func Run(t *testing.T, newStore func(t *testing.T) storedomain.Store) {
	t.Helper()

	t.Run("empty_start", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		vouchers, err := s.LoadVouchers(ctx)
		if err != nil {
			t.Fatalf("load vouchers: %v", err)
		}
		if len(vouchers) != 0 {
			t.Fatalf("expected no vouchers, got %d", len(vouchers))
		}
		usages, err := s.ReadUsages(ctx)
		if err != nil {
			t.Fatalf("read usages: %v", err)
		}
		if len(usages) != 0 {
			t.Fatalf("expected no usages, got %d", len(usages))
		}
		entries, err := s.ReadAudit(ctx)
		if err != nil {
			t.Fatalf("read audit: %v", err)
		}
		if len(entries) != 0 {
			t.Fatalf("expected no audit entries, got %d", len(entries))
		}
	})

	t.Run("save_replaces_map", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
		used := now.Add(time.Hour)

		first := map[string]voucherdomain.Voucher{
			"VCH_20240501_AAAAAA": sampleVoucher("VCH_20240501_AAAAAA", 1, now, nil),
			"VCH_20240501_BBBBBB": sampleVoucher("VCH_20240501_BBBBBB", 2, now, nil),
		}
		if err := s.SaveVouchers(ctx, first); err != nil {
			t.Fatalf("save vouchers: %v", err)
		}

		updated := sampleVoucher("VCH_20240501_AAAAAA", 1, now, &used)
		updated.Remain = 4
		updated.Status = voucherdomain.StatusDisabled
		second := map[string]voucherdomain.Voucher{updated.ID: updated}
		if err := s.SaveVouchers(ctx, second); err != nil {
			t.Fatalf("save vouchers again: %v", err)
		}

		loaded, err := s.LoadVouchers(ctx)
		if err != nil {
			t.Fatalf("load vouchers: %v", err)
		}
		if len(loaded) != 1 {
			t.Fatalf("expected 1 voucher after replace, got %d", len(loaded))
		}
		got := loaded[updated.ID]
		if got.Remain != 4 || got.Status != voucherdomain.StatusDisabled {
			t.Fatalf("unexpected voucher state: %+v", got)
		}
		if got.LastUsedAt == nil || !got.LastUsedAt.Equal(used) {
			t.Fatalf("expected lastUsedAt %v, got %v", used, got.LastUsedAt)
		}
		if !got.CreatedAt.Equal(now) || got.Seq != 1 || got.Note != "lobby" {
			t.Fatalf("unexpected persisted fields: %+v", got)
		}
	})

	t.Run("logs_keep_append_order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

		for i, id := range []string{"USE_20240501_000003", "USE_20240501_000001", "USE_20240501_000002"} {
			record := voucherdomain.UsageRecord{
				ID:        id,
				VoucherID: "VCH_20240501_AAAAAA",
				UsedAt:    base.Add(time.Duration(i) * time.Minute),
				Source:    voucherdomain.UsageSourceAPI,
			}
			if err := s.AppendUsage(ctx, record); err != nil {
				t.Fatalf("append usage: %v", err)
			}
		}
		usages, err := s.ReadUsages(ctx)
		if err != nil {
			t.Fatalf("read usages: %v", err)
		}
		if len(usages) != 3 || usages[0].ID != "USE_20240501_000003" || usages[2].ID != "USE_20240501_000002" {
			t.Fatalf("unexpected usage order: %+v", usages)
		}

		entry := auditdomain.Entry{
			ID:        "01HX0000000000000000000000",
			TS:        base,
			Type:      auditdomain.TypeAdjust,
			VoucherID: "VCH_20240501_AAAAAA",
			IP:        "127.0.0.1",
			UA:        "test",
			Meta:      map[string]any{"oldRemain": 5, "newRemain": 3},
		}
		if err := s.AppendAudit(ctx, entry); err != nil {
			t.Fatalf("append audit: %v", err)
		}
		entries, err := s.ReadAudit(ctx)
		if err != nil {
			t.Fatalf("read audit: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("expected 1 audit entry, got %d", len(entries))
		}
		got := entries[0]
		if got.Type != auditdomain.TypeAdjust || got.IP != "127.0.0.1" || got.VoucherID != entry.VoucherID {
			t.Fatalf("unexpected audit entry: %+v", got)
		}
		if toInt(got.Meta["newRemain"]) != 3 {
			t.Fatalf("expected newRemain 3, got %v", got.Meta["newRemain"])
		}
	})
}

func sampleVoucher(id string, seq int64, createdAt time.Time, lastUsed *time.Time) voucherdomain.Voucher {
	return voucherdomain.Voucher{
		ID:         id,
		Seq:        seq,
		Total:      10,
		Remain:     10,
		Status:     voucherdomain.StatusActive,
		Note:       "lobby",
		CreatedAt:  createdAt,
		LastUsedAt: lastUsed,
		QRSource:   voucherdomain.QRSourceAuto,
	}
}

// toInt normalizes numbers that may have round-tripped through JSON.
func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return -1
	}
}
