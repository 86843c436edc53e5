package memory

import (
	"context"
	"sync"

	auditdomain "github.com/smallbiznis/parkvoucher/internal/audit/domain"
	storedomain "github.com/smallbiznis/parkvoucher/internal/store/domain"
	voucherdomain "github.com/smallbiznis/parkvoucher/internal/voucher/domain"
)

// Store keeps everything in process memory. Values are copied in and out so
// callers never share state with the store.
type Store struct {
	mu       sync.RWMutex
	vouchers map[string]voucherdomain.Voucher
	usages   []voucherdomain.UsageRecord
	audit    []auditdomain.Entry
}

func New() *Store {
	return &Store{vouchers: map[string]voucherdomain.Voucher{}}
}

func (s *Store) LoadVouchers(context.Context) (map[string]voucherdomain.Voucher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]voucherdomain.Voucher, len(s.vouchers))
	for id, v := range s.vouchers {
		out[id] = cloneVoucher(v)
	}
	return out, nil
}

func (s *Store) SaveVouchers(_ context.Context, vouchers map[string]voucherdomain.Voucher) error {
	next := make(map[string]voucherdomain.Voucher, len(vouchers))
	for id, v := range vouchers {
		next[id] = cloneVoucher(v)
	}
	s.mu.Lock()
	s.vouchers = next
	s.mu.Unlock()
	return nil
}

func (s *Store) AppendUsage(_ context.Context, record voucherdomain.UsageRecord) error {
	s.mu.Lock()
	s.usages = append(s.usages, record)
	s.mu.Unlock()
	return nil
}

func (s *Store) ReadUsages(context.Context) ([]voucherdomain.UsageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]voucherdomain.UsageRecord, len(s.usages))
	copy(out, s.usages)
	return out, nil
}

func (s *Store) AppendAudit(_ context.Context, entry auditdomain.Entry) error {
	entry.Meta = cloneMeta(entry.Meta)
	s.mu.Lock()
	s.audit = append(s.audit, entry)
	s.mu.Unlock()
	return nil
}

func (s *Store) ReadAudit(context.Context) ([]auditdomain.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auditdomain.Entry, len(s.audit))
	for i, entry := range s.audit {
		entry.Meta = cloneMeta(entry.Meta)
		out[i] = entry
	}
	return out, nil
}

func cloneVoucher(v voucherdomain.Voucher) voucherdomain.Voucher {
	if v.LastUsedAt != nil {
		t := *v.LastUsedAt
		v.LastUsedAt = &t
	}
	return v
}

func cloneMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}

var _ storedomain.Store = (*Store)(nil)
