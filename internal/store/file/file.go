package file

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	auditdomain "github.com/smallbiznis/parkvoucher/internal/audit/domain"
	storedomain "github.com/smallbiznis/parkvoucher/internal/store/domain"
	voucherdomain "github.com/smallbiznis/parkvoucher/internal/voucher/domain"
)

const (
	VoucherFile = "vouchers.json"
	UsageFile   = "usages.jsonl"
	AuditFile   = "logs.jsonl"
)

// Store persists the voucher map as one JSON document and both logs as JSON
// lines. The map is replaced with write-then-rename so readers never observe
// a partial document.
type Store struct {
	dir string
	// mu only orders appends against reads of the same log file; mutation
	// ordering is the write queue's job.
	mu sync.Mutex
}

func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, storedomain.Wrap("init", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name)
}

func (s *Store) LoadVouchers(context.Context) (map[string]voucherdomain.Voucher, error) {
	raw, err := os.ReadFile(s.path(VoucherFile))
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]voucherdomain.Voucher{}, nil
	}
	if err != nil {
		return nil, storedomain.Wrap("load_vouchers", err)
	}
	out := map[string]voucherdomain.Voucher{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, storedomain.Wrap("load_vouchers", err)
	}
	return out, nil
}

func (s *Store) SaveVouchers(_ context.Context, vouchers map[string]voucherdomain.Voucher) error {
	if vouchers == nil {
		vouchers = map[string]voucherdomain.Voucher{}
	}
	raw, err := json.MarshalIndent(vouchers, "", "  ")
	if err != nil {
		return storedomain.Wrap("save_vouchers", err)
	}

	tmp, err := os.CreateTemp(s.dir, VoucherFile+".*.tmp")
	if err != nil {
		return storedomain.Wrap("save_vouchers", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return storedomain.Wrap("save_vouchers", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return storedomain.Wrap("save_vouchers", err)
	}
	if err := tmp.Close(); err != nil {
		return storedomain.Wrap("save_vouchers", err)
	}
	return storedomain.Wrap("save_vouchers", os.Rename(tmpName, s.path(VoucherFile)))
}

func (s *Store) AppendUsage(_ context.Context, record voucherdomain.UsageRecord) error {
	return storedomain.Wrap("append_usage", s.appendLine(UsageFile, record))
}

func (s *Store) ReadUsages(context.Context) ([]voucherdomain.UsageRecord, error) {
	out := []voucherdomain.UsageRecord{}
	err := s.readLines(UsageFile, func(line []byte) {
		var record voucherdomain.UsageRecord
		if json.Unmarshal(line, &record) == nil {
			out = append(out, record)
		}
	})
	if err != nil {
		return nil, storedomain.Wrap("read_usages", err)
	}
	return out, nil
}

func (s *Store) AppendAudit(_ context.Context, entry auditdomain.Entry) error {
	if entry.Meta == nil {
		entry.Meta = map[string]any{}
	}
	return storedomain.Wrap("append_audit", s.appendLine(AuditFile, entry))
}

func (s *Store) ReadAudit(context.Context) ([]auditdomain.Entry, error) {
	out := []auditdomain.Entry{}
	err := s.readLines(AuditFile, func(line []byte) {
		var entry auditdomain.Entry
		if json.Unmarshal(line, &entry) == nil {
			out = append(out, entry)
		}
	})
	if err != nil {
		return nil, storedomain.Wrap("read_audit", err)
	}
	return out, nil
}

func (s *Store) appendLine(name string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path(name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// readLines skips blank and undecodable lines, such as a torn final write.
func (s *Store) readLines(name string, fn func([]byte)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8<<20)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		fn(line)
	}
	return scanner.Err()
}

var _ storedomain.Store = (*Store)(nil)
