package domain

import (
	"context"
	"errors"
	"fmt"

	auditdomain "github.com/smallbiznis/parkvoucher/internal/audit/domain"
	voucherdomain "github.com/smallbiznis/parkvoucher/internal/voucher/domain"
)

// Store is the durable backing for vouchers and the two append-only logs.
// It holds no cache: every call reads or writes the backing medium. Mutating
// calls are only made from inside the write queue.
type Store interface {
	LoadVouchers(ctx context.Context) (map[string]voucherdomain.Voucher, error)
	// SaveVouchers replaces the voucher map atomically.
	SaveVouchers(ctx context.Context, vouchers map[string]voucherdomain.Voucher) error
	AppendUsage(ctx context.Context, record voucherdomain.UsageRecord) error
	ReadUsages(ctx context.Context) ([]voucherdomain.UsageRecord, error)
	AppendAudit(ctx context.Context, entry auditdomain.Entry) error
	ReadAudit(ctx context.Context) ([]auditdomain.Entry, error)
}

var ErrStorage = errors.New("storage_error")

// Error wraps a backend failure. It matches ErrStorage.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrStorage
}

// Wrap returns nil for nil errors.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Op: op, Err: err}
}

func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}
