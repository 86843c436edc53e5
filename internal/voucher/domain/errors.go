package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTotal   = errors.New("invalid_total")
	ErrInvalidRemain  = errors.New("invalid_remain")
	ErrInvalidSource  = errors.New("invalid_source")
	ErrInvalidQRImage = errors.New("invalid_qr_image")
	ErrNotFound       = errors.New("voucher_not_found")
	ErrIDExhausted    = errors.New("voucher_id_exhausted")
	ErrUsageRejected  = errors.New("usage_rejected")
)

type RejectReason string

const (
	RejectNotFound  RejectReason = "not_found"
	RejectDisabled  RejectReason = "disabled"
	RejectExhausted RejectReason = "exhausted"
)

// UsageRejectedError is returned when a use fails its preconditions. No state
// changes and nothing is logged when it is returned.
type UsageRejectedError struct {
	VoucherID string
	Reason    RejectReason
}

func (e *UsageRejectedError) Error() string {
	if e.VoucherID == "" {
		return fmt.Sprintf("usage rejected: %s", e.Reason)
	}
	return fmt.Sprintf("usage rejected for %s: %s", e.VoucherID, e.Reason)
}

func (e *UsageRejectedError) Is(target error) bool {
	return target == ErrUsageRejected
}

// Message is the operator-facing explanation of the rejection.
func (e *UsageRejectedError) Message() string {
	switch e.Reason {
	case RejectNotFound:
		return "停车券不存在"
	case RejectDisabled:
		return "停车券已停用"
	case RejectExhausted:
		return "停车券次数已用完"
	default:
		return "停车券不可用"
	}
}

// IsValidation reports errors caused by caller input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidTotal) ||
		errors.Is(err, ErrInvalidRemain) ||
		errors.Is(err, ErrInvalidSource) ||
		errors.Is(err, ErrInvalidQRImage)
}

// IsExpected reports outcomes that are part of normal operation and should not
// be logged as system failures.
func IsExpected(err error) bool {
	return errors.Is(err, ErrUsageRejected) ||
		errors.Is(err, ErrNotFound) ||
		IsValidation(err)
}
