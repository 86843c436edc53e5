package domain

import "time"

type Status string

const (
	StatusActive   Status = "active"
	StatusDisabled Status = "disabled"
)

// ParseStatus reports whether raw names a known status.
func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusActive:
		return StatusActive, true
	case StatusDisabled:
		return StatusDisabled, true
	default:
		return "", false
	}
}

type QRSource string

const (
	QRSourceAuto   QRSource = "auto"
	QRSourceManual QRSource = "manual"
)

type UsageSource string

const (
	UsageSourceAPI    UsageSource = "api"
	UsageSourceManual UsageSource = "manual"
)

// Label is the display name used in exports.
func (s UsageSource) Label() string {
	switch s {
	case UsageSourceAPI:
		return "物业API"
	case UsageSourceManual:
		return "手动录入"
	default:
		return string(s)
	}
}

// Voucher is a prepaid block of parking uses. Total never changes, and
// Remain stays within [0, Total].
type Voucher struct {
	ID         string     `json:"id"`
	Seq        int64      `json:"seq"`
	Total      int        `json:"total"`
	Remain     int        `json:"remain"`
	Status     Status     `json:"status"`
	Note       string     `json:"note"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	QRSource   QRSource   `json:"qrSource"`
	QRDataURL  string     `json:"qrDataUrl,omitempty"`
}

func (v Voucher) Used() int {
	return v.Total - v.Remain
}

func (v Voucher) Usable() bool {
	return v.Status == StatusActive && v.Remain > 0
}

// UsageRecord is one successful decrement.
type UsageRecord struct {
	ID        string      `json:"id"`
	VoucherID string      `json:"voucherId"`
	UsedAt    time.Time   `json:"usedAt"`
	Source    UsageSource `json:"source"`
}

type WarnLevel string

const (
	WarnLevelOK     WarnLevel = "ok"
	WarnLevelWarn   WarnLevel = "warn"
	WarnLevelSevere WarnLevel = "severe"
)

const LowBalanceText = "停车券次数即将用尽，请尽快购买！"

// Warning classifies remain against the configured thresholds.
func Warning(remain, warnThreshold, severeThreshold int) (WarnLevel, string) {
	switch {
	case remain <= severeThreshold:
		return WarnLevelSevere, LowBalanceText
	case remain <= warnThreshold:
		return WarnLevelWarn, LowBalanceText
	default:
		return WarnLevelOK, ""
	}
}
