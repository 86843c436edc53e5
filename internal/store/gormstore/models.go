package gormstore

import (
	"time"

	auditdomain "github.com/smallbiznis/parkvoucher/internal/audit/domain"
	voucherdomain "github.com/smallbiznis/parkvoucher/internal/voucher/domain"
	"gorm.io/datatypes"
)

type voucherRow struct {
	ID         string `gorm:"primaryKey;size:32"`
	Seq        int64  `gorm:"index"`
	Total      int    `gorm:"not null"`
	Remain     int    `gorm:"not null"`
	Status     string `gorm:"size:16;not null"`
	Note       string `gorm:"size:1024"`
	CreatedAt  time.Time
	LastUsedAt *time.Time
	QRSource   string `gorm:"column:qr_source;size:16"`
	QRDataURL  string `gorm:"column:qr_data_url;size:16777215"`
}

func (voucherRow) TableName() string { return "vouchers" }

type usageRow struct {
	Pos       int64     `gorm:"primaryKey;autoIncrement"`
	ID        string    `gorm:"size:32;uniqueIndex"`
	VoucherID string    `gorm:"size:32;index"`
	UsedAt    time.Time `gorm:"index"`
	Source    string    `gorm:"size:16"`
}

func (usageRow) TableName() string { return "voucher_usages" }

type auditRow struct {
	Pos       int64  `gorm:"primaryKey;autoIncrement"`
	ID        string `gorm:"size:32;uniqueIndex"`
	TS        time.Time
	Type      string `gorm:"size:32;index"`
	VoucherID string `gorm:"size:32;index"`
	IP        string `gorm:"size:64"`
	UA        string `gorm:"size:512"`
	Meta      datatypes.JSONMap
}

func (auditRow) TableName() string { return "audit_logs" }

func toVoucherRow(v voucherdomain.Voucher) voucherRow {
	return voucherRow{
		ID:         v.ID,
		Seq:        v.Seq,
		Total:      v.Total,
		Remain:     v.Remain,
		Status:     string(v.Status),
		Note:       v.Note,
		CreatedAt:  v.CreatedAt.UTC(),
		LastUsedAt: utcPtr(v.LastUsedAt),
		QRSource:   string(v.QRSource),
		QRDataURL:  v.QRDataURL,
	}
}

func (r voucherRow) toDomain() voucherdomain.Voucher {
	return voucherdomain.Voucher{
		ID:         r.ID,
		Seq:        r.Seq,
		Total:      r.Total,
		Remain:     r.Remain,
		Status:     voucherdomain.Status(r.Status),
		Note:       r.Note,
		CreatedAt:  r.CreatedAt.UTC(),
		LastUsedAt: utcPtr(r.LastUsedAt),
		QRSource:   voucherdomain.QRSource(r.QRSource),
		QRDataURL:  r.QRDataURL,
	}
}

func (r usageRow) toDomain() voucherdomain.UsageRecord {
	return voucherdomain.UsageRecord{
		ID:        r.ID,
		VoucherID: r.VoucherID,
		UsedAt:    r.UsedAt.UTC(),
		Source:    voucherdomain.UsageSource(r.Source),
	}
}

func (r auditRow) toDomain() auditdomain.Entry {
	meta := map[string]any{}
	for k, v := range r.Meta {
		meta[k] = v
	}
	return auditdomain.Entry{
		ID:        r.ID,
		TS:        r.TS.UTC(),
		Type:      auditdomain.Type(r.Type),
		VoucherID: r.VoucherID,
		IP:        r.IP,
		UA:        r.UA,
		Meta:      meta,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
