package gormstore

import (
	"context"

	auditdomain "github.com/smallbiznis/parkvoucher/internal/audit/domain"
	storedomain "github.com/smallbiznis/parkvoucher/internal/store/domain"
	voucherdomain "github.com/smallbiznis/parkvoucher/internal/voucher/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store keeps vouchers and both logs in SQL tables.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates the tables from the row models. Postgres deployments
// use the versioned migrations instead.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&voucherRow{}, &usageRow{}, &auditRow{})
}

func (s *Store) LoadVouchers(ctx context.Context) (map[string]voucherdomain.Voucher, error) {
	var rows []voucherRow
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, storedomain.Wrap("load_vouchers", err)
	}
	out := make(map[string]voucherdomain.Voucher, len(rows))
	for _, row := range rows {
		out[row.ID] = row.toDomain()
	}
	return out, nil
}

func (s *Store) SaveVouchers(ctx context.Context, vouchers map[string]voucherdomain.Voucher) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(vouchers) == 0 {
			return tx.Where("1 = 1").Delete(&voucherRow{}).Error
		}

		ids := make([]string, 0, len(vouchers))
		rows := make([]voucherRow, 0, len(vouchers))
		for id, v := range vouchers {
			ids = append(ids, id)
			rows = append(rows, toVoucherRow(v))
		}
		if err := tx.Where("id NOT IN ?", ids).Delete(&voucherRow{}).Error; err != nil {
			return err
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).CreateInBatches(&rows, 200).Error
	})
	return storedomain.Wrap("save_vouchers", err)
}

func (s *Store) AppendUsage(ctx context.Context, record voucherdomain.UsageRecord) error {
	row := usageRow{
		ID:        record.ID,
		VoucherID: record.VoucherID,
		UsedAt:    record.UsedAt.UTC(),
		Source:    string(record.Source),
	}
	return storedomain.Wrap("append_usage", s.db.WithContext(ctx).Create(&row).Error)
}

func (s *Store) ReadUsages(ctx context.Context) ([]voucherdomain.UsageRecord, error) {
	var rows []usageRow
	if err := s.db.WithContext(ctx).Order("pos asc").Find(&rows).Error; err != nil {
		return nil, storedomain.Wrap("read_usages", err)
	}
	out := make([]voucherdomain.UsageRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *Store) AppendAudit(ctx context.Context, entry auditdomain.Entry) error {
	meta := datatypes.JSONMap{}
	for k, v := range entry.Meta {
		meta[k] = v
	}
	row := auditRow{
		ID:        entry.ID,
		TS:        entry.TS.UTC(),
		Type:      string(entry.Type),
		VoucherID: entry.VoucherID,
		IP:        entry.IP,
		UA:        entry.UA,
		Meta:      meta,
	}
	return storedomain.Wrap("append_audit", s.db.WithContext(ctx).Create(&row).Error)
}

func (s *Store) ReadAudit(ctx context.Context) ([]auditdomain.Entry, error) {
	var rows []auditRow
	if err := s.db.WithContext(ctx).Order("pos asc").Find(&rows).Error; err != nil {
		return nil, storedomain.Wrap("read_audit", err)
	}
	out := make([]auditdomain.Entry, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

var _ storedomain.Store = (*Store)(nil)
