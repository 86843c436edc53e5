package service

import (
	"context"
	"errors"
	"net/url"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/parkvoucher/internal/audit/domain"
	"github.com/smallbiznis/parkvoucher/internal/clock"
	"github.com/smallbiznis/parkvoucher/internal/config"
	obsmetrics "github.com/smallbiznis/parkvoucher/internal/observability/metrics"
	"github.com/smallbiznis/parkvoucher/internal/qrcode"
	storedomain "github.com/smallbiznis/parkvoucher/internal/store/domain"
	"github.com/smallbiznis/parkvoucher/internal/voucher/domain"
	"github.com/smallbiznis/parkvoucher/internal/writequeue"
	"github.com/smallbiznis/parkvoucher/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Store    storedomain.Store
	Queue    *writequeue.Queue
	Audit    auditdomain.Service
	Clock    clock.Clock
	GenID    *snowflake.Node
	Policy   *config.PolicyHolder
	Location *time.Location
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	store    storedomain.Store
	queue    *writequeue.Queue
	audit    auditdomain.Service
	clock    clock.Clock
	genID    *snowflake.Node
	policy   *config.PolicyHolder
	location *time.Location
	metrics  *obsmetrics.Metrics
	suffix   suffixFunc
}

func NewService(p Params) domain.Service {
	return newService(p)
}

func newService(p Params) *Service {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		log:      p.Log.Named("voucher.service"),
		store:    p.Store,
		queue:    p.Queue,
		audit:    p.Audit,
		clock:    p.Clock,
		genID:    p.GenID,
		policy:   p.Policy,
		location: loc,
		metrics:  p.Metrics,
		suffix:   randomSuffix,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Voucher, error) {
	if req.Total <= 0 {
		return nil, domain.ErrInvalidTotal
	}

	policy := s.policy.Get()
	note := truncateNote(req.Note, policy.NoteMaxLength)
	qrSource := domain.QRSourceAuto
	qrDataURL := strings.TrimSpace(req.QRDataURL)
	if qrDataURL != "" {
		if _, err := qrcode.ParseDataURL(qrDataURL, policy.MaxQRBytes); err != nil {
			return nil, domain.ErrInvalidQRImage
		}
		qrSource = domain.QRSourceManual
	}

	var created domain.Voucher
	err := s.queue.Do(ctx, "voucher.create", func(ctx context.Context) error {
		vouchers, err := s.store.LoadVouchers(ctx)
		if err != nil {
			return err
		}

		now := s.clock.Now().UTC()
		id, err := generateID(voucherIDPrefix, now, s.location, s.suffix, func(candidate string) bool {
			_, exists := vouchers[candidate]
			return exists
		})
		if err != nil {
			return err
		}

		voucher := domain.Voucher{
			ID:        id,
			Seq:       s.genID.Generate().Int64(),
			Total:     req.Total,
			Remain:    req.Total,
			Status:    domain.StatusActive,
			Note:      note,
			CreatedAt: now,
			QRSource:  qrSource,
			QRDataURL: qrDataURL,
		}
		vouchers[id] = voucher
		if err := s.store.SaveVouchers(ctx, vouchers); err != nil {
			return err
		}
		if _, err := s.audit.Append(ctx, auditdomain.TypeCreate, id, map[string]any{
			"total":    voucher.Total,
			"note":     voucher.Note,
			"qrSource": string(voucher.QRSource),
		}); err != nil {
			return err
		}
		created = voucher
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordVoucherIssued(ctx, created.Total)
	return &created, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Voucher, error) {
	vouchers, err := s.store.LoadVouchers(ctx)
	if err != nil {
		return nil, err
	}
	voucher, ok := vouchers[strings.TrimSpace(id)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &voucher, nil
}

func (s *Service) GetDetail(ctx context.Context, id string) (*domain.Detail, error) {
	voucher, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	logs, err := s.audit.ForVoucher(ctx, voucher.ID)
	if err != nil {
		return nil, err
	}
	return &domain.Detail{Voucher: *voucher, Logs: logs}, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	vouchers, err := s.store.LoadVouchers(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(req.Q))
	status, filterStatus := domain.ParseStatus(strings.TrimSpace(req.Status))

	filtered := make([]domain.Voucher, 0, len(vouchers))
	var summary domain.Summary
	for _, voucher := range vouchers {
		if filterStatus && voucher.Status != status {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(voucher.ID), q) &&
			!strings.Contains(strings.ToLower(voucher.Note), q) {
			continue
		}
		filtered = append(filtered, voucher)
		summary.TotalIssued += voucher.Total
		summary.TotalUsed += voucher.Used()
		summary.TotalRemain += voucher.Remain
	}
	sortNewestFirst(filtered)

	policy := s.policy.Get()
	pageSize := pagination.Normalize(req.PageSize, policy.DefaultPageSize, policy.MaxPageSize)
	items, page := pagination.Paginate(filtered, req.Page, pageSize)
	return &domain.ListResponse{Items: items, Pagination: page, Summary: summary}, nil
}

func (s *Service) Update(ctx context.Context, id string, req domain.UpdateRequest) (*domain.Voucher, error) {
	id = strings.TrimSpace(id)
	if req.Remain != nil && *req.Remain < 0 {
		return nil, domain.ErrInvalidRemain
	}
	policy := s.policy.Get()

	var updated domain.Voucher
	err := s.queue.Do(ctx, "voucher.update", func(ctx context.Context) error {
		vouchers, err := s.store.LoadVouchers(ctx)
		if err != nil {
			return err
		}
		voucher, ok := vouchers[id]
		if !ok {
			return domain.ErrNotFound
		}
		if req.Remain != nil && *req.Remain > voucher.Total {
			return domain.ErrInvalidRemain
		}

		typ := auditdomain.TypeUpdate
		meta := map[string]any{}
		if req.Note != nil {
			voucher.Note = truncateNote(*req.Note, policy.NoteMaxLength)
			meta["note"] = voucher.Note
		}
		if req.Status != nil {
			if status, ok := domain.ParseStatus(strings.TrimSpace(*req.Status)); ok {
				voucher.Status = status
				meta["status"] = string(status)
			}
		}
		if req.Remain != nil {
			typ = auditdomain.TypeAdjust
			meta["oldRemain"] = voucher.Remain
			meta["newRemain"] = *req.Remain
			voucher.Remain = *req.Remain
		}

		vouchers[id] = voucher
		if err := s.store.SaveVouchers(ctx, vouchers); err != nil {
			return err
		}
		if _, err := s.audit.Append(ctx, typ, id, meta); err != nil {
			return err
		}
		updated = voucher
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *Service) Disable(ctx context.Context, id string) (*domain.Voucher, error) {
	id = strings.TrimSpace(id)
	var disabled domain.Voucher
	err := s.queue.Do(ctx, "voucher.disable", func(ctx context.Context) error {
		vouchers, err := s.store.LoadVouchers(ctx)
		if err != nil {
			return err
		}
		voucher, ok := vouchers[id]
		if !ok {
			return domain.ErrNotFound
		}
		voucher.Status = domain.StatusDisabled
		vouchers[id] = voucher
		if err := s.store.SaveVouchers(ctx, vouchers); err != nil {
			return err
		}
		if _, err := s.audit.Append(ctx, auditdomain.TypeDisable, id, map[string]any{}); err != nil {
			return err
		}
		disabled = voucher
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &disabled, nil
}

func (s *Service) UploadQR(ctx context.Context, id, dataURL string) (*domain.Voucher, error) {
	id = strings.TrimSpace(id)
	dataURL = strings.TrimSpace(dataURL)
	img, err := qrcode.ParseDataURL(dataURL, s.policy.Get().MaxQRBytes)
	if err != nil {
		return nil, domain.ErrInvalidQRImage
	}

	var updated domain.Voucher
	err = s.queue.Do(ctx, "voucher.upload_qr", func(ctx context.Context) error {
		vouchers, err := s.store.LoadVouchers(ctx)
		if err != nil {
			return err
		}
		voucher, ok := vouchers[id]
		if !ok {
			return domain.ErrNotFound
		}
		voucher.QRSource = domain.QRSourceManual
		voucher.QRDataURL = dataURL
		vouchers[id] = voucher
		if err := s.store.SaveVouchers(ctx, vouchers); err != nil {
			return err
		}
		if _, err := s.audit.Append(ctx, auditdomain.TypeUploadQR, id, map[string]any{
			"mimeType": img.MIMEType,
			"bytes":    len(img.Data),
		}); err != nil {
			return err
		}
		updated = voucher
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// RecordDisplay logs that the redeem page showed a code. The id is recorded
// as given, known or not.
func (s *Service) RecordDisplay(ctx context.Context, id string) error {
	return s.audit.Log(ctx, auditdomain.TypeDisplay, strings.TrimSpace(id), map[string]any{})
}

func (s *Service) RecordUsage(ctx context.Context, req domain.UsageRequest) (*domain.UsageResult, error) {
	return s.recordUsage(ctx, req, false)
}

func (s *Service) RecordWebhookUsage(ctx context.Context, voucherID string) (*domain.UsageResult, error) {
	return s.recordUsage(ctx, domain.UsageRequest{
		VoucherID: voucherID,
		Source:    domain.UsageSourceAPI,
	}, true)
}

func (s *Service) recordUsage(ctx context.Context, req domain.UsageRequest, autoPick bool) (*domain.UsageResult, error) {
	auditType := req.AuditType
	switch req.Source {
	case domain.UsageSourceAPI:
		if auditType == "" {
			auditType = auditdomain.TypeWebhookUse
		}
	case domain.UsageSourceManual:
		if auditType == "" {
			auditType = auditdomain.TypeManualUse
		}
	default:
		return nil, domain.ErrInvalidSource
	}

	id := strings.TrimSpace(req.VoucherID)
	var result domain.UsageResult
	err := s.queue.Do(ctx, "voucher.use", func(ctx context.Context) error {
		vouchers, err := s.store.LoadVouchers(ctx)
		if err != nil {
			return err
		}

		var voucher domain.Voucher
		if id == "" && autoPick {
			picked, ok := oldestUsable(vouchers)
			if !ok {
				return &domain.UsageRejectedError{Reason: domain.RejectExhausted}
			}
			voucher = picked
		} else {
			found, ok := vouchers[id]
			if !ok {
				return &domain.UsageRejectedError{VoucherID: id, Reason: domain.RejectNotFound}
			}
			voucher = found
		}
		if voucher.Status != domain.StatusActive {
			return &domain.UsageRejectedError{VoucherID: voucher.ID, Reason: domain.RejectDisabled}
		}
		if voucher.Remain <= 0 {
			return &domain.UsageRejectedError{VoucherID: voucher.ID, Reason: domain.RejectExhausted}
		}

		now := s.clock.Now().UTC()
		before := voucher.Remain
		voucher.Remain--
		voucher.LastUsedAt = &now
		vouchers[voucher.ID] = voucher
		if err := s.store.SaveVouchers(ctx, vouchers); err != nil {
			return err
		}

		usageID, err := generateID(usageIDPrefix, now, s.location, s.suffix, nil)
		if err != nil {
			return err
		}
		usage := domain.UsageRecord{
			ID:        usageID,
			VoucherID: voucher.ID,
			UsedAt:    now,
			Source:    req.Source,
		}
		if err := s.store.AppendUsage(ctx, usage); err != nil {
			return err
		}
		if _, err := s.audit.Append(ctx, auditType, voucher.ID, map[string]any{
			"before":  before,
			"after":   voucher.Remain,
			"usageId": usage.ID,
			"source":  string(usage.Source),
		}); err != nil {
			return err
		}

		result = domain.UsageResult{Usage: usage, Voucher: voucher}
		return nil
	})
	if err != nil {
		var rejected *domain.UsageRejectedError
		if errors.As(err, &rejected) {
			s.metrics.RecordUsageRejected(ctx, string(req.Source), string(rejected.Reason))
		}
		return nil, err
	}

	s.metrics.RecordUsage(ctx, string(req.Source))
	s.log.Debug("usage recorded",
		zap.String("voucher_id", result.Voucher.ID),
		zap.String("usage_id", result.Usage.ID),
		zap.Int("remain", result.Voucher.Remain),
	)
	return &result, nil
}

// RedeemURL is the page link encoded into auto-generated voucher QR codes.
func RedeemURL(baseURL, id string) string {
	return strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/redeem.html?v=" + url.QueryEscape(id)
}

// QRDataURL returns the uploaded override if one exists, otherwise a rendered
// QR code of content.
func QRDataURL(voucher domain.Voucher, content string) (string, error) {
	if voucher.QRSource == domain.QRSourceManual && voucher.QRDataURL != "" {
		return voucher.QRDataURL, nil
	}
	return qrcode.DataURL(content, qrcode.DefaultSize)
}

func oldestUsable(vouchers map[string]domain.Voucher) (domain.Voucher, bool) {
	var (
		picked domain.Voucher
		found  bool
	)
	for _, voucher := range vouchers {
		if !voucher.Usable() {
			continue
		}
		if !found || voucher.Seq < picked.Seq || (voucher.Seq == picked.Seq && voucher.ID < picked.ID) {
			picked = voucher
			found = true
		}
	}
	return picked, found
}

func sortNewestFirst(items []domain.Voucher) {
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		if items[i].Seq != items[j].Seq {
			return items[i].Seq > items[j].Seq
		}
		return items[i].ID > items[j].ID
	})
}

func truncateNote(note string, max int) string {
	note = strings.TrimSpace(note)
	if max <= 0 || utf8.RuneCountInString(note) <= max {
		return note
	}
	runes := []rune(note)
	return string(runes[:max])
}
