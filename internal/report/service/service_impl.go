package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/smallbiznis/parkvoucher/internal/clock"
	"github.com/smallbiznis/parkvoucher/internal/config"
	"github.com/smallbiznis/parkvoucher/internal/report/domain"
	storedomain "github.com/smallbiznis/parkvoucher/internal/store/domain"
	voucherdomain "github.com/smallbiznis/parkvoucher/internal/voucher/domain"
	"github.com/smallbiznis/parkvoucher/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
	yearLayout  = "2006"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Store    storedomain.Store
	Clock    clock.Clock
	Policy   *config.PolicyHolder
	Location *time.Location
}

type Service struct {
	log      *zap.Logger
	store    storedomain.Store
	clock    clock.Clock
	policy   *config.PolicyHolder
	location *time.Location
}

func NewService(p Params) domain.Service {
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		log:      p.Log.Named("report.service"),
		store:    p.Store,
		clock:    p.Clock,
		policy:   p.Policy,
		location: loc,
	}
}

func (s *Service) Stats(ctx context.Context) (*domain.Stats, error) {
	vouchers, err := s.store.LoadVouchers(ctx)
	if err != nil {
		return nil, err
	}
	usages, err := s.store.ReadUsages(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().In(s.location)
	today := now.Format(dateLayout)
	month := now.Format(monthLayout)
	year := now.Format(yearLayout)

	stats := &domain.Stats{}
	for _, voucher := range vouchers {
		stats.TotalVouchers++
		switch voucher.Status {
		case voucherdomain.StatusActive:
			stats.ActiveVouchers++
		case voucherdomain.StatusDisabled:
			stats.DisabledVouchers++
		}
		stats.TotalIssued += voucher.Total
		stats.TotalUsed += voucher.Used()
		stats.TotalRemain += voucher.Remain
		if voucher.CreatedAt.In(s.location).Format(dateLayout) == today {
			stats.TodayCreated++
		}
	}

	days := make([]string, domain.RecentDays)
	perDay := make(map[string]int, domain.RecentDays)
	for i := range days {
		days[i] = now.AddDate(0, 0, i-(domain.RecentDays-1)).Format(dateLayout)
		perDay[days[i]] = 0
	}

	for _, usage := range usages {
		day := usage.UsedAt.In(s.location).Format(dateLayout)
		if day == today {
			stats.TodayUsed++
		}
		if strings.HasPrefix(day, month) {
			stats.ThisMonthUsed++
		}
		if strings.HasPrefix(day, year) {
			stats.ThisYearUsed++
		}
		if _, ok := perDay[day]; ok {
			perDay[day]++
		}
	}

	stats.RecentDays = make([]domain.DayCount, 0, len(days))
	for _, day := range days {
		stats.RecentDays = append(stats.RecentDays, domain.DayCount{Date: day, Count: perDay[day]})
	}
	return stats, nil
}

func (s *Service) ListUsages(ctx context.Context, query domain.UsageQuery) (*domain.UsageListResponse, error) {
	filtered, err := s.filterUsages(ctx, query)
	if err != nil {
		return nil, err
	}

	policy := s.policy.Get()
	pageSize := pagination.Normalize(query.PageSize, policy.DefaultPageSize, policy.MaxPageSize)
	items, page := pagination.Paginate(filtered, query.Page, pageSize)
	return &domain.UsageListResponse{
		Items:      items,
		Pagination: page,
		Summary:    domain.UsageSummary{TotalUsages: len(filtered)},
	}, nil
}

// filterUsages returns matching usages newest first.
func (s *Service) filterUsages(ctx context.Context, query domain.UsageQuery) ([]voucherdomain.UsageRecord, error) {
	start, err := s.parseBound(query.StartDate, false)
	if err != nil {
		return nil, err
	}
	end, err := s.parseBound(query.EndDate, true)
	if err != nil {
		return nil, err
	}

	usages, err := s.store.ReadUsages(ctx)
	if err != nil {
		return nil, err
	}

	voucherID := strings.ToLower(strings.TrimSpace(query.VoucherID))
	out := make([]voucherdomain.UsageRecord, 0, len(usages))
	for _, usage := range usages {
		if !start.IsZero() && usage.UsedAt.Before(start) {
			continue
		}
		if !end.IsZero() && usage.UsedAt.After(end) {
			continue
		}
		if voucherID != "" && !strings.Contains(strings.ToLower(usage.VoucherID), voucherID) {
			continue
		}
		out = append(out, usage)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UsedAt.After(out[j].UsedAt)
	})
	return out, nil
}

// parseBound accepts a bare date or a full timestamp. A bare end date covers
// the whole day.
func (s *Service) parseBound(raw string, endOfDay bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.ParseInLocation(dateLayout, raw, s.location); err == nil {
		if endOfDay {
			return t.AddDate(0, 0, 1).Add(-time.Millisecond), nil
		}
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return t, nil
	}
	return time.Time{}, domain.ErrInvalidDate
}
