package service

import (
	"context"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"
	auditdomain "github.com/smallbiznis/parkvoucher/internal/audit/domain"
	"github.com/smallbiznis/parkvoucher/internal/auditcontext"
	"github.com/smallbiznis/parkvoucher/internal/clock"
	"github.com/smallbiznis/parkvoucher/internal/config"
	storedomain "github.com/smallbiznis/parkvoucher/internal/store/domain"
	"github.com/smallbiznis/parkvoucher/internal/writequeue"
	"github.com/smallbiznis/parkvoucher/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log    *zap.Logger
	Store  storedomain.Store
	Queue  *writequeue.Queue
	Clock  clock.Clock
	Policy *config.PolicyHolder
}

type Service struct {
	log    *zap.Logger
	store  storedomain.Store
	queue  *writequeue.Queue
	clock  clock.Clock
	policy *config.PolicyHolder
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		log:    p.Log.Named("audit.service"),
		store:  p.Store,
		queue:  p.Queue,
		clock:  p.Clock,
		policy: p.Policy,
	}
}

func (s *Service) Append(ctx context.Context, typ auditdomain.Type, voucherID string, meta map[string]any) (auditdomain.Entry, error) {
	if !typ.Valid() {
		return auditdomain.Entry{}, auditdomain.ErrInvalidType
	}

	payload := map[string]any{}
	for key, value := range meta {
		if key == "" {
			continue
		}
		payload[key] = value
	}
	if actorType, actorID := auditcontext.ActorFromContext(ctx); actorType == auditcontext.ActorTypeAdmin && actorID != "" {
		if _, ok := payload["admin"]; !ok {
			payload["admin"] = actorID
		}
	}
	if requestID := auditcontext.RequestIDFromContext(ctx); requestID != "" {
		payload["requestId"] = requestID
	}

	entry := auditdomain.Entry{
		ID:        ulid.Make().String(),
		TS:        s.clock.Now().UTC(),
		Type:      typ,
		VoucherID: strings.TrimSpace(voucherID),
		IP:        auditcontext.IPAddressFromContext(ctx),
		UA:        auditcontext.UserAgentFromContext(ctx),
		Meta:      payload,
	}
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("type", string(typ)), zap.Error(err))
		return auditdomain.Entry{}, err
	}
	return entry, nil
}

func (s *Service) Log(ctx context.Context, typ auditdomain.Type, voucherID string, meta map[string]any) error {
	return s.queue.Do(ctx, "audit."+strings.ToLower(string(typ)), func(ctx context.Context) error {
		_, err := s.Append(ctx, typ, voucherID, meta)
		return err
	})
}

func (s *Service) List(ctx context.Context, req auditdomain.ListRequest) (auditdomain.ListResponse, error) {
	entries, err := s.store.ReadAudit(ctx)
	if err != nil {
		return auditdomain.ListResponse{}, err
	}

	typ := strings.TrimSpace(req.Type)
	voucherID := strings.ToLower(strings.TrimSpace(req.VoucherID))
	filtered := make([]auditdomain.Entry, 0, len(entries))
	for _, entry := range entries {
		if typ != "" && string(entry.Type) != typ {
			continue
		}
		if voucherID != "" && !strings.Contains(strings.ToLower(entry.VoucherID), voucherID) {
			continue
		}
		filtered = append(filtered, entry)
	}
	newestFirst(filtered)

	policy := s.policy.Get()
	pageSize := pagination.Normalize(req.PageSize, policy.DefaultPageSize, policy.MaxPageSize)
	items, page := pagination.Paginate(filtered, req.Page, pageSize)
	return auditdomain.ListResponse{Items: items, Pagination: page}, nil
}

func (s *Service) ForVoucher(ctx context.Context, voucherID string) ([]auditdomain.Entry, error) {
	entries, err := s.store.ReadAudit(ctx)
	if err != nil {
		return nil, err
	}
	voucherID = strings.TrimSpace(voucherID)
	out := []auditdomain.Entry{}
	for _, entry := range entries {
		if entry.VoucherID == voucherID {
			out = append(out, entry)
		}
	}
	newestFirst(out)
	return out, nil
}

// newestFirst orders by timestamp descending. Entries sharing a timestamp keep
// reverse append order.
func newestFirst(entries []auditdomain.Entry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TS.After(entries[j].TS)
	})
}
