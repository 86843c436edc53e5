package session

import (
	"github.com/smallbiznis/parkvoucher/internal/auth/domain"
	"github.com/smallbiznis/parkvoucher/internal/clock"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.session",
	fx.Provide(NewManager),
	fx.Provide(func(c clock.Clock) domain.SessionStore { return NewMemoryStore(c) }),
)
