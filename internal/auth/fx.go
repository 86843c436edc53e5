package auth

import (
	"github.com/smallbiznis/parkvoucher/internal/auth/password"
	"github.com/smallbiznis/parkvoucher/internal/auth/service"
	"github.com/smallbiznis/parkvoucher/internal/auth/session"
	"go.uber.org/fx"
)

var Module = fx.Module("auth.service",
	session.Module,
	fx.Provide(password.NewVerifier),
	fx.Provide(service.New),
)
