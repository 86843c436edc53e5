package main

import (
	"github.com/smallbiznis/parkvoucher/internal/clock"
	"github.com/smallbiznis/parkvoucher/internal/config"
	"github.com/smallbiznis/parkvoucher/internal/observability"
	"github.com/smallbiznis/parkvoucher/internal/scheduler"
	"github.com/smallbiznis/parkvoucher/internal/server"
	"github.com/smallbiznis/parkvoucher/internal/store"
	"github.com/smallbiznis/parkvoucher/internal/writequeue"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		clock.Module,
		store.Module,
		writequeue.Module,

		// HTTP and functional domains
		server.Module,
		scheduler.Module,
	)

	app.Run()
}
