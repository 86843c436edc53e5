package store

import (
	"context"
	"fmt"

	"github.com/smallbiznis/parkvoucher/internal/config"
	"github.com/smallbiznis/parkvoucher/internal/migration"
	storedomain "github.com/smallbiznis/parkvoucher/internal/store/domain"
	"github.com/smallbiznis/parkvoucher/internal/store/file"
	"github.com/smallbiznis/parkvoucher/internal/store/gormstore"
	"github.com/smallbiznis/parkvoucher/internal/store/memory"
	"github.com/smallbiznis/parkvoucher/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("store",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
}

// New opens the backend selected by STORE_TYPE.
func New(p Params) (storedomain.Store, error) {
	log := p.Log.Named("store")
	cfg := p.Config

	switch cfg.StoreType {
	case config.StoreMemory:
		log.Warn("using in-memory store; data is lost on restart")
		return memory.New(), nil
	case config.StoreFile, "":
		log.Info("using file store", zap.String("dir", cfg.DataDir))
		return file.New(cfg.DataDir)
	case config.StoreSQLite, config.StorePostgres, config.StoreMySQL:
		return openSQL(p.Lifecycle, db.FromAppConfig(cfg), log)
	default:
		return nil, fmt.Errorf("unsupported store type %q", cfg.StoreType)
	}
}

func openSQL(lc fx.Lifecycle, cfg db.Config, log *zap.Logger) (storedomain.Store, error) {
	conn, err := db.Open(cfg, log)
	if err != nil {
		return nil, err
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}

	if cfg.Type == config.StorePostgres {
		err = migration.RunMigrations(sqlDB)
	} else {
		err = gormstore.AutoMigrate(conn)
	}
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return sqlDB.Close()
			},
		})
	}
	log.Info("using sql store", zap.String("type", cfg.Type))
	return gormstore.New(conn), nil
}
