package gormstore

import (
	"fmt"
	"testing"
	"time"

	storedomain "github.com/smallbiznis/parkvoucher/internal/store/domain"
	"github.com/smallbiznis/parkvoucher/internal/store/storetest"
	"github.com/smallbiznis/parkvoucher/pkg/db"
)

func TestGormStoreSQLite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storedomain.Store {
		conn, err := db.NewTest(fmt.Sprintf("gormstore_%d", time.Now().UnixNano()))
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		if err := AutoMigrate(conn); err != nil {
			t.Fatalf("migrate: %v", err)
		}
		t.Cleanup(func() {
			if sqlDB, err := conn.DB(); err == nil {
				_ = sqlDB.Close()
			}
		})
		return New(conn)
	})
}
