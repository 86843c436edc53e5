package voucher

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/parkvoucher/internal/config"
	"github.com/smallbiznis/parkvoucher/internal/voucher/domain"
	"github.com/smallbiznis/parkvoucher/internal/voucher/service"
	"github.com/smallbiznis/parkvoucher/internal/writequeue"
	"go.uber.org/fx"
)

var Module = fx.Module("voucher.service",
	fx.Provide(NewNode),
	fx.Provide(service.NewService),
	fx.Provide(func() writequeue.Classifier { return domain.IsExpected }),
)

// NewNode returns the snowflake node used for voucher creation sequence numbers.
func NewNode(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
