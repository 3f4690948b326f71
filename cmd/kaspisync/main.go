package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/qazaqsoft/kaspisync/internal/amocrm"
	"github.com/qazaqsoft/kaspisync/internal/clock"
	"github.com/qazaqsoft/kaspisync/internal/config"
	"github.com/qazaqsoft/kaspisync/internal/kaspi"
	"github.com/qazaqsoft/kaspisync/internal/migration"
	"github.com/qazaqsoft/kaspisync/internal/observability"
	"github.com/qazaqsoft/kaspisync/internal/order"
	"github.com/qazaqsoft/kaspisync/internal/scheduler"
	"github.com/qazaqsoft/kaspisync/internal/server"
	"github.com/qazaqsoft/kaspisync/internal/settings"
	"github.com/qazaqsoft/kaspisync/internal/statusmap"
	"github.com/qazaqsoft/kaspisync/internal/sync"
	"github.com/qazaqsoft/kaspisync/pkg/db"
	"go.uber.org/fx"
)

// Monolith: admin API plus the in-process scheduler in one binary.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		settings.Module,
		order.Module,
		statusmap.Module,
		kaspi.Module,
		amocrm.Module,
		sync.Module,

		scheduler.Module,
		fx.Invoke(scheduler.StartScheduler),

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
