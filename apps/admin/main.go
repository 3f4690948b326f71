package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/qazaqsoft/kaspisync/internal/amocrm"
	"github.com/qazaqsoft/kaspisync/internal/clock"
	"github.com/qazaqsoft/kaspisync/internal/config"
	"github.com/qazaqsoft/kaspisync/internal/migration"
	"github.com/qazaqsoft/kaspisync/internal/observability"
	"github.com/qazaqsoft/kaspisync/internal/server"
	"github.com/qazaqsoft/kaspisync/internal/statusmap"
	"github.com/qazaqsoft/kaspisync/pkg/db"
	"go.uber.org/fx"
)

// Admin-only deployment: the HTTP surface without the sync loops. Pair with
// apps/scheduler when the pipeline should run in its own process.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		statusmap.Module,
		amocrm.Module,

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
