package main

import (
	"context"
	"flag"

	"github.com/bwmarrin/snowflake"
	"github.com/gofrs/flock"
	"github.com/qazaqsoft/kaspisync/internal/amocrm"
	"github.com/qazaqsoft/kaspisync/internal/clock"
	"github.com/qazaqsoft/kaspisync/internal/config"
	"github.com/qazaqsoft/kaspisync/internal/kaspi"
	"github.com/qazaqsoft/kaspisync/internal/migration"
	"github.com/qazaqsoft/kaspisync/internal/observability"
	"github.com/qazaqsoft/kaspisync/internal/order"
	"github.com/qazaqsoft/kaspisync/internal/scheduler"
	"github.com/qazaqsoft/kaspisync/internal/settings"
	"github.com/qazaqsoft/kaspisync/internal/statusmap"
	"github.com/qazaqsoft/kaspisync/internal/sync"
	"github.com/qazaqsoft/kaspisync/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var runOnce = flag.Bool("once", false, "run a single scheduler pass and exit")

// Standalone scheduler process. A file lock keeps overlapping cron launches
// from double-running the pipeline; a second instance exits cleanly.
func main() {
	flag.Parse()

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
		fx.Invoke(RunScheduler),
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

// RunScheduler takes the cron lock and drives the job loop. When another
// instance already holds the lock this one exits 0 without running a pass,
// so overlapping cron launches stay silent.
func RunScheduler(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, sched *scheduler.Scheduler, shutdowner fx.Shutdowner) {
	var held *flock.Flock

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			lock, acquired, err := scheduler.AcquireLock(cfg.SchedulerLockPath)
			if err != nil {
				return err
			}
			if !acquired {
				log.Info("scheduler already running, exiting",
					zap.String("lock_path", cfg.SchedulerLockPath),
				)
				return shutdowner.Shutdown(fx.ExitCode(0))
			}
			held = lock

			ctx, cancel := context.WithCancel(context.Background())
			go func() {
				if *runOnce {
					sched.RunOnce(ctx)
					_ = shutdowner.Shutdown(fx.ExitCode(0))
					return
				}
				sched.RunForever(ctx)
			}()

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
		OnStop: func(context.Context) error {
			if held == nil {
				return nil
			}
			return held.Unlock()
		},
	})
}
