package scheduler

import (
	"context"

	"github.com/qazaqsoft/kaspisync/internal/config"
	"github.com/qazaqsoft/kaspisync/internal/sync"
	"go.uber.org/fx"
)

// Module wires the scheduler and its job table. Entrypoints decide whether
// to run it forever or for a single pass.
var Module = fx.Module("scheduler",
	fx.Provide(New),
	fx.Invoke(RegisterJobs),
)

// RegisterJobs binds the two periodic passes to their configured intervals.
func RegisterJobs(sched *Scheduler, cfg config.Config, pipeline *sync.Pipeline, reconciler *sync.Reconciler) {
	sched.Register("fetch_new", cfg.Sync.SyncInterval, func(ctx context.Context) error {
		_, err := pipeline.Run(ctx)
		return err
	})
	sched.Register("reconcile", cfg.Sync.ReconcileInterval, func(ctx context.Context) error {
		_, err := reconciler.Run(ctx)
		return err
	})
}

func StartScheduler(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
