package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/qazaqsoft/kaspisync/internal/clock"
	obsmetrics "github.com/qazaqsoft/kaspisync/internal/observability/metrics"
	"github.com/qazaqsoft/kaspisync/internal/settings"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const lastRunKeyPrefix = "scheduler_last_run_"

// Job is a named unit of periodic work. Interval is the minimum spacing
// between successful runs; a failed run leaves the last-run mark untouched
// so the job retries on the next eligible tick.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler drives registered jobs off a persisted per-job last-run
// timestamp. Due-checking is pure given the injected clock, so both the
// single-pass and the polling driver share it.
type Scheduler struct {
	settings settings.Store
	clock    clock.Clock
	genID    *snowflake.Node
	log      *zap.Logger
	cfg      Config

	jobs []Job
}

type Params struct {
	fx.In

	Settings settings.Store
	Clock    clock.Clock
	GenID    *snowflake.Node
	Log      *zap.Logger
	Config   Config `optional:"true"`
}

func New(p Params) (*Scheduler, error) {
	if p.Settings == nil || p.Clock == nil || p.GenID == nil || p.Log == nil {
		return nil, errors.New("scheduler: missing dependency")
	}
	return &Scheduler{
		settings: p.Settings,
		clock:    p.Clock,
		genID:    p.GenID,
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
	}, nil
}

func (s *Scheduler) Register(name string, interval time.Duration, run func(ctx context.Context) error) {
	s.jobs = append(s.jobs, Job{Name: name, Interval: interval, Run: run})
}

// RunDueJobs runs every job whose interval has elapsed since its persisted
// last run. Job failures are logged and never abort the tick.
func (s *Scheduler) RunDueJobs(ctx context.Context, now time.Time) {
	for _, job := range s.jobs {
		key := lastRunKeyPrefix + job.Name
		lastRun, err := s.settings.GetInt64(ctx, key, 0)
		if err != nil {
			s.log.Error("load last run failed", zap.String("job", job.Name), zap.Error(err))
			continue
		}
		if lastRun > 0 && now.Unix() < lastRun+int64(job.Interval.Seconds()) {
			continue
		}

		if err := s.runJob(ctx, job); err != nil {
			continue
		}
		if err := s.settings.SetInt64(ctx, key, now.Unix()); err != nil {
			s.log.Error("persist last run failed", zap.String("job", job.Name), zap.Error(err))
		}
	}
}

func (s *Scheduler) runJob(ctx context.Context, job Job) error {
	start := s.clock.Now()
	runID := s.genID.Generate().String()
	log := s.log.With(
		zap.String("job", job.Name),
		zap.String("run_id", runID),
	)
	metrics := obsmetrics.Scheduler()
	metrics.IncJobRun(job.Name)
	log.Info("job started")

	err := job.Run(ctx)
	metrics.ObserveJobDuration(job.Name, s.clock.Now().Sub(start))
	if err != nil {
		metrics.IncJobError(job.Name)
		log.Error("job failed", zap.Error(err))
		return fmt.Errorf("%s: %w", job.Name, err)
	}

	log.Info("job finished", zap.Duration("elapsed", s.clock.Now().Sub(start)))
	return nil
}

// RunOnce runs all currently due jobs a single time and returns.
func (s *Scheduler) RunOnce(ctx context.Context) {
	s.RunDueJobs(ctx, s.clock.Now())
}

// RunForever polls the due-check until ctx is canceled.
func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	s.log.Info("scheduler started", zap.Duration("poll_interval", s.cfg.PollInterval))
	for {
		s.RunDueJobs(ctx, s.clock.Now())
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}
