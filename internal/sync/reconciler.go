package sync

import (
	"context"
	"fmt"

	"github.com/qazaqsoft/kaspisync/internal/amocrm"
	"github.com/qazaqsoft/kaspisync/internal/clock"
	"github.com/qazaqsoft/kaspisync/internal/config"
	"github.com/qazaqsoft/kaspisync/internal/kaspi"
	"github.com/qazaqsoft/kaspisync/internal/observability/metrics"
	orderdomain "github.com/qazaqsoft/kaspisync/internal/order/domain"
	"github.com/qazaqsoft/kaspisync/internal/settings"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// ReconcileReport summarizes one reconciliation sweep.
type ReconcileReport struct {
	Fetched int
	Updated int
	Skipped int
	Failed  int
}

// Reconciler pushes status, price, and line-item deltas of recent upstream
// orders into leads that already exist. It never creates leads.
type Reconciler struct {
	upstream   UpstreamClient
	downstream DownstreamClient
	store      orderdomain.ReservationStore
	statuses   StatusResolver
	settings   settings.Store
	clock      clock.Clock
	cfg        config.Config
	log        *zap.Logger
}

type ReconcilerParams struct {
	fx.In

	Upstream   UpstreamClient
	Downstream DownstreamClient
	Store      orderdomain.ReservationStore
	Statuses   StatusResolver
	Settings   settings.Store
	Clock      clock.Clock
	Config     config.Config
	Log        *zap.Logger
}

func NewReconciler(p ReconcilerParams) *Reconciler {
	return &Reconciler{
		upstream:   p.Upstream,
		downstream: p.Downstream,
		store:      p.Store,
		statuses:   p.Statuses,
		settings:   p.Settings,
		clock:      p.Clock,
		cfg:        p.Config,
		log:        p.Log.Named("sync.reconciler"),
	}
}

// Run sweeps the trailing reconcile window. last_check_ms advances
// unconditionally: it only bounds the next lookback, a failed sweep loses
// nothing because the window overlaps.
func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	lastCheck, err := r.settings.GetInt64(ctx, settings.KeyLastCheckMS, 0)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("load last check: %w", err)
	}

	now := r.clock.Now()
	nowMS := now.UnixMilli()
	from := now.Add(-r.cfg.Sync.ReconcileWindow).UnixMilli()
	if lastCheck > from {
		from = lastCheck
	}

	r.log.Info("reconcile run started", zap.Int64("from_ms", from), zap.Int64("to_ms", nowMS))

	report := ReconcileReport{}
	cache := newProductCache()

	err = r.upstream.ForEachOrder(ctx, kaspi.Filter{CreatedFrom: from, CreatedTo: nowMS}, func(order kaspi.Order) error {
		report.Fetched++
		if order.Code == "" {
			report.Skipped++
			return nil
		}

		record, err := r.store.Get(ctx, order.Code)
		if err != nil {
			r.log.Error("load sync record failed", zap.String("order_code", order.Code), zap.Error(err))
			report.Failed++
			return nil
		}
		if record == nil || !record.Synced() {
			report.Skipped++
			return nil
		}

		touched, failed := r.reconcileOrder(ctx, order, record, cache)
		if touched {
			report.Updated++
			metrics.Scheduler().IncOrdersReconciled(1)
		}
		if failed {
			report.Failed++
		}
		return nil
	})
	if err != nil {
		return report, fmt.Errorf("list orders: %w", err)
	}

	if err := r.settings.SetInt64(ctx, settings.KeyLastCheckMS, nowMS); err != nil {
		return report, fmt.Errorf("persist last check: %w", err)
	}

	r.log.Info("reconcile run finished",
		zap.Int("fetched", report.Fetched),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

// reconcileOrder reports whether any delta was pushed downstream and
// whether any push failed. The stored state advances only after the
// downstream update succeeded, so a failed push is retried on the next
// sweep.
func (r *Reconciler) reconcileOrder(ctx context.Context, order kaspi.Order, record *orderdomain.SyncRecord, cache *productCache) (touched, failed bool) {

	if order.State != "" && order.State != record.KaspiStatus {
		statusID, err := r.statuses.ActiveStatusID(ctx, order.State, r.cfg.Amo.PipelineID)
		if err != nil {
			r.log.Error("status lookup failed", zap.String("order_code", order.Code), zap.Error(err))
			failed = true
		} else if statusID > 0 {
			err := r.downstream.UpdateLead(ctx, record.AmoLeadID, amocrm.LeadPayload{
				StatusID:   statusID,
				PipelineID: r.cfg.Amo.PipelineID,
			})
			if err != nil {
				r.log.Error("stage update failed",
					zap.String("order_code", order.Code),
					zap.Int64("lead_id", record.AmoLeadID),
					zap.Error(err),
				)
				failed = true
			} else if err := r.store.UpdateStatus(ctx, order.Code, order.State); err != nil {
				r.log.Error("persist status failed", zap.String("order_code", order.Code), zap.Error(err))
				failed = true
			} else {
				touched = true
			}
		}
	}

	if order.TotalPrice != record.TotalPrice {
		err := r.downstream.UpdateLead(ctx, record.AmoLeadID, amocrm.LeadPayload{Price: order.TotalPrice})
		if err != nil {
			r.log.Error("price update failed",
				zap.String("order_code", order.Code),
				zap.Int64("lead_id", record.AmoLeadID),
				zap.Error(err),
			)
			failed = true
		} else if err := r.store.UpdatePrice(ctx, order.Code, order.TotalPrice); err != nil {
			r.log.Error("persist price failed", zap.String("order_code", order.Code), zap.Error(err))
			failed = true
		} else {
			touched = true
		}
	}

	if r.cfg.Amo.CatalogID > 0 {
		if _, err := relinkEntries(ctx, r.upstream, r.downstream, r.cfg.Amo.CatalogID, record.AmoLeadID, order.ID, cache); err != nil {
			r.log.Error("line relink failed", zap.String("order_code", order.Code), zap.Error(err))
			failed = true
		}
	}

	return touched, failed
}
