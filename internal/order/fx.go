package order

import (
	"github.com/qazaqsoft/kaspisync/internal/clock"
	"github.com/qazaqsoft/kaspisync/internal/config"
	"github.com/qazaqsoft/kaspisync/internal/order/domain"
	"github.com/qazaqsoft/kaspisync/internal/order/repository"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("order.reservation",
	fx.Provide(func(db *gorm.DB, clk clock.Clock, cfg config.Config) domain.ReservationStore {
		return repository.Provide(db, clk, cfg.Sync.StaleClaimAfter)
	}),
)
