package migration

import (
	"github.com/qazaqsoft/kaspisync/internal/amocrm"
	"github.com/qazaqsoft/kaspisync/internal/config"
	orderdomain "github.com/qazaqsoft/kaspisync/internal/order/domain"
	"github.com/qazaqsoft/kaspisync/internal/settings"
	statusdomain "github.com/qazaqsoft/kaspisync/internal/statusmap/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			return RunMigrations(sqlDB)
		}

		// sqlite and mysql deployments are single-node dev setups, gorm's
		// schema sync is enough there.
		return conn.AutoMigrate(
			&settings.Setting{},
			&amocrm.Token{},
			&orderdomain.SyncRecord{},
			&statusdomain.StatusMapping{},
		)
	}),
)
