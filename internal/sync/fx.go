package sync

import (
	"github.com/qazaqsoft/kaspisync/internal/amocrm"
	"github.com/qazaqsoft/kaspisync/internal/kaspi"
	statusdomain "github.com/qazaqsoft/kaspisync/internal/statusmap/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("sync",
	fx.Provide(
		func(c *kaspi.Client) UpstreamClient { return c },
		func(c *amocrm.Client) DownstreamClient { return c },
		func(s statusdomain.StatusMap) StatusResolver { return s },
		NewPipeline,
		NewReconciler,
	),
)
