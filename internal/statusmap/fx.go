package statusmap

import (
	"github.com/qazaqsoft/kaspisync/internal/statusmap/service"
	"go.uber.org/fx"
)

var Module = fx.Module("statusmap.service",
	fx.Provide(service.New),
)
