package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts time for the scheduler and the sync windows so the due-job
// logic stays testable with an injected clock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

func NewSystemClock() Clock {
	return systemClock{}
}

var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)
