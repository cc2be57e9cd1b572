package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts time so period-close behavior is testable.
type Clock interface {
	Now() time.Time
}

var Module = fx.Provide(NewSystemClock)

type systemClock struct{}

func NewSystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now().UTC() }
