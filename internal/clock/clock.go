package clock

import (
	"time"

	"github.com/smallbiznis/invoicer/internal/config"
	"go.uber.org/fx"
)

// Clock reports the current instant.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns the wall clock.
func System() Clock { return systemClock{} }

// BusinessDay is the calendar of the business: it turns instants into
// YYYY-MM-DD dates in the configured timezone.
type BusinessDay struct {
	clock Clock
	loc   *time.Location
}

func NewBusinessDay(c Clock, loc *time.Location) *BusinessDay {
	if c == nil {
		c = System()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &BusinessDay{clock: c, loc: loc}
}

// Today returns today's date in the business timezone.
func (d *BusinessDay) Today() string {
	return d.clock.Now().In(d.loc).Format(time.DateOnly)
}

// Now returns the current instant.
func (d *BusinessDay) Now() time.Time {
	return d.clock.Now()
}

var Module = fx.Module("clock",
	fx.Provide(
		System,
		func(c Clock, cfg config.Config) *BusinessDay {
			return NewBusinessDay(c, cfg.Location())
		},
	),
)
