package clock

import (
	"sync"
	"time"
)

// Frozen is a Clock that reads the same instant until it is moved. It is
// safe to share between goroutines saving invoices concurrently.
type Frozen struct {
	mu  sync.RWMutex
	now time.Time
}

func NewFrozen(t time.Time) *Frozen {
	return &Frozen{now: t.UTC()}
}

func (c *Frozen) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *Frozen) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// SetBusinessDate moves the clock to noon of date (YYYY-MM-DD) in loc, so
// a BusinessDay in loc reports date as today.
func (c *Frozen) SetBusinessDate(date string, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(time.DateOnly, date, loc)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.now = day.Add(12 * time.Hour).UTC()
	c.mu.Unlock()
	return nil
}
