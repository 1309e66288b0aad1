package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusinessDayUsesTimezone(t *testing.T) {
	loc, err := time.LoadLocation("America/Toronto")
	require.NoError(t, err)

	// 2026-02-23 03:30 UTC is still the 22nd in Toronto.
	frozen := NewFrozen(time.Date(2026, 2, 23, 3, 30, 0, 0, time.UTC))
	day := NewBusinessDay(frozen, loc)
	assert.Equal(t, "2026-02-22", day.Today())

	frozen.Advance(2 * time.Hour)
	assert.Equal(t, "2026-02-23", day.Today())
}

func TestBusinessDayDefaultsToUTC(t *testing.T) {
	frozen := NewFrozen(time.Date(2026, 2, 23, 3, 30, 0, 0, time.UTC))
	assert.Equal(t, "2026-02-23", NewBusinessDay(frozen, nil).Today())
}

func TestFrozenSetBusinessDate(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	frozen := NewFrozen(time.Now())
	require.NoError(t, frozen.SetBusinessDate("2026-12-31", loc))
	assert.Equal(t, "2026-12-31", NewBusinessDay(frozen, loc).Today())
	assert.Equal(t, time.UTC, frozen.Now().Location())

	assert.Error(t, frozen.SetBusinessDate("31/12/2026", loc))
	assert.Equal(t, "2026-12-31", NewBusinessDay(frozen, loc).Today())
}
