package tournament

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
)

func TestSpecificWindow_Phase(t *testing.T) {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	w, err := NewSpecificWindow(start, end, time.UTC)
	require.NoError(t, err)

	assert.Equal(t, StatusWaiting, w.Phase(start.Add(-time.Second)))
	assert.Equal(t, StatusActive, w.Phase(start))
	assert.Equal(t, StatusActive, w.Phase(end.Add(-time.Nanosecond)))
	assert.Equal(t, StatusEnded, w.Phase(end))
	assert.False(t, w.IsRecurring())

	resolved, err := w.Resolve(end.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, w, resolved)
	assert.Equal(t, start.UnixMilli(), w.StartMillis())
}

func TestSpecificWindow_Rejects(t *testing.T) {
	now := time.Now()

	_, err := NewSpecificWindow(now, now, time.UTC)
	assert.ErrorIs(t, err, shared.ErrInvalidWindow)

	_, err = NewSpecificWindow(time.Time{}, now, time.UTC)
	assert.ErrorIs(t, err, shared.ErrInvalidWindow)
}

func TestRecurringWindow_Resolve(t *testing.T) {
	// 2026-03-10 is a Tuesday.
	now := time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		timeline Timeline
		start    time.Time
		end      time.Time
	}{
		{TimelineHourly, time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC), time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)},
		{TimelineDaily, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)},
		{TimelineWeekly, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)},
		{TimelineMonthly, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(string(tt.timeline), func(t *testing.T) {
			w, err := MustRecurringWindow(tt.timeline, time.UTC).Resolve(now)
			require.NoError(t, err)

			assert.True(t, tt.start.Equal(w.Start()), "start %s", w.Start())
			assert.True(t, tt.end.Equal(w.End()), "end %s", w.End())
			assert.Equal(t, StatusActive, w.Phase(now))
		})
	}
}

func TestCronWindow_EndsAfterLength(t *testing.T) {
	w, err := NewCronWindow("0 18 * * *", 2*time.Hour, time.UTC)
	require.NoError(t, err)

	during := time.Date(2026, 3, 10, 19, 0, 0, 0, time.UTC)
	resolved, err := w.Resolve(during)
	require.NoError(t, err)
	assert.True(t, time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC).Equal(resolved.Start()))
	assert.True(t, time.Date(2026, 3, 10, 20, 0, 0, 0, time.UTC).Equal(resolved.End()))
	assert.Equal(t, StatusActive, resolved.Phase(during))

	after := time.Date(2026, 3, 10, 21, 0, 0, 0, time.UTC)
	resolved, err = w.Resolve(after)
	require.NoError(t, err)
	assert.Equal(t, StatusEnded, resolved.Phase(after))
}

func TestCronWindow_Rejects(t *testing.T) {
	_, err := NewCronWindow("not a cron", time.Hour, time.UTC)
	assert.True(t, shared.IsValidation(err))

	_, err = NewCronWindow("0 18 * * *", 0, time.UTC)
	assert.ErrorIs(t, err, shared.ErrInvalidWindow)
}

func TestParseTimeline(t *testing.T) {
	tl, err := ParseTimeline(" weekly ")
	require.NoError(t, err)
	assert.Equal(t, TimelineWeekly, tl)

	_, err = ParseTimeline("fortnightly")
	assert.Error(t, err)
}

func TestWindow_Remaining(t *testing.T) {
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	w, err := NewSpecificWindow(start, start.Add(time.Hour), time.UTC)
	require.NoError(t, err)

	d, ok := w.Remaining(start.Add(-time.Minute))
	assert.True(t, ok)
	assert.Equal(t, time.Minute, d)

	d, ok = w.Remaining(start.Add(45 * time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 15*time.Minute, d)

	_, ok = w.Remaining(start.Add(2 * time.Hour))
	assert.False(t, ok)
}
