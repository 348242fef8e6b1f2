package tournament

import (
	"fmt"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/alem-hub/tournament-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// TIME WINDOW
// ══════════════════════════════════════════════════════════════════════════════

// Timeline - вид расписания турнира.
type Timeline string

const (
	// TimelineSpecific - фиксированные даты начала и конца.
	TimelineSpecific Timeline = "SPECIFIC"

	// TimelineHourly и далее - повторяющиеся периоды календаря.
	TimelineHourly  Timeline = "HOURLY"
	TimelineDaily   Timeline = "DAILY"
	TimelineWeekly  Timeline = "WEEKLY"
	TimelineMonthly Timeline = "MONTHLY"
	TimelineYearly  Timeline = "YEARLY"

	// TimelineCron - начало по cron-выражению, фиксированная длительность.
	TimelineCron Timeline = "CRON"
)

// Периоды календаря как cron-выражения. Неделя начинается в понедельник.
var timelineExpressions = map[Timeline]string{
	TimelineHourly:  "0 * * * *",
	TimelineDaily:   "0 0 * * *",
	TimelineWeekly:  "0 0 * * 1",
	TimelineMonthly: "0 0 1 * *",
	TimelineYearly:  "0 0 1 1 *",
}

// ParseTimeline разбирает название расписания без учёта регистра.
func ParseTimeline(s string) (Timeline, error) {
	tl := Timeline(strings.ToUpper(strings.TrimSpace(s)))
	if tl == TimelineSpecific || tl == TimelineCron {
		return tl, nil
	}
	if _, ok := timelineExpressions[tl]; ok {
		return tl, nil
	}
	return "", shared.WrapError("tournament", "ParseTimeline", shared.ErrInvalidInput,
		"unknown timeline", fmt.Errorf("%q", s))
}

// TimeWindow - расписание турнира и вычисленные границы текущего окна.
// Значение неизменяемое: Resolve возвращает новое окно.
type TimeWindow struct {
	timeline   Timeline
	location   *time.Location
	expression string
	length     time.Duration
	start      time.Time
	end        time.Time
}

// NewSpecificWindow создаёт окно с фиксированными границами.
func NewSpecificWindow(start, end time.Time, loc *time.Location) (TimeWindow, error) {
	if loc == nil {
		loc = time.UTC
	}
	if start.IsZero() || end.IsZero() || !end.After(start) {
		return TimeWindow{}, shared.ErrInvalidWindow
	}
	return TimeWindow{
		timeline: TimelineSpecific,
		location: loc,
		start:    start.In(loc),
		end:      end.In(loc),
	}, nil
}

// NewRecurringWindow создаёт окно, повторяющееся каждый период календаря.
func NewRecurringWindow(tl Timeline, loc *time.Location) (TimeWindow, error) {
	expr, ok := timelineExpressions[tl]
	if !ok {
		return TimeWindow{}, shared.WrapError("tournament", "NewRecurringWindow", shared.ErrInvalidInput,
			"timeline is not recurring", fmt.Errorf("%s", tl))
	}
	if loc == nil {
		loc = time.UTC
	}
	return TimeWindow{timeline: tl, location: loc, expression: expr}, nil
}

// MustRecurringWindow как NewRecurringWindow, но паникует при ошибке.
func MustRecurringWindow(tl Timeline, loc *time.Location) TimeWindow {
	w, err := NewRecurringWindow(tl, loc)
	if err != nil {
		panic(err)
	}
	return w
}

// NewCronWindow создаёт окно, которое открывается по cron-выражению
// и длится length.
func NewCronWindow(expr string, length time.Duration, loc *time.Location) (TimeWindow, error) {
	if !gronx.New().IsValid(expr) {
		return TimeWindow{}, shared.WrapError("tournament", "NewCronWindow", shared.ErrInvalidFormat,
			"invalid cron expression", fmt.Errorf("%q", expr))
	}
	if length <= 0 {
		return TimeWindow{}, shared.ErrInvalidWindow
	}
	if loc == nil {
		loc = time.UTC
	}
	return TimeWindow{timeline: TimelineCron, location: loc, expression: expr, length: length}, nil
}

// Timeline возвращает вид расписания.
func (w TimeWindow) Timeline() Timeline { return w.timeline }

// Location возвращает часовой пояс окна.
func (w TimeWindow) Location() *time.Location {
	if w.location == nil {
		return time.UTC
	}
	return w.location
}

// Expression возвращает cron-выражение повторяющегося окна.
func (w TimeWindow) Expression() string { return w.expression }

// Start возвращает начало текущего окна.
func (w TimeWindow) Start() time.Time { return w.start }

// End возвращает конец текущего окна.
func (w TimeWindow) End() time.Time { return w.end }

// IsRecurring сообщает, пересчитываются ли границы при каждом UpdateStatus.
func (w TimeWindow) IsRecurring() bool {
	return w.timeline != TimelineSpecific
}

// Resolve вычисляет границы окна, актуального в момент now.
// Для фиксированного окна возвращает его без изменений.
func (w TimeWindow) Resolve(now time.Time) (TimeWindow, error) {
	if !w.IsRecurring() {
		return w, nil
	}

	ref := now.In(w.Location())
	start, err := gronx.PrevTickBefore(w.expression, ref, true)
	if err != nil {
		return w, fmt.Errorf("resolve window start: %w", err)
	}

	var end time.Time
	if w.timeline == TimelineCron {
		end = start.Add(w.length)
	} else {
		end, err = gronx.NextTickAfter(w.expression, ref, false)
		if err != nil {
			return w, fmt.Errorf("resolve window end: %w", err)
		}
	}

	w.start = start.In(w.Location())
	w.end = end.In(w.Location())
	return w, nil
}

// Phase выводит статус турнира из границ окна.
func (w TimeWindow) Phase(now time.Time) Status {
	switch {
	case now.Before(w.start):
		return StatusWaiting
	case now.Before(w.end):
		return StatusActive
	default:
		return StatusEnded
	}
}

// Remaining возвращает время до ближайшей границы окна.
// false, если окно уже закрыто.
func (w TimeWindow) Remaining(now time.Time) (time.Duration, bool) {
	switch w.Phase(now) {
	case StatusWaiting:
		return w.start.Sub(now), true
	case StatusActive:
		return w.end.Sub(now), true
	default:
		return 0, false
	}
}

// StartMillis возвращает начало окна в миллисекундах Unix.
func (w TimeWindow) StartMillis() int64 { return w.start.UnixMilli() }

// EndMillis возвращает конец окна в миллисекундах Unix.
func (w TimeWindow) EndMillis() int64 { return w.end.UnixMilli() }
