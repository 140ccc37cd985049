package view

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	appLog "societycal/internal/log"
	"societycal/internal/model"
)

const gridDays = 42

// CalendarRenderer draws a month grid of six weeks starting on the
// configured week start.
type CalendarRenderer struct {
	base
	opts Options

	month     time.Time
	cellWidth int
}

func NewCalendarRenderer(opts Options) *CalendarRenderer {
	r := &CalendarRenderer{opts: opts}
	r.place = r.inGrid
	return r
}

func (r *CalendarRenderer) Kind() model.ViewKind { return model.ViewCalendar }

func (r *CalendarRenderer) Init(region *Region, feed Feed) error {
	if err := r.init(region, feed); err != nil {
		return err
	}
	r.mu.Lock()
	r.month = monthStart(r.opts.now())
	r.mu.Unlock()
	r.Resize()
	return nil
}

func (r *CalendarRenderer) Resize() {
	w, _ := r.size()
	r.mu.Lock()
	r.cellWidth = w / 7
	r.mu.Unlock()
}

func (r *CalendarRenderer) Prev()  { r.shift(-1) }
func (r *CalendarRenderer) Next()  { r.shift(1) }
func (r *CalendarRenderer) Today() { r.SetMonth(r.opts.now()) }

// SetMonth shows the month containing t.
func (r *CalendarRenderer) SetMonth(t time.Time) {
	if r.opts.Location != nil {
		t = t.In(r.opts.Location)
	}
	r.mu.Lock()
	r.month = monthStart(t)
	r.mu.Unlock()
}

func (r *CalendarRenderer) shift(months int) {
	r.mu.Lock()
	r.month = r.month.AddDate(0, months, 0)
	r.mu.Unlock()
}

// Days lists the grid's days in order.
func (r *CalendarRenderer) Days() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.daysLocked()
}

func (r *CalendarRenderer) daysLocked() []time.Time {
	start := gridStart(r.month, r.opts.WeekStart)
	rule, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: start,
		Count:   gridDays,
	})
	if err != nil {
		appLog.Error("calendar grid rule failed", err)
		return nil
	}
	return rule.All()
}

// inGrid keeps events that overlap the visible six weeks. Callers hold mu.
func (r *CalendarRenderer) inGrid(records []model.EventRecord) []model.EventRecord {
	if r.month.IsZero() {
		return nil
	}
	from := gridStart(r.month, r.opts.WeekStart)
	to := from.AddDate(0, 0, gridDays)
	out := make([]model.EventRecord, 0, len(records))
	for _, rec := range records {
		if rec.StartAt.Before(to) && !rec.EndAt.Before(from) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out
}

// Render draws the grid. Each cell shows the day number and as many event
// titles as fit its width. A zero-width layout draws nothing.
func (r *CalendarRenderer) Render() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cellWidth < 4 || r.month.IsZero() {
		return ""
	}

	days := r.daysLocked()
	items := r.itemsLocked()
	byDay := make(map[string][]model.EventRecord)
	for _, rec := range items {
		for d := dayStart(rec.StartAt); !d.After(rec.EndAt); d = d.AddDate(0, 0, 1) {
			byDay[d.Format("2006-01-02")] = append(byDay[d.Format("2006-01-02")], rec)
		}
	}

	cw := r.cellWidth
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", center(r.month.Format("January 2006"), cw*7))
	for i := 0; i < 7; i++ {
		wd := time.Weekday((int(r.opts.WeekStart) + i) % 7)
		b.WriteString(pad(wd.String()[:3], cw))
	}
	b.WriteString("\n")

	for week := 0; week < len(days)/7; week++ {
		row := days[week*7 : week*7+7]
		maxLines := 1
		for _, d := range row {
			if n := len(byDay[d.Format("2006-01-02")]) + 1; n > maxLines {
				maxLines = n
			}
		}
		for line := 0; line < maxLines; line++ {
			for _, d := range row {
				var cell string
				if line == 0 {
					cell = fmt.Sprintf("%2d", d.Day())
					if d.Month() != r.month.Month() {
						cell = fmt.Sprintf("(%d)", d.Day())
					}
				} else if evs := byDay[d.Format("2006-01-02")]; line-1 < len(evs) {
					cell = "·" + evs[line-1].Title
				}
				b.WriteString(pad(cell, cw))
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

func dayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// gridStart is the week-start day on or before the first of month.
func gridStart(month time.Time, ws time.Weekday) time.Time {
	back := (int(month.Weekday()) - int(ws) + 7) % 7
	return month.AddDate(0, 0, -back)
}

// pad truncates or right-pads s to exactly w runes, keeping one space as a
// column gap.
func pad(s string, w int) string {
	if w <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) > w-1 {
		if w-1 <= 0 {
			return strings.Repeat(" ", w)
		}
		rs = rs[:w-1]
	}
	return string(rs) + strings.Repeat(" ", w-len(rs))
}

func center(s string, w int) string {
	n := len([]rune(s))
	if n >= w {
		return s
	}
	return strings.Repeat(" ", (w-n)/2) + s
}
