package view

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"societycal/internal/model"
)

// ListRenderer lists one week of events grouped by day.
type ListRenderer struct {
	base
	opts Options

	week  time.Time
	width int
}

func NewListRenderer(opts Options) *ListRenderer {
	r := &ListRenderer{opts: opts}
	r.place = r.inWeek
	return r
}

func (r *ListRenderer) Kind() model.ViewKind { return model.ViewList }

func (r *ListRenderer) Init(region *Region, feed Feed) error {
	if err := r.init(region, feed); err != nil {
		return err
	}
	r.mu.Lock()
	r.week = weekStart(r.opts.now(), r.opts.WeekStart)
	r.mu.Unlock()
	r.Resize()
	return nil
}

func (r *ListRenderer) Resize() {
	w, _ := r.size()
	r.mu.Lock()
	r.width = w
	r.mu.Unlock()
}

func (r *ListRenderer) Prev()  { r.shift(-7) }
func (r *ListRenderer) Next()  { r.shift(7) }
func (r *ListRenderer) Today() { r.SetWeek(r.opts.now()) }

// SetWeek shows the week containing t.
func (r *ListRenderer) SetWeek(t time.Time) {
	if r.opts.Location != nil {
		t = t.In(r.opts.Location)
	}
	r.mu.Lock()
	r.week = weekStart(t, r.opts.WeekStart)
	r.mu.Unlock()
}

func (r *ListRenderer) shift(days int) {
	r.mu.Lock()
	r.week = r.week.AddDate(0, 0, days)
	r.mu.Unlock()
}

func (r *ListRenderer) inWeek(records []model.EventRecord) []model.EventRecord {
	if r.week.IsZero() {
		return nil
	}
	to := r.week.AddDate(0, 0, 7)
	out := make([]model.EventRecord, 0, len(records))
	for _, rec := range records {
		if rec.StartAt.Before(to) && !rec.EndAt.Before(r.week) {
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartAt.Before(out[j].StartAt) })
	return out
}

func (r *ListRenderer) Render() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.width <= 0 || r.week.IsZero() {
		return ""
	}

	last := r.week.AddDate(0, 0, 6)
	var b strings.Builder
	fmt.Fprintf(&b, "%s - %s\n", r.week.Format("2 Jan"), last.Format("2 Jan 2006"))

	items := r.itemsLocked()
	if len(items) == 0 {
		b.WriteString("No events to display\n")
		return b.String()
	}

	day := ""
	for _, rec := range items {
		if d := rec.StartAt.Format("Monday 2 January 2006"); d != day {
			day = d
			b.WriteString(clip(day, r.width) + "\n")
		}
		when := "all-day"
		if !isAllDay(rec) {
			when = rec.StartAt.Format("15:04")
			if rec.EndAt.After(rec.StartAt) {
				when += " - " + rec.EndAt.Format("15:04")
			}
		}
		line := fmt.Sprintf("  %-13s %s  @ %s  %s", when, rec.Title, rec.Location, FormatFee(rec.Fee, r.opts.Currency))
		b.WriteString(clip(line, r.width) + "\n")
	}
	return b.String()
}

func weekStart(t time.Time, ws time.Weekday) time.Time {
	d := dayStart(t)
	back := (int(d.Weekday()) - int(ws) + 7) % 7
	return d.AddDate(0, 0, -back)
}

func isAllDay(rec model.EventRecord) bool {
	s, e := rec.StartAt, rec.EndAt
	return s.Hour() == 0 && s.Minute() == 0 && s.Second() == 0 &&
		e.Hour() == 23 && e.Minute() == 59 && e.Second() == 59
}

func clip(s string, w int) string {
	rs := []rune(s)
	if len(rs) <= w {
		return s
	}
	if w <= 1 {
		return string(rs[:w])
	}
	return string(rs[:w-1]) + "…"
}
