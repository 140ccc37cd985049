// Package export writes the events a view currently shows as an iCalendar
// feed, so a filtered selection can be subscribed to from other calendars.
package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"societycal/internal/model"
	"societycal/internal/view"
)

const productID = "-//societycal//events export//EN"

// Options describe the generated calendar.
type Options struct {
	// Name becomes X-WR-CALNAME.
	Name string
	// Host is the UID domain, e.g. "societies.example.ac.uk".
	Host string
	// Currency prefixes paid fees in descriptions.
	Currency string
	// Now stamps DTSTAMP; zero means time.Now.
	Now time.Time
}

// WriteICS serializes records as VEVENTs. Date-only events become all-day
// events; everything else keeps its start and end instants.
func WriteICS(w io.Writer, records []model.EventRecord, opts Options) error {
	cal := Build(records, opts)
	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return fmt.Errorf("write ics: %w", err)
	}
	return nil
}

// Build assembles the calendar without writing it.
func Build(records []model.EventRecord, opts Options) *ical.Calendar {
	stamp := opts.Now
	if stamp.IsZero() {
		stamp = time.Now()
	}
	host := opts.Host
	if host == "" {
		host = "societycal.local"
	}

	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)
	if opts.Name != "" {
		cal.SetXWRCalName(opts.Name)
	}

	for _, rec := range records {
		ev := cal.AddEvent(fmt.Sprintf("event-%s@%s", rec.ID, host))
		ev.SetDtStampTime(stamp.UTC())
		if allDay(rec) {
			ev.SetAllDayStartAt(rec.StartAt)
			ev.SetAllDayEndAt(rec.StartAt.AddDate(0, 0, 1))
		} else {
			ev.SetStartAt(rec.StartAt.UTC())
			ev.SetEndAt(rec.EndAt.UTC())
		}
		ev.SetSummary(rec.Title)
		ev.SetLocation(rec.Location)
		ev.SetDescription(description(rec, opts.Currency))
		if rec.EventType != "" {
			ev.SetProperty(ical.ComponentPropertyCategories, strings.ToUpper(rec.EventType))
		}
		if rec.HasCoordinates() {
			ev.SetProperty(ical.ComponentPropertyGeo, fmt.Sprintf("%f;%f", *rec.Latitude, *rec.Longitude))
		}
	}
	return cal
}

func description(rec model.EventRecord, currency string) string {
	var b strings.Builder
	b.WriteString(rec.Description)
	fmt.Fprintf(&b, "\n\nFee: %s", view.FormatFee(rec.Fee, currency))
	fmt.Fprintf(&b, "\nHosts: %s", rec.Hosts())
	fmt.Fprintf(&b, "\nCapacity: %s", rec.Capacity)
	if rec.MemberOnly {
		b.WriteString("\nMembers only")
	}
	return b.String()
}

func allDay(rec model.EventRecord) bool {
	s, e := rec.StartAt, rec.EndAt
	return s.Hour() == 0 && s.Minute() == 0 && s.Second() == 0 &&
		e.Hour() == 23 && e.Minute() == 59 && e.Second() == 59 &&
		e.Sub(s) < 24*time.Hour
}
