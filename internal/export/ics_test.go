package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"societycal/internal/model"
)

func ptr(f float64) *float64 { return &f }

func sample() []model.EventRecord {
	return []model.EventRecord{
		{
			ID:          "12",
			Title:       "Chess Night",
			StartAt:     time.Date(2025, 3, 4, 18, 0, 0, 0, time.UTC),
			EndAt:       time.Date(2025, 3, 4, 21, 0, 0, 0, time.UTC),
			Location:    "Union Bar",
			Fee:         2.5,
			Description: "Bring a board.",
			Capacity:    "40",
			HostNames:   []string{"Chess Society"},
			EventType:   "social",
			Latitude:    ptr(51.5246),
			Longitude:   ptr(-0.1340),
		},
		{
			ID:          "13",
			Title:       "Open Day",
			StartAt:     time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
			EndAt:       time.Date(2025, 3, 5, 23, 59, 59, 0, time.UTC),
			Location:    model.PlaceholderLocation,
			Description: model.PlaceholderDescription,
			Capacity:    model.UnlimitedCapacity,
			MemberOnly:  true,
		},
	}
}

func parse(t *testing.T, records []model.EventRecord) *ical.Calendar {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteICS(&buf, records, Options{
		Name:     "Society events",
		Host:     "example.ac.uk",
		Currency: "£",
		Now:      time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}))
	cal, err := ical.ParseCalendar(strings.NewReader(buf.String()))
	require.NoError(t, err)
	return cal
}

func TestWriteICSTimedEvent(t *testing.T) {
	cal := parse(t, sample())
	events := cal.Events()
	require.Len(t, events, 2)

	ev := events[0]
	assert.Equal(t, "event-12@example.ac.uk", ev.Id())
	assert.Equal(t, "Chess Night", ev.GetProperty(ical.ComponentPropertySummary).Value)
	assert.Equal(t, "Union Bar", ev.GetProperty(ical.ComponentPropertyLocation).Value)
	assert.Equal(t, "SOCIAL", ev.GetProperty(ical.ComponentPropertyCategories).Value)

	start, err := ev.GetStartAt()
	require.NoError(t, err)
	assert.True(t, start.Equal(time.Date(2025, 3, 4, 18, 0, 0, 0, time.UTC)))
	end, err := ev.GetEndAt()
	require.NoError(t, err)
	assert.True(t, end.Equal(time.Date(2025, 3, 4, 21, 0, 0, 0, time.UTC)))

	geo := ev.GetProperty(ical.ComponentPropertyGeo)
	require.NotNil(t, geo)
	assert.True(t, strings.HasPrefix(geo.Value, "51.524600;"))

	desc := ev.GetProperty(ical.ComponentPropertyDescription).Value
	assert.Contains(t, desc, "Bring a board.")
	assert.Contains(t, desc, "Fee: £2.50")
	assert.Contains(t, desc, "Hosts: Chess Society")
}

func TestWriteICSAllDayEvent(t *testing.T) {
	cal := parse(t, sample())
	ev := cal.Events()[1]

	start := ev.GetProperty(ical.ComponentPropertyDtStart)
	require.NotNil(t, start)
	assert.Equal(t, "20250305", start.Value)
	end := ev.GetProperty(ical.ComponentPropertyDtEnd)
	require.NotNil(t, end)
	assert.Equal(t, "20250306", end.Value)

	assert.Nil(t, ev.GetProperty(ical.ComponentPropertyGeo))
	assert.Nil(t, ev.GetProperty(ical.ComponentPropertyCategories))
	desc := ev.GetProperty(ical.ComponentPropertyDescription).Value
	assert.Contains(t, desc, "Fee: Free")
	assert.Contains(t, desc, "Hosts: TBA")
	assert.Contains(t, desc, "Members only")
}

func TestWriteICSEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteICS(&buf, nil, Options{}))
	out := buf.String()
	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Contains(t, out, "PRODID:"+productID)
	assert.NotContains(t, out, "BEGIN:VEVENT")
}
