package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	appLog "societycal/internal/log"
	"societycal/internal/model"
)

// ErrNoDate marks a record without any usable date; such records are
// skipped rather than failing the whole collection.
var ErrNoDate = errors.New("source: event has no date")

var clockLayouts = []string{"15:04:05", "15:04"}

var localDatetimeLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// Normalize converts one raw event into a record. Wall-clock values are
// interpreted in loc.
func Normalize(raw RawEvent, loc *time.Location) (model.EventRecord, error) {
	if loc == nil {
		loc = time.Local
	}

	rec := model.EventRecord{
		ID:          asString(raw.ID),
		Title:       firstNonEmpty(asString(raw.Name), asString(raw.Title), model.PlaceholderTitle),
		Location:    firstNonEmpty(asString(raw.Location), asString(raw.Address), model.PlaceholderLocation),
		Fee:         asFee(raw.Fee),
		Description: firstNonEmpty(asString(raw.Description), model.PlaceholderDescription),
		Capacity:    asCapacity(raw.Capacity, raw.Limit),
		MemberOnly:  asBool(raw.MemberOnly),
		EventType:   asEventType(raw.EventType),
	}

	hosts := asNames(raw.Society)
	if len(hosts) == 0 {
		hosts = asNames(raw.SocietyNames)
	}
	rec.HostNames = hosts

	lat, latOK := asFloat(raw.Latitude)
	lon, lonOK := asFloat(raw.Longitude)
	if latOK && lonOK {
		rec.Latitude, rec.Longitude = &lat, &lon
	}

	start, end, err := eventTimes(raw, loc)
	if err != nil {
		return model.EventRecord{}, err
	}
	rec.StartAt, rec.EndAt = start, end

	return rec, nil
}

// NormalizeAll normalizes every event, logging and skipping records that
// cannot be placed in time.
func NormalizeAll(raws []RawEvent, loc *time.Location) []model.EventRecord {
	out := make([]model.EventRecord, 0, len(raws))
	for _, raw := range raws {
		rec, err := Normalize(raw, loc)
		if err != nil {
			appLog.Warn("skipping event", "id", asString(raw.ID), "error", err.Error())
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Parse decodes and normalizes a full response body.
func Parse(body []byte, loc *time.Location) ([]model.EventRecord, error) {
	raws, _, err := Decode(body)
	if err != nil {
		return nil, err
	}
	return NormalizeAll(raws, loc), nil
}

// eventTimes builds start and end. A date-only event spans the whole day;
// a timed event without an end ends when it starts. End is clamped to start.
func eventTimes(raw RawEvent, loc *time.Location) (time.Time, time.Time, error) {
	startDT := asString(raw.StartDatetime)
	day := datePart(firstNonEmpty(startDT, asString(raw.Date)))
	if day == "" {
		return time.Time{}, time.Time{}, ErrNoDate
	}
	date, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("event date %q: %w", day, err)
	}

	var start time.Time
	timed := false
	if st, ok := parseClock(asString(raw.StartTime)); ok {
		start = atClock(date, st)
		timed = true
	} else if t, ok := parseDatetime(startDT, loc); ok {
		start = t
		timed = true
		date = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	} else {
		start = date
	}

	var end time.Time
	if t, ok := parseDatetime(asString(raw.EndDatetime), loc); ok {
		end = t
	} else if et, ok := parseClock(asString(raw.EndTime)); ok {
		end = atClock(date, et)
	} else if timed {
		end = start
	} else {
		end = date.Add(24*time.Hour - time.Second)
	}

	if end.Before(start) {
		end = start
	}
	return start, end, nil
}

func datePart(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, "T "); i >= 0 {
		s = s[:i]
	}
	return s
}

func parseClock(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return time.Duration(t.Hour())*time.Hour +
				time.Duration(t.Minute())*time.Minute +
				time.Duration(t.Second())*time.Second, true
		}
	}
	return 0, false
}

func atClock(date time.Time, d time.Duration) time.Time {
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	return time.Date(date.Year(), date.Month(), date.Day(), h, m, s, 0, date.Location())
}

// parseDatetime accepts RFC 3339 (converted into loc) or a zone-less
// wall-clock value (interpreted in loc). A bare date is not a datetime.
func parseDatetime(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" || !strings.ContainsAny(s, "T ") {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), true
	}
	for _, layout := range localDatetimeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// asString reads a JSON string or number as text.
func asString(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func asFloat(raw json.RawMessage) (float64, bool) {
	if isNull(raw) {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	s := strings.TrimSpace(asString(raw))
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func asBool(raw json.RawMessage) bool {
	if isNull(raw) {
		return false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	v, _ := strconv.ParseBool(strings.TrimSpace(asString(raw)))
	return v
}

// asFee treats null, "", "Free" and unparsable text as zero. Currency
// symbols are stripped from string fees.
func asFee(raw json.RawMessage) float64 {
	if f, ok := asFloat(raw); ok {
		return f
	}
	s := strings.TrimSpace(asString(raw))
	if s == "" || strings.EqualFold(s, model.FreeLabel) {
		return 0
	}
	s = strings.TrimLeft(s, "£$€ ")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// asCapacity uses capacity, then limit. Zero and empty mean unlimited.
func asCapacity(vals ...json.RawMessage) string {
	for _, raw := range vals {
		s := strings.TrimSpace(asString(raw))
		if s == "" || s == "0" {
			continue
		}
		return s
	}
	return model.UnlimitedCapacity
}

// asEventType reduces "('sports', 'Sports')", ["sports","Sports"] and
// "sports" to "sports".
func asEventType(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) == 0 {
			return ""
		}
		return asEventType(arr[0])
	}

	s := strings.TrimSpace(asString(raw))
	if strings.HasPrefix(s, "(") || strings.HasPrefix(s, "[") {
		s = strings.Trim(s, "()[]")
		if i := strings.Index(s, ","); i >= 0 {
			s = s[:i]
		}
	}
	return strings.Trim(strings.TrimSpace(s), `'"`)
}

// asNames reads a host list whose entries are names, ids or
// {"name": ...} objects.
func asNames(raw json.RawMessage) []string {
	if isNull(raw) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		if s := asString(raw); s != "" {
			return []string{s}
		}
		return nil
	}
	var out []string
	for _, it := range items {
		var obj struct {
			Name json.RawMessage `json:"name"`
		}
		name := asString(it)
		if name == "" && json.Unmarshal(it, &obj) == nil {
			name = asString(obj.Name)
		}
		if strings.TrimSpace(name) != "" {
			out = append(out, name)
		}
	}
	return out
}
