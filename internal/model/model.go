package model

import (
	"fmt"
	"strings"
	"time"
)

// Display placeholders for optional event fields. They are also the values
// normalization produces, so feeding them back in yields the same record.
const (
	PlaceholderTitle       = "No name provided"
	PlaceholderLocation    = "Not specified"
	PlaceholderDescription = "No description available."
	UnlimitedCapacity      = "Unlimited"
	NoHosts                = "TBA"
	FreeLabel              = "Free"
)

// EventRecord is one event as every view sees it, independent of which
// response shape the server used. Records are rebuilt on every fetch and
// never mutated in place.
type EventRecord struct {
	ID    string
	Title string

	// StartAt / EndAt are wall-clock times in the display timezone.
	// EndAt is never before StartAt.
	StartAt time.Time
	EndAt   time.Time

	Location    string
	Fee         float64
	Description string
	Capacity    string

	// HostNames keeps server order; empty means "TBA".
	HostNames []string

	// EventType is a single label, e.g. "sports".
	EventType string

	MemberOnly bool

	// Latitude / Longitude are both set or both nil.
	Latitude  *float64
	Longitude *float64
}

// HasCoordinates reports whether the record can be placed on a map.
func (e EventRecord) HasCoordinates() bool {
	return e.Latitude != nil && e.Longitude != nil
}

// IsFree reports whether the fee displays as "Free".
func (e EventRecord) IsFree() bool {
	return e.Fee == 0
}

// Hosts returns the display string for the host list.
func (e EventRecord) Hosts() string {
	if len(e.HostNames) == 0 {
		return NoHosts
	}
	return strings.Join(e.HostNames, ", ")
}

// ViewKind names one of the interchangeable event views.
type ViewKind string

const (
	ViewCalendar ViewKind = "calendar"
	ViewList     ViewKind = "list"
	ViewMap      ViewKind = "map"
)

// AllViews lists the views in switcher order.
var AllViews = []ViewKind{ViewCalendar, ViewList, ViewMap}

// ParseViewKind accepts a view name case-insensitively.
func ParseViewKind(s string) (ViewKind, error) {
	switch ViewKind(strings.ToLower(strings.TrimSpace(s))) {
	case ViewCalendar:
		return ViewCalendar, nil
	case ViewList:
		return ViewList, nil
	case ViewMap:
		return ViewMap, nil
	}
	return "", fmt.Errorf("unknown view %q (want calendar, list or map)", s)
}

// SearchedLocation is the last geocoded "search on map" result.
type SearchedLocation struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Name string  `json:"name"`
}
