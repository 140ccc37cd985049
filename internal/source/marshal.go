package source

import (
	"encoding/json"
	"time"

	"societycal/internal/model"
)

// WireEvent is the JSON form served by the local web front end. It uses the
// server's field names so that Parse(Marshal(records)) gives back records.
type WireEvent struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Date          string   `json:"date"`
	StartDatetime string   `json:"start_datetime"`
	EndDatetime   string   `json:"end_datetime"`
	Location      string   `json:"location"`
	Fee           float64  `json:"fee"`
	Description   string   `json:"description"`
	Capacity      string   `json:"capacity"`
	MemberOnly    bool     `json:"member_only"`
	EventType     string   `json:"event_type"`
	SocietyNames  []string `json:"society_names"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
}

// Envelope is the {"count": n, "results": [...]} response shape.
type Envelope struct {
	Count   int         `json:"count"`
	Results []WireEvent `json:"results"`
}

// ToWire converts a record to its JSON form.
func ToWire(r model.EventRecord) WireEvent {
	hosts := r.HostNames
	if hosts == nil {
		hosts = []string{}
	}
	return WireEvent{
		ID:            r.ID,
		Name:          r.Title,
		Date:          r.StartAt.Format("2006-01-02"),
		StartDatetime: r.StartAt.Format(time.RFC3339),
		EndDatetime:   r.EndAt.Format(time.RFC3339),
		Location:      r.Location,
		Fee:           r.Fee,
		Description:   r.Description,
		Capacity:      r.Capacity,
		MemberOnly:    r.MemberOnly,
		EventType:     r.EventType,
		SocietyNames:  hosts,
		Latitude:      r.Latitude,
		Longitude:     r.Longitude,
	}
}

// Marshal encodes records as an envelope.
func Marshal(records []model.EventRecord) ([]byte, error) {
	env := Envelope{Count: len(records), Results: make([]WireEvent, 0, len(records))}
	for _, r := range records {
		env.Results = append(env.Results, ToWire(r))
	}
	return json.Marshal(env)
}
