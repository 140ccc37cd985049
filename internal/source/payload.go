// Package source fetches event collections from the society events API and
// normalizes the server's response shapes into model.EventRecord values.
package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedPayload means the body was neither a JSON array nor an
	// object with a "results" array. It is never reported as zero events.
	ErrMalformedPayload = errors.New("source: malformed event payload")

	// ErrFetchFailed wraps transport errors and non-2xx responses.
	ErrFetchFailed = errors.New("source: fetch failed")
)

// Shape is the classified top-level form of an events payload.
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeArray
	ShapeEnvelope
)

func (s Shape) String() string {
	switch s {
	case ShapeArray:
		return "array"
	case ShapeEnvelope:
		return "envelope"
	default:
		return "unknown"
	}
}

// envelope is the paginated form: {"count":..,"next":..,"results":[...]}.
type envelope struct {
	Results *json.RawMessage `json:"results"`
}

// Classify decides whether body is a bare array or a results envelope and
// returns the raw array. Anything else fails with ErrMalformedPayload.
func Classify(body []byte) (Shape, json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ShapeUnknown, nil, fmt.Errorf("%w: empty body", ErrMalformedPayload)
	}

	switch trimmed[0] {
	case '[':
		return ShapeArray, json.RawMessage(trimmed), nil
	case '{':
		var env envelope
		if err := json.Unmarshal(trimmed, &env); err != nil {
			return ShapeUnknown, nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if env.Results == nil {
			return ShapeUnknown, nil, fmt.Errorf("%w: object has no results field", ErrMalformedPayload)
		}
		arr := bytes.TrimSpace(*env.Results)
		if len(arr) == 0 || arr[0] != '[' {
			return ShapeUnknown, nil, fmt.Errorf("%w: results is not an array", ErrMalformedPayload)
		}
		return ShapeEnvelope, json.RawMessage(arr), nil
	default:
		return ShapeUnknown, nil, fmt.Errorf("%w: unexpected %q at top level", ErrMalformedPayload, trimmed[0])
	}
}

// RawEvent is one event as the server sent it. Fields the server types
// inconsistently are kept raw and coerced during normalization.
type RawEvent struct {
	ID    json.RawMessage `json:"id"`
	Name  json.RawMessage `json:"name"`
	Title json.RawMessage `json:"title"`

	Date          json.RawMessage `json:"date"`
	StartDatetime json.RawMessage `json:"start_datetime"`
	StartTime     json.RawMessage `json:"start_time"`
	EndTime       json.RawMessage `json:"end_time"`
	EndDatetime   json.RawMessage `json:"end_datetime"`

	Location json.RawMessage `json:"location"`
	Address  json.RawMessage `json:"address"`

	Fee         json.RawMessage `json:"fee"`
	Description json.RawMessage `json:"description"`
	Capacity    json.RawMessage `json:"capacity"`
	Limit       json.RawMessage `json:"limit"`
	MemberOnly  json.RawMessage `json:"member_only"`
	EventType   json.RawMessage `json:"event_type"`

	Society      json.RawMessage `json:"society"`
	SocietyNames json.RawMessage `json:"society_names"`

	Latitude  json.RawMessage `json:"latitude"`
	Longitude json.RawMessage `json:"longitude"`
}

// Decode classifies body and unmarshals its events.
func Decode(body []byte) ([]RawEvent, Shape, error) {
	shape, arr, err := Classify(body)
	if err != nil {
		return nil, shape, err
	}
	var events []RawEvent
	if err := json.Unmarshal(arr, &events); err != nil {
		return nil, shape, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return events, shape, nil
}
