package view

import (
	"fmt"
	"strings"

	"societycal/internal/model"
)

// Detail is the event detail surface opened by selecting an item.
type Detail struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Location    string `json:"location"`
	Fee         string `json:"fee"`
	Description string `json:"description"`
	Hosts       string `json:"hosts"`
	Capacity    string `json:"capacity"`
	EventType   string `json:"event_type"`
	MemberOnly  bool   `json:"member_only"`

	Registration Registration `json:"registration"`
}

// Registration is what the detail surface hands to the register action.
type Registration struct {
	EventID     string  `json:"event_id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
}

// FormatFee renders 0 as "Free" and anything else with two decimals.
func FormatFee(fee float64, currency string) string {
	if fee == 0 {
		return model.FreeLabel
	}
	return fmt.Sprintf("%s%.2f", currency, fee)
}

// NewDetail fills the detail surface from rec.
func NewDetail(rec model.EventRecord, currency string) Detail {
	when := rec.StartAt.Format("15:04")
	if isAllDay(rec) {
		when = "Not specified"
	}
	eventType := rec.EventType
	if eventType == "" {
		eventType = "Event Type"
	}
	return Detail{
		ID:          rec.ID,
		Title:       rec.Title,
		Date:        rec.StartAt.Format("2006-01-02"),
		Time:        when,
		Location:    rec.Location,
		Fee:         FormatFee(rec.Fee, currency),
		Description: rec.Description,
		Hosts:       rec.Hosts(),
		Capacity:    rec.Capacity,
		EventType:   eventType,
		MemberOnly:  rec.MemberOnly,
		Registration: Registration{
			EventID:     rec.ID,
			Name:        rec.Title,
			Price:       rec.Fee,
			Description: rec.Description,
		},
	}
}

// String renders the surface as labelled lines.
func (d Detail) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", d.Title)
	fmt.Fprintf(&b, "  Type:        %s\n", d.EventType)
	fmt.Fprintf(&b, "  Date:        %s\n", d.Date)
	fmt.Fprintf(&b, "  Time:        %s\n", d.Time)
	fmt.Fprintf(&b, "  Location:    %s\n", d.Location)
	fmt.Fprintf(&b, "  Fee:         %s\n", d.Fee)
	fmt.Fprintf(&b, "  Hosts:       %s\n", d.Hosts)
	fmt.Fprintf(&b, "  Capacity:    %s\n", d.Capacity)
	if d.MemberOnly {
		b.WriteString("  Members only\n")
	}
	fmt.Fprintf(&b, "  %s\n", d.Description)
	return b.String()
}
