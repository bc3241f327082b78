package storage

import (
	"fmt"
	"strings"
	"time"
)

const (
	// NoZipCode marks events whose source does not expose a zip code.
	NoZipCode = "N/A"
	// UnknownEventType is the category adapters fall back to.
	UnknownEventType = "UNKNOWN"
)

// Event is a single calendar occurrence collected from one of the sources.
// StartTime and EndTime are instants; naive source values must be placed in
// the civil zone with InZone or ParseLocal before construction.
type Event struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	URL       string    `json:"url,omitempty"`
	EventType string    `json:"eventType"`
	ZipCode   string    `json:"zipCode"`
	Location  string    `json:"location,omitempty"`
	Promoted  bool      `json:"promoted"`
	Notes     string    `json:"notes,omitempty"`
}

type Option func(e *Event)

func WithEnd(end time.Time) Option {
	return func(e *Event) { e.EndTime = end }
}

func WithURL(url string) Option {
	return func(e *Event) { e.URL = strings.TrimSpace(url) }
}

func WithLocation(location string) Option {
	return func(e *Event) { e.Location = strings.TrimSpace(location) }
}

func WithNotes(notes string) Option {
	return func(e *Event) { e.Notes = strings.TrimSpace(notes) }
}

func Promoted() Option {
	return func(e *Event) { e.Promoted = true }
}

// NewEvent builds a validated event. An empty zip code is replaced with NoZipCode.
func NewEvent(start time.Time, name, eventType, zipCode string, opts ...Option) (Event, error) {
	e := Event{
		Name:      strings.TrimSpace(name),
		StartTime: start,
		EventType: strings.TrimSpace(eventType),
		ZipCode:   strings.TrimSpace(zipCode),
	}
	for _, opt := range opts {
		opt(&e)
	}
	if e.ZipCode == "" {
		e.ZipCode = NoZipCode
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Validate checks the fields every stored event must have.
func (e Event) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return ErrEmptyName
	}
	if e.StartTime.IsZero() {
		return fmt.Errorf("event %q: %w", e.Name, ErrMissingStart)
	}
	if strings.TrimSpace(e.EventType) == "" {
		return fmt.Errorf("event %q: %w", e.Name, ErrEmptyEventType)
	}
	if e.HasEnd() && e.EndTime.Before(e.StartTime) {
		return fmt.Errorf("event %q ends before it starts: %w", e.Name, ErrIncorrectEventTime)
	}
	return nil
}

func (e Event) HasEnd() bool {
	return !e.EndTime.IsZero()
}

// When formats the occurrence time range in loc, e.g.
// "Fri Sep 5, 6:00 PM - 8:00 PM" or "Fri Sep 5, 6:00 PM - Sat Sep 6, 1:00 AM".
func (e Event) When(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	start := e.StartTime.In(loc)
	s := start.Format(displayDayLayout + ", " + displayTimeLayout)
	if !e.HasEnd() {
		return s
	}
	end := e.EndTime.In(loc)
	if sameDay(start, end) {
		return s + " - " + end.Format(displayTimeLayout)
	}
	return s + " - " + end.Format(displayDayLayout+", "+displayTimeLayout)
}

// Where joins the zip code and location for display, skipping the sentinel.
func (e Event) Where() string {
	parts := make([]string, 0, 2)
	if e.Location != "" {
		parts = append(parts, e.Location)
	}
	if e.ZipCode != "" && e.ZipCode != NoZipCode && !strings.Contains(e.Location, e.ZipCode) {
		parts = append(parts, e.ZipCode)
	}
	return strings.Join(parts, ", ")
}

func (e Event) String() string {
	b := strings.Builder{}
	fmt.Fprintf(&b, "Name:     %s\n", e.Name)
	fmt.Fprintf(&b, "Start:    %s\n", e.StartTime.Format(debugLayout))
	if e.HasEnd() {
		fmt.Fprintf(&b, "End:      %s\n", e.EndTime.Format(debugLayout))
	}
	fmt.Fprintf(&b, "Type:     %s\n", e.EventType)
	fmt.Fprintf(&b, "Zip:      %s\n", e.ZipCode)
	if e.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", e.Location)
	}
	if e.URL != "" {
		fmt.Fprintf(&b, "URL:      %s\n", e.URL)
	}
	fmt.Fprintf(&b, "Promoted: %t", e.Promoted)
	if e.Notes != "" {
		fmt.Fprintf(&b, "\nNotes:    %s", e.Notes)
	}
	return b.String()
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
