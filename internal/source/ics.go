package source

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	log "github.com/sirupsen/logrus"
	"github.com/spockmay/bainbridge-now/internal/storage"
	"github.com/spockmay/bainbridge-now/internal/util"
	"github.com/teambition/rrule-go"
)

const (
	defaultHorizonDays = 90

	icsUTCLayout   = "20060102T150405Z"
	icsLocalLayout = "20060102T150405"
	icsDateLayout  = "20060102"

	propRecurrenceID = "RECURRENCE-ID"
)

// ICS reads an iCalendar feed from a URL or a local file.
// Recurring events are expanded from now up to the configured horizon.
type ICS struct {
	name    string
	url     string
	horizon time.Duration
	loc     *time.Location
	client  *http.Client
	now     func() time.Time
}

func NewICS(c Config, loc *time.Location) *ICS {
	days := c.HorizonDays
	if days <= 0 {
		days = defaultHorizonDays
	}
	return &ICS{
		name:    sourceName(c, TypeICS),
		url:     c.URL,
		horizon: time.Duration(days) * 24 * time.Hour,
		loc:     loc,
		client:  util.NewHTTPClient(c.Timeout),
		now:     time.Now,
	}
}

func (s *ICS) Name() string { return s.name }

func (s *ICS) Fetch(ctx context.Context) ([]storage.Event, error) {
	body, err := s.read(ctx)
	if err != nil {
		return nil, err
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar %s: %w", s.url, err)
	}

	components := cal.Events()
	overridden := make(map[string][]time.Time)
	for _, ve := range components {
		rid := ve.GetProperty(propRecurrenceID)
		if rid == nil {
			continue
		}
		t, err := s.parseTime(rid.Value, rid.ICalParameters)
		if err != nil {
			continue
		}
		uid := propText(ve, ical.ComponentPropertyUniqueId)
		overridden[uid] = append(overridden[uid], t)
	}

	from := s.now()
	to := from.Add(s.horizon)
	events := make([]storage.Event, 0, len(components))
	for _, ve := range components {
		converted, err := s.convert(ve, overridden, from, to)
		if err != nil {
			log.WithField("source", s.name).Warnf("skipping calendar entry: %v", err)
			continue
		}
		events = append(events, converted...)
	}
	return events, nil
}

func (s *ICS) read(ctx context.Context) ([]byte, error) {
	if strings.HasPrefix(s.url, "http://") || strings.HasPrefix(s.url, "https://") {
		return util.Get(ctx, s.client, s.url)
	}
	body, err := os.ReadFile(strings.TrimPrefix(s.url, "file://"))
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar file: %w", err)
	}
	return body, nil
}

func (s *ICS) convert(ve *ical.VEvent, overridden map[string][]time.Time, from, to time.Time) ([]storage.Event, error) {
	name := propText(ve, ical.ComponentPropertySummary)
	startProp := ve.GetProperty(ical.ComponentPropertyDtStart)
	if startProp == nil {
		return nil, fmt.Errorf("%q: %w", name, storage.ErrMissingStart)
	}
	start, err := s.parseTime(startProp.Value, startProp.ICalParameters)
	if err != nil {
		return nil, fmt.Errorf("%q: bad start: %w", name, err)
	}
	var end time.Time
	if p := ve.GetProperty(ical.ComponentPropertyDtEnd); p != nil {
		if end, err = s.parseTime(p.Value, p.ICalParameters); err != nil {
			return nil, fmt.Errorf("%q: bad end: %w", name, err)
		}
	}

	location := propText(ve, ical.ComponentPropertyLocation)
	category := firstCategory(propText(ve, ical.ComponentPropertyCategories))
	zip := zipFromLocation(location)
	opts := []storage.Option{
		storage.WithLocation(location),
		storage.WithURL(propText(ve, ical.ComponentPropertyUrl)),
	}

	rule := propText(ve, ical.ComponentPropertyRrule)
	if rule == "" || ve.GetProperty(propRecurrenceID) != nil {
		e, err := storage.NewEvent(start, name, category, zip, withOption(opts, storage.WithEnd(end))...)
		if err != nil {
			return nil, err
		}
		return []storage.Event{e}, nil
	}

	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return nil, fmt.Errorf("%q: bad recurrence rule %q: %w", name, rule, err)
	}
	r.DTStart(start)
	set := rrule.Set{}
	set.RRule(r)
	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		for _, v := range strings.Split(p.Value, ",") {
			if ex, err := s.parseTime(v, p.ICalParameters); err == nil {
				set.ExDate(ex)
			}
		}
	}
	for _, t := range overridden[propText(ve, ical.ComponentPropertyUniqueId)] {
		set.ExDate(t)
	}

	occurrences := set.Between(from, to, true)
	events := make([]storage.Event, 0, len(occurrences))
	for _, occ := range occurrences {
		occOpts := opts
		if !end.IsZero() {
			occOpts = withOption(opts, storage.WithEnd(occ.Add(end.Sub(start))))
		}
		e, err := storage.NewEvent(occ, name, category, zip, occOpts...)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// parseTime reads DATE and DATE-TIME values. Floating values and unknown
// TZIDs are placed in the civil zone.
func (s *ICS) parseTime(value string, params map[string][]string) (time.Time, error) {
	value = strings.TrimSpace(value)
	loc := s.loc
	if tz, ok := params["TZID"]; ok && len(tz) > 0 {
		if l, err := time.LoadLocation(strings.Trim(tz[0], `"`)); err == nil {
			loc = l
		}
	}
	switch {
	case strings.HasSuffix(value, "Z"):
		return time.Parse(icsUTCLayout, value)
	case strings.Contains(value, "T"):
		return time.ParseInLocation(icsLocalLayout, value, loc)
	default:
		return time.ParseInLocation(icsDateLayout, value, loc)
	}
}

func propText(ve *ical.VEvent, prop ical.ComponentProperty) string {
	p := ve.GetProperty(prop)
	if p == nil {
		return ""
	}
	return strings.TrimSpace(unescapeText(p.Value))
}

var textUnescaper = strings.NewReplacer(`\,`, ",", `\;`, ";", `\n`, "\n", `\N`, "\n", `\\`, `\`)

func unescapeText(s string) string {
	return textUnescaper.Replace(s)
}

// firstCategory returns the first CATEGORIES entry or UnknownEventType.
func firstCategory(categories string) string {
	first, _, _ := strings.Cut(categories, ",")
	return defaultString(strings.TrimSpace(first), storage.UnknownEventType)
}

// zipFromLocation takes the last comma separated part of an address when it is numeric.
func zipFromLocation(location string) string {
	if location == "" {
		return storage.NoZipCode
	}
	parts := strings.Split(location, ",")
	last := strings.TrimSpace(parts[len(parts)-1])
	if last == "" {
		return storage.NoZipCode
	}
	for _, r := range last {
		if r < '0' || r > '9' {
			return storage.NoZipCode
		}
	}
	return last
}

func withOption(opts []storage.Option, more ...storage.Option) []storage.Option {
	out := make([]storage.Option, 0, len(opts)+len(more))
	out = append(out, opts...)
	return append(out, more...)
}
