package postprocess

import (
	"strings"

	"github.com/spockmay/bainbridge-now/internal/storage"
)

// Rules are applied to every event of one source before it is stored.
// Empty fields leave the adapter's value unchanged.
type Rules struct {
	EventType string
	ZipCode   string
	URL       string
	// Keywords keep only events whose name contains at least one of them,
	// compared case-insensitively. No keywords means no filtering.
	Keywords []string
}

func (r Rules) IsZero() bool {
	return r.EventType == "" && r.ZipCode == "" && r.URL == "" && len(r.Keywords) == 0
}

// Apply filters events by keywords and then applies the overrides.
// If rules are empty, Apply returns events unchanged.
func Apply(events []storage.Event, rules Rules) []storage.Event {
	if len(events) == 0 || rules.IsZero() {
		return events
	}

	words := make([]string, 0, len(rules.Keywords))
	for _, w := range rules.Keywords {
		if s := strings.TrimSpace(w); s != "" {
			words = append(words, strings.ToLower(s))
		}
	}

	out := make([]storage.Event, 0, len(events))
	for _, ev := range events {
		if len(words) > 0 && !containsAny(strings.ToLower(ev.Name), words) {
			continue
		}
		if rules.EventType != "" {
			ev.EventType = rules.EventType
		}
		if rules.ZipCode != "" {
			ev.ZipCode = rules.ZipCode
		}
		if rules.URL != "" {
			ev.URL = rules.URL
		}
		out = append(out, ev)
	}
	return out
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
