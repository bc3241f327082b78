package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
	"github.com/spockmay/bainbridge-now/internal/storage"
	"github.com/spockmay/bainbridge-now/internal/util"
)

const (
	historicalEventType       = "COMMUNITY"
	defaultHistoricalSelector = "main article > div > div"
	pastEventsMarker          = "PAST EVENT"
)

// historicalLayouts match "September 10, 2025 7pm" once the weekday and "@" are removed.
var historicalLayouts = []string{
	"January 2, 2006 3pm",
	"January 2, 2006 3:04pm",
	"January 2, 2006",
}

// Historical reads a page that lists events as an h4 title followed by a
// date paragraph and an optional paragraph with a bold subtitle.
// Everything after the "PAST EVENT" marker is ignored.
type Historical struct {
	name     string
	url      string
	selector string
	loc      *time.Location
	client   *http.Client
}

func NewHistorical(c Config, loc *time.Location) *Historical {
	return &Historical{
		name:     sourceName(c, TypeHistorical),
		url:      c.URL,
		selector: defaultString(c.ContentSelector, defaultHistoricalSelector),
		loc:      loc,
		client:   util.NewHTTPClient(c.Timeout),
	}
}

func (s *Historical) Name() string { return s.name }

func (s *Historical) Fetch(ctx context.Context) ([]storage.Event, error) {
	doc, err := fetchDocument(ctx, s.client, s.url)
	if err != nil {
		return nil, err
	}
	container := doc.Find(s.selector).First()
	if container.Length() == 0 {
		return nil, fmt.Errorf("%s: event container %q: %w", s.name, s.selector, ErrLayoutChanged)
	}

	children := container.Children()
	events := make([]storage.Event, 0)
	for i := 0; i < children.Length(); i++ {
		el := children.Eq(i)
		if strings.HasPrefix(strings.TrimSpace(el.Text()), pastEventsMarker) {
			break
		}
		style, _ := el.Attr("style")
		if goquery.NodeName(el) != "h4" || strings.Contains(style, "center") {
			continue
		}
		title := collapseSpace(el.Text())
		if title == "" {
			continue
		}

		var start time.Time
		var startErr error = storage.ErrMissingStart
		if next := children.Eq(i + 1); goquery.NodeName(next) == "p" {
			start, startErr = s.parseDate(next.Text())
			i++
			if next := children.Eq(i + 1); goquery.NodeName(next) == "p" {
				if subtitle := subtitleOf(next); subtitle != "" {
					title = title + ": " + subtitle
				}
				i++
			}
		}
		if startErr != nil {
			log.WithField("source", s.name).Warnf("skipping %q: %v", title, startErr)
			continue
		}

		e, err := storage.NewEvent(start, title, historicalEventType, storage.NoZipCode, storage.WithURL(s.url))
		if err != nil {
			log.WithField("source", s.name).Warnf("skipping %q: %v", title, err)
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// parseDate reads values like "Wednesday, September 10, 2025 @ 7pm".
func (s *Historical) parseDate(text string) (time.Time, error) {
	value := collapseSpace(text)
	if _, rest, ok := strings.Cut(value, ","); ok {
		value = rest
	}
	value = strings.ToLower(collapseSpace(strings.ReplaceAll(value, "@", "")))
	value = strings.ReplaceAll(value, " pm", "pm")
	value = strings.ReplaceAll(value, " am", "am")
	for _, layout := range historicalLayouts {
		if t, err := storage.ParseLocal(layout, value, s.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date %q", text)
}

// subtitleOf returns the first sentence of the bold text in p.
func subtitleOf(p *goquery.Selection) string {
	bold := p.Find("b, strong").First()
	if bold.Length() == 0 {
		return ""
	}
	first, _, _ := strings.Cut(collapseSpace(bold.Text()), ".")
	return strings.TrimSpace(first)
}
