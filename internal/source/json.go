package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spockmay/bainbridge-now/internal/storage"
	"github.com/spockmay/bainbridge-now/internal/util"
	"github.com/valyala/fastjson"
)

const (
	jsonEventType    = "COMMUNITY"
	defaultEventName = "No Title"
	cacheBustParam   = "t"
)

// JSONFeed reads a {"Data": [...]} event listing.
type JSONFeed struct {
	name      string
	url       string
	cacheBust bool
	loc       *time.Location
	client    *http.Client
	now       func() time.Time
}

func NewJSONFeed(c Config, loc *time.Location) *JSONFeed {
	return &JSONFeed{
		name:      sourceName(c, TypeJSON),
		url:       c.URL,
		cacheBust: c.CacheBust,
		loc:       loc,
		client:    util.NewHTTPClient(c.Timeout),
		now:       time.Now,
	}
}

func (s *JSONFeed) Name() string { return s.name }

func (s *JSONFeed) Fetch(ctx context.Context) ([]storage.Event, error) {
	feedURL, err := s.requestURL()
	if err != nil {
		return nil, err
	}
	body, err := util.Get(ctx, s.client, feedURL)
	if err != nil {
		return nil, err
	}

	var p fastjson.Parser
	value, err := p.ParseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", s.name, err)
	}

	items := value.GetArray("Data")
	events := make([]storage.Event, 0, len(items))
	for _, item := range items {
		e, err := s.convert(item)
		if err != nil {
			log.WithField("source", s.name).Warnf("skipping feed item: %v", err)
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// requestURL adds the cache busting timestamp when enabled.
func (s *JSONFeed) requestURL() (string, error) {
	if !s.cacheBust {
		return s.url, nil
	}
	u, err := url.Parse(s.url)
	if err != nil {
		return "", fmt.Errorf("bad feed url %q: %w", s.url, err)
	}
	q := u.Query()
	q.Set(cacheBustParam, strconv.FormatInt(s.now().UnixMilli(), 10))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *JSONFeed) convert(item *fastjson.Value) (storage.Event, error) {
	name := defaultString(string(item.GetStringBytes("Name")), defaultEventName)
	start, err := storage.ParseISO(string(item.GetStringBytes("StartDate")), s.loc)
	if err != nil {
		return storage.Event{}, fmt.Errorf("%q: bad start: %w", name, err)
	}
	var end time.Time
	if v := string(item.GetStringBytes("EndDate")); v != "" {
		if end, err = storage.ParseISO(v, s.loc); err != nil {
			return storage.Event{}, fmt.Errorf("%q: bad end: %w", name, err)
		}
	}
	location := collapseSpace(string(item.GetStringBytes("Location")))
	return storage.NewEvent(start, name, jsonEventType, zipFromText(location),
		storage.WithEnd(end),
		storage.WithURL(resolveURL(s.url, string(item.GetStringBytes("URL")))),
		storage.WithLocation(location),
	)
}
