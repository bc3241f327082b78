package app

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spockmay/bainbridge-now/internal/metrics"
	"github.com/spockmay/bainbridge-now/internal/postprocess"
	"github.com/spockmay/bainbridge-now/internal/source"
	"github.com/spockmay/bainbridge-now/internal/storage"
)

// Feed is a source together with the rules applied to its events.
type Feed struct {
	Source source.Source
	Rules  postprocess.Rules
}

// Notifier is told about every event right after it is stored.
type Notifier interface {
	Notify(ctx context.Context, source string, e storage.Event) error
}

type Option func(a *App)

func WithNotifier(n Notifier) Option {
	return func(a *App) { a.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

type App struct {
	Storage  storage.Storage
	feeds    []Feed
	notifier Notifier
	metrics  *metrics.Metrics
	now      func() time.Time
}

func New(storage storage.Storage, feeds []Feed, opts ...Option) *App {
	a := &App{Storage: storage, feeds: feeds, now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = metrics.New()
	}
	return a
}

func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Ingest fetches every feed in order, applies its rules and stores the survivors.
// Failures are logged and recorded in the results; they never stop the run.
func (a *App) Ingest(ctx context.Context) []source.Result {
	started := a.now()
	results := make([]source.Result, 0, len(a.feeds))
	for _, feed := range a.feeds {
		results = append(results, a.ingestFeed(ctx, feed))
	}
	a.metrics.RunFinished(started, a.now())
	return results
}

func (a *App) ingestFeed(ctx context.Context, feed Feed) source.Result {
	name := feed.Source.Name()
	logger := log.WithField("source", name)
	result := source.Result{Source: name}

	events, err := feed.Source.Fetch(ctx)
	if err != nil {
		result.Err = err
		if errors.Is(err, source.ErrLayoutChanged) {
			logger.Errorf("source layout changed: %v", err)
			a.metrics.Failed(name, metrics.FailureLayout)
		} else {
			logger.Warnf("failed to fetch events: %v", err)
			a.metrics.Failed(name, metrics.FailureFetch)
		}
		return result
	}
	a.metrics.Fetched(name, len(events))

	events = postprocess.Apply(events, feed.Rules)
	result.Events = make([]storage.Event, 0, len(events))
	for i := range events {
		e := events[i]
		if err := a.Storage.Insert(ctx, &e); err != nil {
			logger.WithField("event", e.Name).Errorf("failed to store event: %v", err)
			a.metrics.Failed(name, metrics.FailureInsert)
			continue
		}
		a.metrics.Stored(name, e.EventType)
		result.Events = append(result.Events, e)

		if a.notifier != nil {
			if err := a.notifier.Notify(ctx, name, e); err != nil {
				logger.WithField("event", e.Name).Warnf("failed to announce event: %v", err)
				a.metrics.Failed(name, metrics.FailureNotify)
			}
		}
	}
	logger.Infof("%d events found, %d stored", len(events), len(result.Events))
	return result
}

func (a *App) GetEvents(ctx context.Context, from, to time.Time, eventType string) ([]storage.Event, error) {
	return a.Storage.Query(ctx, from, to, eventType)
}

func (a *App) GetCategories(ctx context.Context) ([]string, error) {
	return a.Storage.Categories(ctx)
}
