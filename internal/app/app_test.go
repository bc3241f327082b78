package app_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/spockmay/bainbridge-now/internal/app"
	"github.com/spockmay/bainbridge-now/internal/postprocess"
	"github.com/spockmay/bainbridge-now/internal/source"
	"github.com/spockmay/bainbridge-now/internal/storage"
	memorystorage "github.com/spockmay/bainbridge-now/internal/storage/memory"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	name   string
	events []storage.Event
	err    error
}

func (f fakeSource) Name() string { return f.name }

func (f fakeSource) Fetch(_ context.Context) ([]storage.Event, error) {
	return f.events, f.err
}

type recordingNotifier struct {
	names []string
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, source string, e storage.Event) error {
	n.names = append(n.names, fmt.Sprintf("%s/%s/%d", source, e.Name, e.ID))
	return n.err
}

var start = time.Date(2025, 9, 5, 22, 0, 0, 0, time.UTC)

func candidates(t *testing.T, names ...string) []storage.Event {
	t.Helper()
	out := make([]storage.Event, 0, len(names))
	for i, name := range names {
		e, err := storage.NewEvent(start.Add(time.Duration(i)*time.Hour), name, storage.UnknownEventType, "")
		require.NoError(t, err)
		out = append(out, e)
	}
	return out
}

func storedNames(t *testing.T, s storage.Storage, eventType string) []string {
	t.Helper()
	events, err := s.Query(context.Background(), start.AddDate(0, 0, -1), start.AddDate(0, 0, 1), eventType)
	require.NoError(t, err)
	names := make([]string, 0, len(events))
	for _, e := range events {
		names = append(names, e.Name)
	}
	return names
}

func TestIngestKeywordFilter(t *testing.T) {
	s := memorystorage.New()
	a := app.New(s, []app.Feed{{
		Source: fakeSource{name: "kenston", events: candidates(t, "Fall Theater Night", "Board Meeting", "Spring Concert")},
		Rules: postprocess.Rules{
			EventType: "SCHOOL",
			ZipCode:   "44023",
			Keywords:  []string{"theater", "play", "concert"},
		},
	}})

	results := a.Ingest(context.Background())
	require.Len(t, results, 1)
	require.False(t, results[0].Failed())
	require.Len(t, results[0].Events, 2)
	require.Equal(t, []string{"Fall Theater Night", "Spring Concert"}, storedNames(t, s, "SCHOOL"))

	events, err := a.GetEvents(context.Background(), start, start.Add(3*time.Hour), "")
	require.NoError(t, err)
	for _, e := range events {
		require.Equal(t, "44023", e.ZipCode)
		require.NotZero(t, e.ID)
	}
}

func TestIngestFailuresAreIsolated(t *testing.T) {
	s := memorystorage.New()
	invalid := storage.Event{Name: "Broken", EventType: "GOVERNMENT", ZipCode: "44023"}
	notifier := &recordingNotifier{}

	a := app.New(s, []app.Feed{
		{Source: fakeSource{name: "down", err: errors.New("connection refused")}},
		{Source: fakeSource{name: "moved", err: fmt.Errorf("container: %w", source.ErrLayoutChanged)}},
		{
			Source: fakeSource{name: "township", events: append(candidates(t, "Trustees Meeting"), invalid)},
			Rules:  postprocess.Rules{EventType: "GOVERNMENT", ZipCode: "44023"},
		},
		{
			Source: fakeSource{name: "athletics", events: candidates(t, "Kenston vs Chardon", "Senior Night")},
			Rules: postprocess.Rules{
				EventType: "SPORTS",
				URL:       "https://www.kenstonathletics.com/",
				Keywords:  []string{"vs"},
			},
		},
	}, app.WithNotifier(notifier))

	results := a.Ingest(context.Background())
	require.Len(t, results, 4)

	require.True(t, results[0].Failed())
	require.Equal(t, "down", results[0].Source)
	require.ErrorIs(t, results[1].Err, source.ErrLayoutChanged)

	require.False(t, results[2].Failed())
	require.Len(t, results[2].Events, 1)
	require.Equal(t, []string{"Trustees Meeting"}, storedNames(t, s, "GOVERNMENT"))

	require.Equal(t, []string{"Kenston vs Chardon"}, storedNames(t, s, "SPORTS"))
	require.Equal(t, "https://www.kenstonathletics.com/", results[3].Events[0].URL)

	categories, err := a.GetCategories(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"GOVERNMENT", "SPORTS"}, categories)

	require.Equal(t, []string{"township/Trustees Meeting/1", "athletics/Kenston vs Chardon/2"}, notifier.names)
}

func TestIngestAppendsDuplicates(t *testing.T) {
	s := memorystorage.New()
	notifier := &recordingNotifier{err: errors.New("queue is down")}
	a := app.New(s, []app.Feed{{
		Source: fakeSource{name: "library", events: candidates(t, "Story Time")},
		Rules:  postprocess.Rules{EventType: "LIBRARY"},
	}}, app.WithNotifier(notifier))

	a.Ingest(context.Background())
	results := a.Ingest(context.Background())
	require.Len(t, results[0].Events, 1)
	require.Equal(t, []string{"Story Time", "Story Time"}, storedNames(t, s, "LIBRARY"))
	require.Len(t, notifier.names, 2)
}
