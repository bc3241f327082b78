package internalhttp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/spockmay/bainbridge-now/internal/app"
	"github.com/spockmay/bainbridge-now/internal/digest"
	"github.com/spockmay/bainbridge-now/internal/storage"
	memorystorage "github.com/spockmay/bainbridge-now/internal/storage/memory"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	loc, err := storage.LoadZone(storage.DefaultZone)
	require.NoError(t, err)

	stor := memorystorage.New()
	for _, e := range []struct {
		name      string
		start     time.Time
		eventType string
	}{
		{name: "Fall Theater Night", start: time.Date(2025, 9, 5, 18, 0, 0, 0, loc), eventType: "SCHOOL"},
		{name: "Trustees Meeting", start: time.Date(2025, 9, 9, 19, 0, 0, 0, loc), eventType: "GOVERNMENT"},
		{name: "Fish Fry", start: time.Date(2025, 9, 20, 17, 0, 0, 0, loc), eventType: "COMMUNITY"},
	} {
		event, err := storage.NewEvent(e.start, e.name, e.eventType, "44023")
		require.NoError(t, err)
		require.NoError(t, stor.Insert(context.Background(), &event))
	}

	s := NewServer(Config{Host: "127.0.0.1", Port: 0}, app.New(stor, nil), digest.NewRenderer(stor, loc))
	s.now = func() time.Time { return time.Date(2025, 9, 3, 12, 0, 0, 0, loc) }
	handler, err := s.Handler()
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url) //nolint:noctx
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func eventNames(t *testing.T, body []byte) []string {
	t.Helper()
	var resp EventsResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	names := make([]string, 0, len(resp.Events))
	for _, e := range resp.Events {
		names = append(names, e.Name)
	}
	return names
}

func TestServer(t *testing.T) {
	srv := newTestServer(t)

	t.Run("digest", func(t *testing.T) {
		resp, body := get(t, srv.URL+"/digest")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
		require.Contains(t, string(body), "<h1>Government Events:</h1>")
		require.Contains(t, string(body), "Fall Theater Night")
		require.NotContains(t, string(body), "Fish Fry")
	})

	t.Run("calendar", func(t *testing.T) {
		resp, body := get(t, srv.URL+"/calendar")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, resp.Header.Get("Content-Type"), "text/calendar")
		require.Contains(t, string(body), "BEGIN:VCALENDAR")
		require.Contains(t, string(body), "SUMMARY:Trustees Meeting")
	})

	t.Run("events in the current window", func(t *testing.T) {
		resp, body := get(t, srv.URL+"/events")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, []string{"Fall Theater Night", "Trustees Meeting"}, eventNames(t, body))
	})

	t.Run("events by range and type", func(t *testing.T) {
		_, body := get(t, srv.URL+"/events?from=2025-09-01&to=2025-09-30")
		require.Equal(t, []string{"Fall Theater Night", "Trustees Meeting", "Fish Fry"}, eventNames(t, body))

		_, body = get(t, srv.URL+"/events/COMMUNITY?from=2025-09-01&to=2025-09-30")
		require.Equal(t, []string{"Fish Fry"}, eventNames(t, body))

		_, body = get(t, srv.URL+"/events?from=2025-09-09&to=2025-09-09")
		require.Equal(t, []string{"Trustees Meeting"}, eventNames(t, body))

		_, body = get(t, srv.URL+"/events?type=SPORTS")
		require.Empty(t, eventNames(t, body))
	})

	t.Run("bad requests", func(t *testing.T) {
		resp, _ := get(t, srv.URL+"/events?from=yesterday")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, _ = get(t, srv.URL+"/events?from=2025-09-30&to=2025-09-01")
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, _ = get(t, srv.URL+"/unknown")
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("categories", func(t *testing.T) {
		_, body := get(t, srv.URL+"/categories")
		var categories []string
		require.NoError(t, json.Unmarshal(body, &categories))
		require.Equal(t, []string{"COMMUNITY", "GOVERNMENT", "SCHOOL"}, categories)
	})

	t.Run("health and metrics", func(t *testing.T) {
		resp, body := get(t, srv.URL+"/healthz")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, "ok", string(body))

		resp, body = get(t, srv.URL+"/metrics")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Contains(t, string(body), "bainbridge_now_ingest_duration_seconds")
	})
}

func TestGetIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.7:51234"
	ip, err := getIP(r)
	require.NoError(t, err)
	require.Equal(t, "10.0.0.7", ip)

	r.RemoteAddr = "nowhere"
	_, err = getIP(r)
	require.Error(t, err)
}
