package source

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spockmay/bainbridge-now/internal/storage"
	"github.com/stretchr/testify/require"
)

const llmAnswer = `{"events": [
  {"start_datetime": "2025-09-06T09:00:00", "end_datetime": "2025-09-06T13:00:00", "title": "Pancake Breakfast",
   "url": null, "zip_code": 44023, "location": "Bainbridge Fire Station"},
  {"start_datetime": "2025-09-07T15:00:00-04:00", "end_datetime": "", "title": "Library Book Sale",
   "url": "https://example.com/sale", "zip_code": null, "location": null},
  {"start_datetime": null, "title": "Someday Fair"}
]}`

func newLLMServer(t *testing.T, answer string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/happenings/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><div><h2><a href="/2025/09/happenings-week/">Happenings</a></h2>
<h2><a href="/2025/08/older/">Older</a></h2></div></body></html>`))
	})
	mux.HandleFunc("/2025/09/happenings-week/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><article><p>Pancake breakfast Saturday 9am to 1pm at the fire station.</p>
<p>Book sale Sunday at 3.</p></article></body></html>`))
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var req struct {
			Model          string `json:"model"`
			ResponseFormat struct {
				Type string `json:"type"`
			} `json:"response_format"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		require.Equal(t, "test-model", req.Model)
		require.Equal(t, "json_object", req.ResponseFormat.Type)
		require.Len(t, req.Messages, 2)
		require.Contains(t, req.Messages[1].Content, "Pancake breakfast Saturday")
		require.Contains(t, req.Messages[1].Content, storage.DefaultZone)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1757000000,
			"model":   "test-model",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": answer},
			}},
		})
	})
	return httptest.NewServer(mux)
}

func TestLLMFetch(t *testing.T) {
	srv := newLLMServer(t, llmAnswer)
	defer srv.Close()

	loc, err := storage.LoadZone(storage.DefaultZone)
	require.NoError(t, err)
	s, err := NewFromConfig(Config{
		Name: "maple leaf",
		Type: TypeLLM,
		URL:  srv.URL + "/happenings/",
		LLM:  LLMConfig{APIKey: "test-key", Model: "test-model", BaseURL: srv.URL + "/v1"},
	}, loc)
	require.NoError(t, err)

	events, err := s.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 2)

	breakfast := events[0]
	require.Equal(t, "Pancake Breakfast", breakfast.Name)
	require.Equal(t, "COMMUNITY", breakfast.EventType)
	require.Equal(t, "44023", breakfast.ZipCode)
	require.Equal(t, srv.URL+"/2025/09/happenings-week/", breakfast.URL)
	require.Equal(t, "Bainbridge Fire Station", breakfast.Location)
	require.True(t, time.Date(2025, 9, 6, 9, 0, 0, 0, loc).Equal(breakfast.StartTime))
	require.Equal(t, 4*time.Hour, breakfast.EndTime.Sub(breakfast.StartTime))

	sale := events[1]
	require.Equal(t, storage.NoZipCode, sale.ZipCode)
	require.Equal(t, "https://example.com/sale", sale.URL)
	require.False(t, sale.HasEnd())
}

func TestLLMBadAnswer(t *testing.T) {
	srv := newLLMServer(t, "Sorry, I can not help with that.")
	defer srv.Close()

	s := NewLLM(Config{
		URL: srv.URL + "/happenings/",
		LLM: LLMConfig{APIKey: "test-key", Model: "test-model", BaseURL: srv.URL + "/v1"},
	}, time.UTC)
	_, err := s.Fetch(context.Background())
	require.Error(t, err)
	require.True(t, strings.HasPrefix(err.Error(), TypeLLM))
}

func TestNewFromConfig(t *testing.T) {
	tests := []struct {
		config   Config
		expected interface{}
		fails    bool
	}{
		{config: Config{Type: TypeICS, URL: "calendar.ics"}, expected: &ICS{}},
		{config: Config{Type: TypeJSON, URL: "https://example.com"}, expected: &JSONFeed{}},
		{config: Config{Type: TypeHistorical, URL: "https://example.com"}, expected: &Historical{}},
		{config: Config{Type: TypeParks, URL: "https://example.com"}, expected: &Parks{}},
		{config: Config{Type: TypeLLM, URL: "https://example.com"}, fails: true},
		{config: Config{Type: "rss", URL: "https://example.com"}, fails: true},
		{config: Config{Type: TypeICS}, fails: true},
	}
	for _, tt := range tests {
		s, err := NewFromConfig(tt.config, nil)
		if tt.fails {
			require.Error(t, err, tt.config.Type)
			continue
		}
		require.NoError(t, err)
		require.IsType(t, tt.expected, s)
	}
}
