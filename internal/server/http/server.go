package internalhttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	log "github.com/sirupsen/logrus"
	"github.com/spockmay/bainbridge-now/internal/app"
	"github.com/spockmay/bainbridge-now/internal/digest"
	"github.com/spockmay/bainbridge-now/internal/storage"
)

const (
	dateLayout = "2006-01-02"

	errIncorrectDate       = "incorrect date"
	errInternalServerError = "internal server error"
)

type Config struct {
	Host string
	Port int
}

type Server struct {
	srv      *http.Server
	addr     string
	app      *app.App
	renderer *digest.Renderer
	now      func() time.Time
}

// EventsResponse is the body of GET /events.
type EventsResponse struct {
	From   time.Time       `json:"from"`
	To     time.Time       `json:"to"`
	Events []storage.Event `json:"events"`
}

func NewServer(config Config, app *app.App, renderer *digest.Renderer) *Server {
	addr := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	return &Server{
		addr:     addr,
		srv:      &http.Server{Addr: addr, ReadHeaderTimeout: 10 * time.Second},
		app:      app,
		renderer: renderer,
		now:      time.Now,
	}
}

// Handler returns the routes of the server wrapped with request logging.
func (s *Server) Handler() (http.Handler, error) {
	mux := runtime.NewServeMux()
	routes := []struct {
		path    string
		handler runtime.HandlerFunc
	}{
		{path: "/digest", handler: s.handleDigest},
		{path: "/calendar", handler: s.handleCalendar},
		{path: "/events", handler: s.handleEvents},
		{path: "/events/{type}", handler: s.handleEvents},
		{path: "/categories", handler: s.handleCategories},
		{path: "/healthz", handler: s.handleHealth},
		{path: "/metrics", handler: func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			s.app.Metrics().Handler().ServeHTTP(w, r)
		}},
	}
	for _, route := range routes {
		if err := mux.HandlePath(http.MethodGet, route.path, route.handler); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", route.path, err)
		}
	}
	return loggingMiddleware(mux), nil
}

func (s *Server) Start(_ context.Context) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}
	s.srv.Handler = handler

	log.Printf("starting http server on %s", s.addr)
	err = s.srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleDigest(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	page, err := s.renderer.Render(r.Context(), s.now())
	if err != nil {
		log.Errorf("failed to render digest: %v", err)
		http.Error(w, errInternalServerError, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	cal, err := s.renderer.RenderICS(r.Context(), s.now())
	if err != nil {
		log.Errorf("failed to render calendar: %v", err)
		http.Error(w, errInternalServerError, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	_, _ = w.Write(cal)
}

// handleEvents serves the events of [from:to] as JSON. Both bounds are
// dates in the digest zone and default to the current digest window.
// Events of the whole `to` day are included.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, pathParams map[string]string) {
	loc := s.renderer.Location()
	from, to := digest.Window(s.now(), loc)
	query := r.URL.Query()

	var err error
	if v := query.Get("from"); v != "" {
		if from, err = time.ParseInLocation(dateLayout, v, loc); err != nil {
			http.Error(w, errIncorrectDate, http.StatusBadRequest)
			return
		}
	}
	if v := query.Get("to"); v != "" {
		if to, err = time.ParseInLocation(dateLayout, v, loc); err != nil {
			http.Error(w, errIncorrectDate, http.StatusBadRequest)
			return
		}
		to = to.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	eventType := pathParams["type"]
	if eventType == "" {
		eventType = query.Get("type")
	}

	events, err := s.app.GetEvents(r.Context(), from, to, eventType)
	if errors.Is(err, storage.ErrIncorrectRange) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		log.Errorf("failed to get events: %v", err)
		http.Error(w, errInternalServerError, http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []storage.Event{}
	}
	writeJSON(w, EventsResponse{From: from, To: to, Events: events})
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	categories, err := s.app.GetCategories(r.Context())
	if err != nil {
		log.Errorf("failed to get categories: %v", err)
		http.Error(w, errInternalServerError, http.StatusInternalServerError)
		return
	}
	if categories == nil {
		categories = []string{}
	}
	writeJSON(w, categories)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request, _ map[string]string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("failed to write response: %v", err)
	}
}

func getIP(req *http.Request) (string, error) {
	ip, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return "", fmt.Errorf("userip: %q is not IP:port", req.RemoteAddr)
	}

	if parsed := net.ParseIP(ip); parsed == nil {
		return "", fmt.Errorf("userip: %q is not IP:port", req.RemoteAddr)
	}
	return ip, nil
}
