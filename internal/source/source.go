package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spockmay/bainbridge-now/internal/storage"
)

const (
	TypeICS        = "ics"
	TypeJSON       = "json"
	TypeHistorical = "historical"
	TypeParks      = "parks"
	TypeLLM        = "llm"
)

// ErrLayoutChanged is returned when a page no longer has the block an adapter reads.
var ErrLayoutChanged = errors.New("expected page content not found")

// Source produces candidate events from one external feed or page.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]storage.Event, error)
}

// Result is the outcome of fetching one source: either events or a failure.
type Result struct {
	Source string
	Events []storage.Event
	Err    error
}

func (r Result) Failed() bool {
	return r.Err != nil
}

type LLMConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

type Config struct {
	Name    string
	Type    string
	URL     string
	Timeout time.Duration

	// ics
	HorizonDays int
	// json
	CacheBust bool
	// parks
	Pages int
	// historical and llm
	ContentSelector string
	// llm
	LinkSelector string
	LLM          LLMConfig
}

// NewFromConfig builds the adapter for c. Naive source times are read in loc.
func NewFromConfig(c Config, loc *time.Location) (Source, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("source %q: url is empty", c.Name)
	}
	if loc == nil {
		loc = time.UTC
	}
	switch c.Type {
	case TypeICS:
		return NewICS(c, loc), nil
	case TypeJSON:
		return NewJSONFeed(c, loc), nil
	case TypeHistorical:
		return NewHistorical(c, loc), nil
	case TypeParks:
		return NewParks(c, loc), nil
	case TypeLLM:
		if c.LLM.APIKey == "" {
			return nil, fmt.Errorf("source %q: llm api key is empty", c.Name)
		}
		return NewLLM(c, loc), nil
	default:
		return nil, fmt.Errorf("unknown source type: %s", c.Type)
	}
}

func sourceName(c Config, typ string) string {
	return defaultString(c.Name, typ)
}
