package memorystorage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/spockmay/bainbridge-now/internal/storage"
)

type Storage struct {
	mu    sync.RWMutex
	data  []storage.Event
	idSeq int64
}

func New() *Storage {
	return &Storage{data: make([]storage.Event, 0)}
}

func (s *Storage) Connect(_ context.Context) error {
	return nil
}

func (s *Storage) Close(_ context.Context) error {
	return nil
}

func (s *Storage) Insert(_ context.Context, e *storage.Event) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.idSeq++
	e.ID = s.idSeq
	stored := *e
	stored.StartTime = stored.StartTime.UTC()
	if stored.HasEnd() {
		stored.EndTime = stored.EndTime.UTC()
	}
	s.data = append(s.data, stored)
	return nil
}

func (s *Storage) Query(_ context.Context, from, to time.Time, eventType string) ([]storage.Event, error) {
	if from.After(to) {
		return nil, storage.ErrIncorrectRange
	}

	events := make([]storage.Event, 0)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, event := range s.data {
		if event.StartTime.Before(from) || event.StartTime.After(to) {
			continue
		}
		if eventType != "" && event.EventType != eventType {
			continue
		}
		events = append(events, event)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].StartTime.Before(events[j].StartTime)
	})
	return events, nil
}

func (s *Storage) Categories(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	categories := make([]string, 0)
	for _, event := range s.data {
		if _, ok := seen[event.EventType]; ok {
			continue
		}
		seen[event.EventType] = struct{}{}
		categories = append(categories, event.EventType)
	}
	sort.Strings(categories)
	return categories, nil
}
