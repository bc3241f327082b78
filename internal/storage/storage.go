package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmptyName          = errors.New("event name is empty")
	ErrEmptyEventType     = errors.New("event type is empty")
	ErrMissingStart       = errors.New("event start time is missing")
	ErrIncorrectEventTime = errors.New("incorrect event time")
	ErrIncorrectRange     = errors.New("range start is after range end")
)

// Storage is an append-only event store.
// Events are never updated or removed; running the same ingestion twice stores duplicates.
type Storage interface {
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	// Insert validates and appends e, setting its ID.
	Insert(ctx context.Context, e *Event) error
	// Query returns events starting in [from:to] ordered by start time.
	// An empty eventType matches every category.
	Query(ctx context.Context, from, to time.Time, eventType string) ([]Event, error)
	// Categories returns the distinct event types, sorted.
	Categories(ctx context.Context) ([]string, error)
}
