package sqlstorage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver
	log "github.com/sirupsen/logrus"
	"github.com/spockmay/bainbridge-now/internal/storage"
	_ "modernc.org/sqlite" // sqlite driver
)

var (
	ErrConnectionFailed = errors.New("failed to connect")
	ErrUnknownDriver    = errors.New("unknown database driver")
	ErrNotConnected     = errors.New("storage is not connected")
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	sqliteSchema = "CREATE TABLE IF NOT EXISTS events (" +
		"id INTEGER PRIMARY KEY, name TEXT NOT NULL, start_datetime TEXT NOT NULL, end_datetime TEXT, " +
		"url TEXT, event_type TEXT NOT NULL, zip_code TEXT NOT NULL, promoted INTEGER NOT NULL DEFAULT 0, " +
		"notes TEXT, location TEXT)"
	postgresSchema = "CREATE TABLE IF NOT EXISTS events (" +
		"id SERIAL PRIMARY KEY, name TEXT NOT NULL, start_datetime TEXT NOT NULL, end_datetime TEXT, " +
		"url TEXT, event_type TEXT NOT NULL, zip_code TEXT NOT NULL, promoted INTEGER NOT NULL DEFAULT 0, " +
		"notes TEXT, location TEXT)"
	startIndex = "CREATE INDEX IF NOT EXISTS events_start_datetime_idx ON events (start_datetime)"

	selectColumns = "SELECT id, name, start_datetime, end_datetime, url, event_type, zip_code, promoted, notes, location " +
		"FROM events "
)

type Config struct {
	Driver   string
	Path     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
}

type Storage struct {
	driver string
	dsn    string
	db     *sqlx.DB
}

// eventRow mirrors the events table. Timestamps are kept as text.
type eventRow struct {
	ID        int64          `db:"id"`
	Name      string         `db:"name"`
	StartTime string         `db:"start_datetime"`
	EndTime   sql.NullString `db:"end_datetime"`
	URL       sql.NullString `db:"url"`
	EventType string         `db:"event_type"`
	ZipCode   string         `db:"zip_code"`
	Promoted  int64          `db:"promoted"`
	Notes     sql.NullString `db:"notes"`
	Location  sql.NullString `db:"location"`
}

func New(config Config) *Storage {
	return &Storage{driver: config.Driver, dsn: DSN(config)}
}

// DSN builds the data source name for the configured driver.
func DSN(config Config) string {
	if config.Driver == DriverPostgres {
		return fmt.Sprintf(
			"sslmode=disable host=%s port=%d dbname=%s user=%s password=%s",
			config.Host, config.Port, config.Database, config.Username, config.Password)
	}
	return config.Path
}

func (s *Storage) Connect(ctx context.Context) error {
	if s.driver != DriverSQLite && s.driver != DriverPostgres {
		return fmt.Errorf("%w: %q", ErrUnknownDriver, s.driver)
	}
	db, err := sqlx.ConnectContext(ctx, s.driver, s.dsn)
	if err != nil {
		log.Errorf("failed to connect: %v", err)
		return ErrConnectionFailed
	}
	if s.driver == DriverSQLite {
		// Single local file, single writer.
		db.SetMaxOpenConns(1)
	}
	s.db = db

	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		s.db = nil
		return err
	}
	return nil
}

func (s *Storage) Close(_ context.Context) error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}
	return nil
}

func (s *Storage) Insert(ctx context.Context, e *storage.Event) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	conn, err := s.conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	var end sql.NullString
	if e.HasEnd() {
		end = sql.NullString{String: storage.FormatTimestamp(e.EndTime), Valid: true}
	}
	var promoted int64
	if e.Promoted {
		promoted = 1
	}

	err = conn.GetContext(
		ctx,
		&e.ID,
		s.db.Rebind("INSERT INTO events(name, start_datetime, end_datetime, url, event_type, zip_code, promoted, notes, location) "+
			"VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id"),
		e.Name,
		storage.FormatTimestamp(e.StartTime),
		end,
		nullString(e.URL),
		e.EventType,
		e.ZipCode,
		promoted,
		nullString(e.Notes),
		nullString(e.Location),
	)
	if err != nil {
		return fmt.Errorf("failed to insert event %q: %w", e.Name, err)
	}
	return nil
}

// Query selects events in range [from:to].
func (s *Storage) Query(ctx context.Context, from, to time.Time, eventType string) ([]storage.Event, error) {
	if from.After(to) {
		return nil, storage.ErrIncorrectRange
	}
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	query := strings.Builder{}
	query.WriteString(selectColumns)
	query.WriteString("WHERE start_datetime >= ? AND start_datetime <= ? ")
	args := []interface{}{storage.FormatTimestamp(from), storage.FormatTimestamp(to)}
	if eventType != "" {
		query.WriteString("AND event_type = ? ")
		args = append(args, eventType)
	}
	query.WriteString("ORDER BY start_datetime, id")

	var rows []eventRow
	if err := conn.SelectContext(ctx, &rows, s.db.Rebind(query.String()), args...); err != nil {
		return nil, fmt.Errorf("failed to select events: %w", err)
	}

	events := make([]storage.Event, 0, len(rows))
	for _, row := range rows {
		e, err := row.toEvent()
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func (s *Storage) Categories(ctx context.Context) ([]string, error) {
	conn, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	categories := make([]string, 0)
	err = conn.SelectContext(ctx, &categories, "SELECT DISTINCT event_type FROM events ORDER BY event_type")
	if err != nil {
		return nil, fmt.Errorf("failed to select categories: %w", err)
	}
	return categories, nil
}

func (s *Storage) ensureSchema(ctx context.Context) error {
	schema := sqliteSchema
	if s.driver == DriverPostgres {
		schema = postgresSchema
	}
	for _, statement := range []string{schema, startIndex} {
		if _, err := s.db.ExecContext(ctx, statement); err != nil {
			return fmt.Errorf("failed to prepare schema: %w", err)
		}
	}
	return nil
}

// conn acquires a dedicated connection for one operation; callers must close it.
func (s *Storage) conn(ctx context.Context) (*sqlx.Conn, error) {
	if s.db == nil {
		return nil, ErrNotConnected
	}
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return conn, nil
}

func (r eventRow) toEvent() (storage.Event, error) {
	start, err := storage.ParseTimestamp(r.StartTime)
	if err != nil {
		return storage.Event{}, fmt.Errorf("event %d: %w", r.ID, err)
	}
	e := storage.Event{
		ID:        r.ID,
		Name:      r.Name,
		StartTime: start,
		URL:       r.URL.String,
		EventType: r.EventType,
		ZipCode:   r.ZipCode,
		Promoted:  r.Promoted != 0,
		Notes:     r.Notes.String,
		Location:  r.Location.String,
	}
	if r.EndTime.Valid && r.EndTime.String != "" {
		if e.EndTime, err = storage.ParseTimestamp(r.EndTime.String); err != nil {
			return storage.Event{}, fmt.Errorf("event %d: %w", r.ID, err)
		}
	}
	return e, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
