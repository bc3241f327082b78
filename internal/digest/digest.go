package digest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/spockmay/bainbridge-now/internal/storage"
)

const DefaultHTMLPath = "output.html"

type Config struct {
	HTMLPath string
	// ICSPath enables the calendar export of the window when set.
	ICSPath string
	Zone    string
}

// Section is one category of the digest. Empty categories have no section.
type Section struct {
	Category string
	Events   []storage.Event
}

func (s Section) Title() string {
	return capitalize(s.Category)
}

// Renderer builds the upcoming events digest from the store.
type Renderer struct {
	storage storage.Storage
	loc     *time.Location
}

func NewRenderer(s storage.Storage, loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{storage: s, loc: loc}
}

func (r *Renderer) Location() *time.Location {
	return r.loc
}

// Sections queries every known category for the window of now.
func (r *Renderer) Sections(ctx context.Context, now time.Time) ([]Section, error) {
	from, to := Window(now, r.loc)
	categories, err := r.storage.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}
	sections := make([]Section, 0, len(categories))
	for _, category := range categories {
		events, err := r.storage.Query(ctx, from, to, category)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s events: %w", category, err)
		}
		if len(events) == 0 {
			continue
		}
		sections = append(sections, Section{Category: category, Events: events})
	}
	return sections, nil
}

// Render returns the HTML digest for the window of now.
func (r *Renderer) Render(ctx context.Context, now time.Time) ([]byte, error) {
	sections, err := r.Sections(ctx, now)
	if err != nil {
		return nil, err
	}
	return r.RenderSections(sections)
}

func (r *Renderer) RenderSections(sections []Section) ([]byte, error) {
	view := make([]sectionView, 0, len(sections))
	for _, s := range sections {
		sv := sectionView{Title: s.Title(), Events: make([]eventView, 0, len(s.Events))}
		for _, e := range s.Events {
			sv.Events = append(sv.Events, eventView{
				Name:     e.Name,
				When:     e.When(r.loc),
				Where:    e.Where(),
				Notes:    e.Notes,
				URL:      e.URL,
				Promoted: e.Promoted,
			})
		}
		view = append(view, sv)
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("failed to render digest: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile stores a rendered document at path.
func WriteFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write digest: %w", err)
	}
	return nil
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}
