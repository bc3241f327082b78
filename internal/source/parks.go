package source

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
	"github.com/spockmay/bainbridge-now/internal/storage"
	"github.com/spockmay/bainbridge-now/internal/util"
)

const (
	parksEventType    = "PARK"
	defaultParksPages = 3
	parksPageSize     = 25
	parksTable        = `table[width="688"][bgcolor="white"]`
	parksWaitingList  = "Waiting list"
	parksOpen         = "OPEN"
)

var parksLayouts = []string{"01/02/06 3:04 PM", "01/02/06 3 PM"}

// Parks reads the paginated program table of a park district reservation site.
type Parks struct {
	name   string
	base   string
	pages  int
	loc    *time.Location
	client *http.Client
}

func NewParks(c Config, loc *time.Location) *Parks {
	pages := c.Pages
	if pages <= 0 {
		pages = defaultParksPages
	}
	return &Parks{
		name:   sourceName(c, TypeParks),
		base:   strings.TrimRight(c.URL, "/"),
		pages:  pages,
		loc:    loc,
		client: util.NewHTTPClient(c.Timeout),
	}
}

func (s *Parks) Name() string { return s.name }

func (s *Parks) Fetch(ctx context.Context) ([]storage.Event, error) {
	events := make([]storage.Event, 0)
	for page := 1; page <= s.pages; page++ {
		pageEvents, err := s.fetchPage(ctx, page)
		if err != nil {
			if page == 1 {
				return nil, err
			}
			log.WithField("source", s.name).Warnf("stopping at page %d: %v", page, err)
			break
		}
		events = append(events, pageEvents...)
	}
	return events, nil
}

func (s *Parks) pageURL(page int) string {
	if page <= 1 {
		return s.base + "/programs/"
	}
	return s.base + "/programs/index.shtml?month=&day=&year=&list_programs=1&or=&dts=&wy=asc&num=" +
		strconv.Itoa(parksPageSize*(page-1))
}

func (s *Parks) fetchPage(ctx context.Context, page int) ([]storage.Event, error) {
	doc, err := fetchDocument(ctx, s.client, s.pageURL(page))
	if err != nil {
		return nil, err
	}
	table := doc.Find(parksTable).First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("%s: program table on page %d: %w", s.name, page, ErrLayoutChanged)
	}

	events := make([]storage.Event, 0)
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cols := row.ChildrenFiltered("td")
		if cols.Length() <= 8 {
			return
		}
		col := func(i int) string { return collapseSpace(cols.Eq(i).Text()) }

		if col(8) == parksWaitingList {
			return
		}
		link := cols.Eq(2).Find("a").First()
		name := collapseSpace(link.Text())
		href, _ := link.Attr("href")

		value := strings.TrimSpace(col(4) + " " + strings.TrimSpace(col(5)+" "+col(6)))
		start, err := s.parseStart(value)
		if err != nil {
			log.WithField("source", s.name).Warnf("skipping %q: %v", name, err)
			return
		}

		e, err := storage.NewEvent(start, name, parksEventType, storage.NoZipCode,
			storage.WithURL(resolveURL(s.base+"/", href)),
			storage.WithLocation(col(3)),
			storage.WithNotes(parksNotes(col(7), col(8))),
		)
		if err != nil {
			log.WithField("source", s.name).Warnf("skipping %q: %v", name, err)
			return
		}
		events = append(events, e)
	})
	return events, nil
}

func (s *Parks) parseStart(value string) (time.Time, error) {
	for _, layout := range parksLayouts {
		if t, err := storage.ParseLocal(layout, strings.ToUpper(value), s.loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported date %q", value)
}

// parksNotes combines the fee with the number of seats left.
func parksNotes(fee, availability string) string {
	if availability == "" || availability == parksOpen {
		return fee
	}
	return fmt.Sprintf("%s - %s seats remaining", fee, availability)
}
