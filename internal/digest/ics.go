package digest

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	ical "github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/spockmay/bainbridge-now/internal/storage"
)

const productID = "-//bainbridge-now//digest//EN"

// uidNamespace scopes the generated event UIDs.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/spockmay/bainbridge-now"))

// RenderICS exports the digest window of now as an iCalendar document.
func (r *Renderer) RenderICS(ctx context.Context, now time.Time) ([]byte, error) {
	sections, err := r.Sections(ctx, now)
	if err != nil {
		return nil, err
	}
	return EncodeICS(sections, now)
}

// EncodeICS writes one VEVENT per distinct event. UIDs only depend on the
// event content, so the same event keeps its UID between runs and stored
// duplicates are written once.
func EncodeICS(sections []Section, stamp time.Time) ([]byte, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	written := make(map[string]struct{})
	for _, s := range sections {
		for _, e := range s.Events {
			uid := EventUID(e)
			if _, ok := written[uid]; ok {
				continue
			}
			written[uid] = struct{}{}
			cal.Children = append(cal.Children, toICal(e, uid, stamp))
		}
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, fmt.Errorf("failed to encode calendar: %w", err)
	}
	return buf.Bytes(), nil
}

func toICal(e storage.Event, uid string, stamp time.Time) *ical.Component {
	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, e.StartTime.UTC())
	if e.HasEnd() {
		ve.Props.SetDateTime(ical.PropDateTimeEnd, e.EndTime.UTC())
	}
	ve.Props.SetText(ical.PropSummary, e.Name)
	ve.Props.SetText(ical.PropCategories, e.EventType)
	if where := e.Where(); where != "" {
		ve.Props.SetText(ical.PropLocation, where)
	}
	if e.Notes != "" {
		ve.Props.SetText(ical.PropDescription, e.Notes)
	}
	if e.URL != "" {
		p := ical.NewProp(ical.PropURL)
		p.Value = e.URL
		ve.Props.Set(p)
	}
	return ve
}

// EventUID derives a stable UID from the event name, category and start.
func EventUID(e storage.Event) string {
	key := e.EventType + "\x00" + e.Name + "\x00" + strconv.FormatInt(e.StartTime.Unix(), 10)
	return uuid.NewSHA1(uidNamespace, []byte(key)).String() + "@bainbridge-now"
}
