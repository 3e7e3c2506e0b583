package strategy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/example/wodify-ap/internal/event"
	"github.com/example/wodify-ap/internal/uisession"
)

// BookingLeadTime: classes open for reservation 24h before they start.
const BookingLeadTime = 24 * time.Hour

// ScheduleSelectors describe the schedule list view. All are XPath; Row is
// absolute, the others are relative to a row.
type ScheduleSelectors struct {
	Row        string
	DateHeader string
	Label      string
	Control    string
}

var DefaultScheduleSelectors = ScheduleSelectors{
	Row:        "//table[contains(@class,'TableRecords')]/tbody/tr",
	DateHeader: "./td[1]/span[contains(@class,'h3')]",
	Label:      "./td[1]/div/span",
	Control:    "./td[3]/div",
}

type BookClass struct {
	URL       string
	Selectors ScheduleSelectors
}

func NewBookClass(url string, sel ScheduleSelectors) *BookClass {
	return &BookClass{URL: url, Selectors: sel}
}

func (b *BookClass) Action() event.ActionType { return event.BookClass }
func (b *BookClass) EntryURL() string         { return b.URL }
func (b *BookClass) LeadTime() time.Duration  { return BookingLeadTime }
func (b *BookClass) SingleShot() bool         { return false }

func (b *BookClass) Attempt(ctx context.Context, s uisession.Session, ev event.Event) (Outcome, error) {
	page, err := s.HTML(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("read schedule: %w", err)
	}
	doc, err := htmlquery.Parse(strings.NewReader(page))
	if err != nil {
		return Outcome{}, fmt.Errorf("parse schedule: %w", err)
	}
	rows, err := htmlquery.QueryAll(doc, b.Selectors.Row)
	if err != nil {
		return Outcome{}, fmt.Errorf("row selector: %w", err)
	}

	idx, err := b.findClassRow(rows, ev.Filter)
	if err != nil {
		return Outcome{}, err
	}
	if idx < 0 {
		return Outcome{Detail: fmt.Sprintf("no %s class at %s on %s", ev.Filter.TypeSubstring, ev.Filter.TargetTime, ev.Filter.TargetDate)}, nil
	}

	control := fmt.Sprintf("(%s)[%d]/%s", b.Selectors.Row, idx+1, strings.TrimPrefix(b.Selectors.Control, "./"))
	if err := s.Click(ctx, control); err != nil {
		return Outcome{}, fmt.Errorf("click booking control: %w", err)
	}
	return Outcome{Committed: true, Detail: fmt.Sprintf("reserved row %d", idx+1)}, nil
}

// findClassRow returns the index into rows of the first class row that
// belongs to the filter's date and matches type and time, or -1.
func (b *BookClass) findClassRow(rows []*html.Node, f event.Filter) (int, error) {
	start, err := b.dateHeaderIndex(rows, f.TargetDate)
	if err != nil || start < 0 {
		return -1, err
	}
	day := rows[start+1:]
	for i, row := range day {
		header, err := htmlquery.Query(row, b.Selectors.DateHeader)
		if err != nil {
			return -1, fmt.Errorf("date header selector: %w", err)
		}
		if header != nil {
			// next day starts
			return -1, nil
		}
		label, err := htmlquery.Query(row, b.Selectors.Label)
		if err != nil {
			return -1, fmt.Errorf("label selector: %w", err)
		}
		if label == nil {
			continue
		}
		title := htmlquery.SelectAttr(label, "title")
		if strings.Contains(title, f.TypeSubstring) && containsClock(title, f.TargetTime) {
			return start + 1 + i, nil
		}
	}
	return -1, nil
}

func (b *BookClass) dateHeaderIndex(rows []*html.Node, date string) (int, error) {
	for i, row := range rows {
		header, err := htmlquery.Query(row, b.Selectors.DateHeader)
		if err != nil {
			return -1, fmt.Errorf("date header selector: %w", err)
		}
		if header != nil && strings.Contains(htmlquery.OutputHTML(header, false), date) {
			return i, nil
		}
	}
	return -1, nil
}

// containsClock is strings.Contains for clock labels, except that "6:00" does
// not match inside "16:00".
func containsClock(s, clock string) bool {
	for off := 0; ; {
		i := strings.Index(s[off:], clock)
		if i < 0 {
			return false
		}
		at := off + i
		if at == 0 || s[at-1] < '0' || s[at-1] > '9' {
			return true
		}
		off = at + 1
	}
}
