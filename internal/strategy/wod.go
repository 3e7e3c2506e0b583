package strategy

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/example/wodify-ap/internal/event"
	"github.com/example/wodify-ap/internal/uisession"
)

// WodRecord is one workout component.
type WodRecord struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Comment string `json:"comment"`
}

// WodResult is the athlete's logged result for the workout.
type WodResult struct {
	Score    string `json:"score"`
	Rx       bool   `json:"rx"`
	Comments string `json:"comments"`
}

// WodSelectors are CSS selectors for the workout-of-the-day view and the
// results table.
type WodSelectors struct {
	DateInput string // optional
	List      string
	Component string
	Name      string
	Content   string
	Comment   string

	ResultTable string
	ResultRx    string
}

var DefaultWodSelectors = WodSelectors{
	DateInput:   `input[id$="wtDateInputFrom"]`,
	List:        `[id$="wtWODComponentsList"]`,
	Component:   ".component_show_wrapper",
	Name:        ".component_name",
	Content:     ".component_wrapper",
	Comment:     ".component_comment",
	ResultTable: "table.TableRecords",
	ResultRx:    ".RxOnNoClick",
}

// Cells of a results row.
const (
	resultDateCell    = 0
	resultScoreCell   = 6
	resultRxCell      = 7
	resultCommentCell = 9
)

// settleStep is the polling step while the list re-renders for a new date.
const settleStep = 250 * time.Millisecond

type FetchWOD struct {
	URL string
	// ResultsURL lists the athlete's results, newest first. Empty skips them.
	ResultsURL string
	// RequireResult leaves the event pending until a result for its date is
	// logged.
	RequireResult bool
	Selectors     WodSelectors
	// ListProbe bounds the wait for the component list to render.
	ListProbe time.Duration
	// Sleep pauses between polls; nil uses a timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewFetchWOD(url string, sel WodSelectors, probe time.Duration) *FetchWOD {
	return &FetchWOD{URL: url, Selectors: sel, ListProbe: probe}
}

func (w *FetchWOD) Action() event.ActionType { return event.FetchWOD }
func (w *FetchWOD) EntryURL() string         { return w.URL }
func (w *FetchWOD) LeadTime() time.Duration  { return 0 }
func (w *FetchWOD) SingleShot() bool         { return true }

func (w *FetchWOD) Attempt(ctx context.Context, s uisession.Session, ev event.Event) (Outcome, error) {
	date := ev.ScheduledTime.Format(event.DateLayout)
	page, ok, err := w.showDate(ctx, s, date)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{Detail: "no wod found"}, nil
	}
	records, found, err := w.Extract(page)
	if err != nil {
		return Outcome{}, err
	}
	if !found {
		return Outcome{Detail: "no wod found"}, nil
	}
	out := Outcome{Committed: true, Detail: fmt.Sprintf("%d components", len(records)), Records: records}
	if w.ResultsURL == "" {
		return out, nil
	}

	result, err := w.fetchResult(ctx, s, date)
	if err != nil {
		return Outcome{}, err
	}
	if result == nil {
		if w.RequireResult {
			return Outcome{Detail: "no wod result found"}, nil
		}
		out.Detail += ", no result"
		return out, nil
	}
	out.Result = result
	return out, nil
}

// showDate selects date and returns the page once the component list shows
// it. A list rendered before the date was typed only counts once its content
// changes or ListProbe has passed.
func (w *FetchWOD) showDate(ctx context.Context, s uisession.Session, date string) (string, bool, error) {
	var stale string
	if w.Selectors.DateInput != "" {
		before, err := s.HTML(ctx)
		if err != nil {
			return "", false, fmt.Errorf("read wod: %w", err)
		}
		stale = w.listHTML(before)
		if err := s.Fill(ctx, w.Selectors.DateInput, date); err != nil {
			return "", false, fmt.Errorf("select wod date: %w", err)
		}
	}
	ok, err := s.Present(ctx, w.Selectors.List, w.ListProbe)
	if err != nil {
		return "", false, fmt.Errorf("probe wod list: %w", err)
	}
	if !ok {
		return "", false, nil
	}

	polls := int(w.ListProbe / settleStep)
	for i := 0; ; i++ {
		page, err := s.HTML(ctx)
		if err != nil {
			return "", false, fmt.Errorf("read wod: %w", err)
		}
		cur := w.listHTML(page)
		if (cur != "" && cur != stale) || i >= polls {
			return page, true, nil
		}
		if err := w.sleep(ctx, settleStep); err != nil {
			return "", false, err
		}
	}
}

func (w *FetchWOD) listHTML(page string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return ""
	}
	h, _ := doc.Find(w.Selectors.List).First().Html()
	return h
}

func (w *FetchWOD) sleep(ctx context.Context, d time.Duration) error {
	if w.Sleep != nil {
		return w.Sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *FetchWOD) fetchResult(ctx context.Context, s uisession.Session, date string) (*WodResult, error) {
	if err := s.Navigate(ctx, w.ResultsURL); err != nil {
		return nil, fmt.Errorf("open results: %w", err)
	}
	ok, err := s.Present(ctx, w.Selectors.ResultTable, w.ListProbe)
	if err != nil {
		return nil, fmt.Errorf("probe results: %w", err)
	}
	if !ok {
		return nil, nil
	}
	page, err := s.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read results: %w", err)
	}
	return w.ExtractResult(page, date)
}

// ExtractResult reads the newest results row. It returns nil when the table
// is missing or the row belongs to another date.
func (w *FetchWOD) ExtractResult(page, date string) (*WodResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}
	cells := doc.Find(w.Selectors.ResultTable).First().Find("tbody tr").First().Children().Filter("td")
	if cells.Length() <= resultCommentCell {
		return nil, nil
	}
	text := func(i int) string {
		h, _ := cells.Eq(i).Html()
		return PlainText(h)
	}
	if text(resultDateCell) != date {
		return nil, nil
	}
	return &WodResult{
		Score:    text(resultScoreCell),
		Rx:       cells.Eq(resultRxCell).Find(w.Selectors.ResultRx).Length() > 0,
		Comments: text(resultCommentCell),
	}, nil
}

// Extract reads every component block below the list. found is false when
// the list itself is missing.
func (w *FetchWOD) Extract(page string) (records []WodRecord, found bool, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, false, fmt.Errorf("parse wod: %w", err)
	}
	list := doc.Find(w.Selectors.List).First()
	if list.Length() == 0 {
		return nil, false, nil
	}

	records = []WodRecord{}
	list.Find(w.Selectors.Component).Each(func(_ int, c *goquery.Selection) {
		nameHTML, _ := c.Find(w.Selectors.Name).First().Html()

		wrapper := c.Find(w.Selectors.Content).First().Clone()
		comment := wrapper.Find(w.Selectors.Comment).First()
		commentHTML, _ := comment.Html()
		comment.Remove()
		contentHTML, _ := wrapper.Html()

		records = append(records, WodRecord{
			Name:    PlainText(nameHTML),
			Content: PlainText(contentHTML),
			Comment: PlainText(commentHTML),
		})
	})
	return records, true, nil
}

var (
	lineBreak = regexp.MustCompile(`(?i)<br\s*/?>|<p(\s[^>]*)?>`)
	blankRuns = regexp.MustCompile(`\n{2,}`)
)

// PlainText turns an HTML fragment into plain text: line breaks and
// paragraphs become newlines, tags are dropped, entities decoded and
// non-breaking spaces folded.
func PlainText(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	withBreaks := lineBreak.ReplaceAllString(fragment, "\n")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<div>" + withBreaks + "</div>"))
	if err != nil {
		return strings.TrimSpace(withBreaks)
	}
	text := strings.ReplaceAll(doc.Find("div").First().Text(), "\u00a0", " ")

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text = blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n")
	return strings.TrimSpace(text)
}

// Describe renders records, and the result when there is one, as the free
// text stored with a WOD.
func Describe(records []WodRecord, result *WodResult) string {
	parts := make([]string, 0, len(records)+1)
	for _, r := range records {
		var b strings.Builder
		b.WriteString(r.Name)
		if r.Content != "" {
			b.WriteString("\n")
			b.WriteString(r.Content)
		}
		if r.Comment != "" {
			b.WriteString("\nComment: ")
			b.WriteString(r.Comment)
		}
		parts = append(parts, b.String())
	}
	if result != nil {
		grade := "Scaled"
		if result.Rx {
			grade = "RX"
		}
		line := fmt.Sprintf("Result: %s %s", result.Score, grade)
		if result.Comments != "" {
			line += "\nComments: " + result.Comments
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, "\n\n")
}
