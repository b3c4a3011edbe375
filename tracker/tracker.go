// Package tracker forwards page views and UI events to an optional analytics
// sink and mirrors page views into a visit log.
package tracker

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/gommon/log"

	"github.com/eringen/pagetrack/visitlog"
)

// Event names understood by analytics sinks.
const (
	EventPageView          = "page_view"
	EventButtonClick       = "button_click"
	EventExternalLinkClick = "external_link_click"
	EventCalculatorUsed    = "calculator_used"
	EventReportAnalyzed    = "report_analyzed"
	EventTimeOnPage        = "time_on_page"
)

// UnknownPage labels page views whose document has no title.
const UnknownPage = "Unknown Page"

// maxButtonLabel is the number of runes kept from a button's text.
const maxButtonLabel = 50

// Params is the parameter mapping sent with an event.
type Params map[string]any

// Sink receives tracked events. Implementations must not block for long;
// tracking calls are made inline with request handling.
type Sink interface {
	Track(event string, params Params)
}

// SinkFunc adapts an ordinary function to a Sink.
type SinkFunc func(event string, params Params)

// Track calls f(event, params).
func (f SinkFunc) Track(event string, params Params) {
	f(event, params)
}

// Environment is the client context a page view is observed in.
type Environment struct {
	UserAgent string
	Language  string
	URL       string // full document location
	Path      string // location path
	Title     string // document title
}

// Tracker forwards events for a single client.
type Tracker struct {
	visits *visitlog.Log
	sink   Sink
	env    Environment
	now    func() time.Time
	start  time.Time
	logger *log.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithSink sets the analytics sink. Without one, events are only logged.
func WithSink(s Sink) Option {
	return func(t *Tracker) {
		t.sink = s
	}
}

// WithEnvironment sets the client context.
func WithEnvironment(env Environment) Option {
	return func(t *Tracker) {
		t.env = env
	}
}

// WithClock sets the time source used for time-on-page.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger replaces the package logger.
func WithLogger(logger *log.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates a Tracker that records page views in visits.
func New(visits *visitlog.Log, opts ...Option) *Tracker {
	t := &Tracker{
		visits: visits,
		now:    time.Now,
		logger: log.New("tracker"),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.start = t.now()
	return t
}

// HasSink reports whether events are forwarded anywhere.
func (t *Tracker) HasSink() bool {
	return t.sink != nil
}

// TrackEvent forwards a named event. It never fails; without a sink the event
// is only logged.
func (t *Tracker) TrackEvent(name string, params Params) {
	if params == nil {
		params = Params{}
	}
	if t.sink != nil {
		t.sink.Track(name, params)
	}
	t.logger.Debugj(log.JSON{"message": "event tracked", "event": name, "params": params})
}

// TrackPageView forwards a page_view event and appends the visit to the visit
// log whether or not a sink is configured.
func (t *Tracker) TrackPageView(page string) {
	if t.sink != nil {
		t.sink.Track(EventPageView, Params{
			"page_title":    page,
			"page_location": t.env.URL,
			"page_path":     t.env.Path,
		})
	}
	if t.visits == nil {
		return
	}
	client := visitlog.Client{UserAgent: t.env.UserAgent, Language: t.env.Language}
	if err := t.visits.Append(page, client); err != nil {
		t.logger.Errorf("save visit to %q: %v", page, err)
	}
}

// TrackCalculatorUsage records a work-hours calculation.
func (t *Tracker) TrackCalculatorUsage(requiredHours, actualHours float64) {
	status := "incomplete"
	if actualHours >= requiredHours {
		status = "complete"
	}
	t.TrackEvent(EventCalculatorUsed, Params{
		"required_hours": requiredHours,
		"actual_hours":   actualHours,
		"status":         status,
	})
}

// TrackReportAnalysis records that an attendance report was analyzed.
func (t *Tracker) TrackReportAnalysis(employeeName string, totalDays int) {
	t.TrackEvent(EventReportAnalyzed, Params{
		"employee_name": employeeName,
		"total_days":    totalDays,
	})
}

// TrackButtonClick records a click on the named button.
func (t *Tracker) TrackButtonClick(buttonName string) {
	t.TrackEvent(EventButtonClick, Params{"button_name": buttonName})
}

// TrackExternalLink records a click on a link leaving the site.
func (t *Tracker) TrackExternalLink(url string) {
	t.TrackEvent(EventExternalLinkClick, Params{"url": url})
}

// TrackTimeOnPage records how long the page has been open. A non-positive d
// means "since the tracker was created".
func (t *Tracker) TrackTimeOnPage(d time.Duration) {
	if d <= 0 {
		d = t.now().Sub(t.start)
	}
	t.TrackEvent(EventTimeOnPage, Params{
		"duration_seconds": int(math.Round(d.Seconds())),
		"page":             t.env.Title,
	})
}

// PageName returns the label used for a document title.
func PageName(title string) string {
	if title == "" {
		return UnknownPage
	}
	return title
}

// ButtonLabel derives the button_name reported for a button's text content.
func ButtonLabel(text string) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= maxButtonLabel {
		return text
	}
	return string([]rune(text)[:maxButtonLabel])
}

// MultiSink fans events out to every non-nil sink in order. It returns nil
// when no sink remains, so the result can be passed to WithSink directly.
func MultiSink(sinks ...Sink) Sink {
	var live []Sink
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	switch len(live) {
	case 0:
		return nil
	case 1:
		return live[0]
	}
	return SinkFunc(func(event string, params Params) {
		for _, s := range live {
			s.Track(event, params)
		}
	})
}
