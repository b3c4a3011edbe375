package tracker

import (
	"io"
	"strings"
	"testing"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/eringen/pagetrack/kv"
	"github.com/eringen/pagetrack/visitlog"
)

type tracked struct {
	event  string
	params Params
}

type recorder struct {
	events []tracked
}

func (r *recorder) Track(event string, params Params) {
	r.events = append(r.events, tracked{event, params})
}

func quietLogger() *log.Logger {
	l := log.New("test")
	l.SetOutput(io.Discard)
	return l
}

var env = Environment{
	UserAgent: "Mozilla/5.0",
	Language:  "ar-SA",
	URL:       "https://example.com/calculator.html?x=1",
	Path:      "/calculator.html",
	Title:     "Hours Calculator",
}

func newTestTracker(t *testing.T, opts ...Option) (*Tracker, *visitlog.Log) {
	t.Helper()
	visits := visitlog.New(kv.NewMemory(), visitlog.WithLogger(quietLogger()))
	base := []Option{WithEnvironment(env), WithLogger(quietLogger())}
	return New(visits, append(base, opts...)...), visits
}

func TestTrackPageViewWithoutSinkStillAppends(t *testing.T) {
	tr, visits := newTestTracker(t)
	if tr.HasSink() {
		t.Fatal("tracker should have no sink")
	}

	tr.TrackPageView("Home")
	tr.TrackEvent("custom", nil)
	tr.TrackButtonClick("Save")
	tr.TrackCalculatorUsage(8, 7.5)
	tr.TrackReportAnalysis("Sara", 22)
	tr.TrackExternalLink("https://example.org")
	tr.TrackTimeOnPage(time.Second)

	got, err := visits.Records()
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Page != "Home" || got[0].UserAgent != env.UserAgent || got[0].Language != env.Language {
		t.Errorf("record = %+v", got[0])
	}
}

func TestTrackPageViewForwardsToSink(t *testing.T) {
	rec := &recorder{}
	tr, visits := newTestTracker(t, WithSink(rec))

	tr.TrackPageView("Home")

	if len(rec.events) != 1 {
		t.Fatalf("events = %d, want 1", len(rec.events))
	}
	e := rec.events[0]
	if e.event != EventPageView {
		t.Errorf("event = %q, want %q", e.event, EventPageView)
	}
	if e.params["page_title"] != "Home" || e.params["page_location"] != env.URL || e.params["page_path"] != env.Path {
		t.Errorf("params = %v", e.params)
	}
	stats, _ := visits.Stats()
	if stats.TotalVisits != 1 {
		t.Errorf("TotalVisits = %d, want 1", stats.TotalVisits)
	}
}

func TestTypedEvents(t *testing.T) {
	tests := []struct {
		name  string
		call  func(*Tracker)
		event string
		want  Params
	}{
		{
			name:  "calculator complete",
			call:  func(tr *Tracker) { tr.TrackCalculatorUsage(8, 8) },
			event: EventCalculatorUsed,
			want:  Params{"required_hours": 8.0, "actual_hours": 8.0, "status": "complete"},
		},
		{
			name:  "calculator incomplete",
			call:  func(tr *Tracker) { tr.TrackCalculatorUsage(8, 6.5) },
			event: EventCalculatorUsed,
			want:  Params{"required_hours": 8.0, "actual_hours": 6.5, "status": "incomplete"},
		},
		{
			name:  "report",
			call:  func(tr *Tracker) { tr.TrackReportAnalysis("Sara", 22) },
			event: EventReportAnalyzed,
			want:  Params{"employee_name": "Sara", "total_days": 22},
		},
		{
			name:  "button",
			call:  func(tr *Tracker) { tr.TrackButtonClick("Calculate") },
			event: EventButtonClick,
			want:  Params{"button_name": "Calculate"},
		},
		{
			name:  "external link",
			call:  func(tr *Tracker) { tr.TrackExternalLink("https://example.org/") },
			event: EventExternalLinkClick,
			want:  Params{"url": "https://example.org/"},
		},
		{
			name:  "time on page",
			call:  func(tr *Tracker) { tr.TrackTimeOnPage(1500 * time.Millisecond) },
			event: EventTimeOnPage,
			want:  Params{"duration_seconds": 2, "page": env.Title},
		},
		{
			name:  "custom",
			call:  func(tr *Tracker) { tr.TrackEvent("share", Params{"via": "whatsapp"}) },
			event: "share",
			want:  Params{"via": "whatsapp"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			tr, visits := newTestTracker(t, WithSink(rec))
			tt.call(tr)

			if len(rec.events) != 1 {
				t.Fatalf("events = %d, want 1", len(rec.events))
			}
			e := rec.events[0]
			if e.event != tt.event {
				t.Errorf("event = %q, want %q", e.event, tt.event)
			}
			if len(e.params) != len(tt.want) {
				t.Errorf("params = %v, want %v", e.params, tt.want)
			}
			for k, v := range tt.want {
				if e.params[k] != v {
					t.Errorf("params[%q] = %v (%T), want %v (%T)", k, e.params[k], e.params[k], v, v)
				}
			}
			if got, _ := visits.Records(); len(got) != 0 {
				t.Errorf("non-page-view events should not touch the visit log, got %d records", len(got))
			}
		})
	}
}

func TestTrackEventNilParams(t *testing.T) {
	var gotParams Params
	tr, _ := newTestTracker(t, WithSink(SinkFunc(func(_ string, p Params) { gotParams = p })))
	tr.TrackEvent("custom", nil)
	if gotParams == nil {
		t.Error("sink should receive an empty mapping, not nil")
	}
}

func TestTimeOnPageSinceStart(t *testing.T) {
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	rec := &recorder{}
	tr, _ := newTestTracker(t, WithSink(rec), WithClock(func() time.Time { return now }))

	now = now.Add(95 * time.Second)
	tr.TrackTimeOnPage(0)

	if got := rec.events[0].params["duration_seconds"]; got != 95 {
		t.Errorf("duration_seconds = %v, want 95", got)
	}
}

type failingStore struct{ kv.Memory }

func (failingStore) Set(string, string) error { return io.ErrClosedPipe }

func TestTrackPageViewSwallowsStorageErrors(t *testing.T) {
	rec := &recorder{}
	visits := visitlog.New(&failingStore{Memory: *kv.NewMemory()}, visitlog.WithLogger(quietLogger()))
	tr := New(visits, WithSink(rec), WithLogger(quietLogger()))

	tr.TrackPageView("Home")
	if len(rec.events) != 1 {
		t.Errorf("sink should still receive the page view, got %d events", len(rec.events))
	}
}

func TestPageName(t *testing.T) {
	if got := PageName(""); got != UnknownPage {
		t.Errorf("PageName(\"\") = %q", got)
	}
	if got := PageName("حاسبة الساعات"); got != "حاسبة الساعات" {
		t.Errorf("PageName = %q", got)
	}
}

func TestButtonLabel(t *testing.T) {
	if got := ButtonLabel("  Save \n"); got != "Save" {
		t.Errorf("ButtonLabel = %q, want Save", got)
	}
	long := strings.Repeat("ح", 60)
	if got := ButtonLabel(long); got != strings.Repeat("ح", 50) {
		t.Errorf("ButtonLabel kept %d runes, want 50", len([]rune(got)))
	}
}

func TestMultiSink(t *testing.T) {
	if MultiSink() != nil || MultiSink(nil, nil) != nil {
		t.Fatal("MultiSink without sinks should be nil")
	}
	a, b := &recorder{}, &recorder{}
	if MultiSink(nil, a) != Sink(a) {
		t.Error("MultiSink with one sink should return it unchanged")
	}

	tr, _ := newTestTracker(t, WithSink(MultiSink(a, nil, b)))
	tr.TrackButtonClick("Go")
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("events a=%d b=%d, want 1 each", len(a.events), len(b.events))
	}
}
