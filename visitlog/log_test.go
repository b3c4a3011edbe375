package visitlog

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/eringen/pagetrack/kv"
)

var testNow = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func quietLogger() *log.Logger {
	l := log.New("test")
	l.SetOutput(io.Discard)
	return l
}

func newTestLog(t *testing.T, s kv.Store, now *time.Time, opts ...Option) *Log {
	t.Helper()
	base := []Option{
		WithClock(func() time.Time { return *now }),
		WithLocation(time.UTC),
		WithLogger(quietLogger()),
	}
	return New(s, append(base, opts...)...)
}

var client = Client{UserAgent: "Mozilla/5.0 (X11; Linux x86_64)", Language: "ar-SA"}

func TestAppendCreatesLog(t *testing.T) {
	now := testNow
	l := newTestLog(t, kv.NewMemory(), &now)

	if err := l.Append("Home", client); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	got, err := l.Records()
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	want := Record{
		Page:      "Home",
		Timestamp: "2026-10-14T12:00:00.000Z",
		UserAgent: client.UserAgent,
		Language:  client.Language,
	}
	if got[0] != want {
		t.Errorf("record = %+v, want %+v", got[0], want)
	}
}

func TestCapacityEvictsOldestFirst(t *testing.T) {
	now := testNow
	l := newTestLog(t, kv.NewMemory(), &now)

	const n = DefaultCapacity + 5
	for i := 0; i < n; i++ {
		if err := l.Append(fmt.Sprintf("p%d", i), client); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	got, err := l.Records()
	if err != nil {
		t.Fatalf("Records failed: %v", err)
	}
	if len(got) != DefaultCapacity {
		t.Fatalf("len = %d, want %d", len(got), DefaultCapacity)
	}
	for i, r := range got {
		if want := fmt.Sprintf("p%d", i+5); r.Page != want {
			t.Fatalf("record %d page = %q, want %q", i, r.Page, want)
		}
	}
}

func TestWithCapacity(t *testing.T) {
	now := testNow
	l := newTestLog(t, kv.NewMemory(), &now, WithCapacity(3))

	for _, p := range []string{"a", "b", "c", "d"} {
		if err := l.Append(p, client); err != nil {
			t.Fatal(err)
		}
	}
	got, _ := l.Records()
	var pages []string
	for _, r := range got {
		pages = append(pages, r.Page)
	}
	if strings.Join(pages, ",") != "b,c,d" {
		t.Errorf("pages = %v, want [b c d]", pages)
	}
}

func TestAppendEvictsAtMostOneRecord(t *testing.T) {
	s := kv.NewMemory()
	now := testNow
	seed := make([]Record, 5)
	for i := range seed {
		seed[i] = Record{Page: fmt.Sprintf("old%d", i), Timestamp: "2026-10-01T00:00:00.000Z"}
	}
	raw, _ := Encode(seed)
	s.Set(Key, raw)

	l := newTestLog(t, s, &now, WithCapacity(3))
	if err := l.Append("new", client); err != nil {
		t.Fatal(err)
	}
	got, _ := l.Records()
	if len(got) != 5 || got[0].Page != "old1" || got[4].Page != "new" {
		t.Errorf("records = %+v, want only the head evicted", got)
	}
}

func TestAggregateMatchesStats(t *testing.T) {
	now := testNow
	l := newTestLog(t, kv.NewMemory(), &now)
	for _, p := range []string{"A", "A", "B"} {
		l.Append(p, client)
	}

	records, err := l.Records()
	if err != nil {
		t.Fatal(err)
	}
	stats, _ := l.Stats()
	agg := l.Aggregate(records)
	if agg.TotalVisits != stats.TotalVisits || agg.TodayVisits != stats.TodayVisits ||
		agg.WeekVisits != stats.WeekVisits || agg.PageViews["A"] != 2 || agg.PageViews["B"] != 1 {
		t.Errorf("Aggregate = %+v, Stats = %+v", agg, stats)
	}
	if empty := l.Aggregate(nil); empty.PageViews == nil || empty.TotalVisits != 0 {
		t.Errorf("Aggregate(nil) = %+v", empty)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	s := kv.NewMemory()
	now := testNow
	l := newTestLog(t, s, &now)
	l.Append("Home", client)

	for i := 0; i < 2; i++ {
		if err := l.Clear(); err != nil {
			t.Fatalf("Clear %d failed: %v", i, err)
		}
		if _, ok, _ := s.Get(Key); ok {
			t.Fatalf("key present after Clear %d", i)
		}
		stats, err := l.Stats()
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if stats.TotalVisits != 0 || stats.TodayVisits != 0 || stats.WeekVisits != 0 || len(stats.PageViews) != 0 {
			t.Errorf("stats after clear = %+v", stats)
		}
		if stats.PageViews == nil {
			t.Error("PageViews should be an empty map, not nil")
		}
	}
}

func TestStatsPageViews(t *testing.T) {
	now := testNow
	l := newTestLog(t, kv.NewMemory(), &now)
	for _, p := range []string{"A", "A", "B"} {
		l.Append(p, client)
	}

	stats, err := l.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalVisits != 3 {
		t.Errorf("TotalVisits = %d, want 3", stats.TotalVisits)
	}
	if len(stats.PageViews) != 2 || stats.PageViews["A"] != 2 || stats.PageViews["B"] != 1 {
		t.Errorf("PageViews = %v, want map[A:2 B:1]", stats.PageViews)
	}
}

func TestStatsWindows(t *testing.T) {
	now := testNow
	l := newTestLog(t, kv.NewMemory(), &now)

	now = testNow.Add(-8 * 24 * time.Hour)
	l.Append("old", client)
	now = testNow.Add(-7 * 24 * time.Hour)
	l.Append("boundary", client)
	now = testNow.Add(-13 * time.Hour)
	l.Append("yesterday", client)
	now = testNow
	l.Append("now", client)

	stats, err := l.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalVisits != 4 {
		t.Errorf("TotalVisits = %d, want 4", stats.TotalVisits)
	}
	if stats.TodayVisits != 1 {
		t.Errorf("TodayVisits = %d, want 1", stats.TodayVisits)
	}
	if stats.WeekVisits != 3 {
		t.Errorf("WeekVisits = %d, want 3 (8-day-old visit excluded)", stats.WeekVisits)
	}
}

func TestStatsTodayUsesConfiguredLocation(t *testing.T) {
	riyadh := time.FixedZone("UTC+3", 3*60*60)
	// 01:00 on Oct 15 in UTC+3.
	now := time.Date(2026, 10, 14, 22, 0, 0, 0, time.UTC)
	l := newTestLog(t, kv.NewMemory(), &now, WithLocation(riyadh))

	saved := now
	now = time.Date(2026, 10, 14, 21, 30, 0, 0, time.UTC) // 00:30 local, same day
	l.Append("after-midnight", client)
	now = time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC) // 23:00 local, previous day
	l.Append("before-midnight", client)
	now = saved

	stats, _ := l.Stats()
	if stats.TodayVisits != 1 {
		t.Errorf("TodayVisits = %d, want 1", stats.TodayVisits)
	}

	utc := newTestLog(t, kv.NewMemory(), &now)
	now = time.Date(2026, 10, 14, 20, 0, 0, 0, time.UTC)
	utc.Append("x", client)
	now = saved
	stats, _ = utc.Stats()
	if stats.TodayVisits != 1 {
		t.Errorf("UTC TodayVisits = %d, want 1", stats.TodayVisits)
	}
}

func TestStatsSkipsUnparseableTimestamps(t *testing.T) {
	s := kv.NewMemory()
	s.Set(Key, `[{"page":"Home","timestamp":"yesterday-ish","userAgent":"","language":""}]`)
	now := testNow
	l := newTestLog(t, s, &now)

	stats, err := l.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalVisits != 1 || stats.PageViews["Home"] != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.TodayVisits != 0 || stats.WeekVisits != 0 {
		t.Errorf("unparseable timestamp should not count toward windows: %+v", stats)
	}
}

func TestMalformedStoredLogResets(t *testing.T) {
	s := kv.NewMemory()
	s.Set(Key, "{not json")
	now := testNow
	l := newTestLog(t, s, &now)

	stats, err := l.Stats()
	if err != nil {
		t.Fatalf("Stats on malformed log failed: %v", err)
	}
	if stats.TotalVisits != 0 {
		t.Errorf("TotalVisits = %d, want 0", stats.TotalVisits)
	}

	if err := l.Append("Home", client); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	got, _ := l.Records()
	if len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
}

func TestLegacyArrayIsUpgraded(t *testing.T) {
	s := kv.NewMemory()
	s.Set(Key, `[{"page":"Calculator","timestamp":"2026-10-14T08:00:00.000Z","userAgent":"ua","language":"ar"}]`)
	now := testNow
	l := newTestLog(t, s, &now)

	stats, _ := l.Stats()
	if stats.TotalVisits != 1 || stats.TodayVisits != 1 {
		t.Errorf("stats = %+v", stats)
	}

	l.Append("Report", client)
	raw, _, _ := s.Get(Key)
	if !strings.HasPrefix(raw, `{"version":1,`) {
		t.Errorf("stored log not upgraded: %s", raw)
	}
	got, _ := l.Records()
	if len(got) != 2 || got[0].Page != "Calculator" {
		t.Errorf("records = %+v", got)
	}
}

var errBoom = errors.New("boom")

type brokenStore struct{}

func (brokenStore) Get(string) (string, bool, error) { return "", false, errBoom }
func (brokenStore) Set(string, string) error         { return errBoom }
func (brokenStore) Delete(string) error              { return errBoom }

func TestStorageErrorsAreReturned(t *testing.T) {
	now := testNow
	l := newTestLog(t, brokenStore{}, &now)

	if err := l.Append("Home", client); !errors.Is(err, errBoom) {
		t.Errorf("Append err = %v, want errBoom", err)
	}
	if _, err := l.Stats(); !errors.Is(err, errBoom) {
		t.Errorf("Stats err = %v, want errBoom", err)
	}
	if _, err := l.Records(); !errors.Is(err, errBoom) {
		t.Errorf("Records err = %v, want errBoom", err)
	}
	if err := l.Clear(); !errors.Is(err, errBoom) {
		t.Errorf("Clear err = %v, want errBoom", err)
	}
}
