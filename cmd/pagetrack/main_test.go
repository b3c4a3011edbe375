package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eringen/pagetrack"
	"github.com/eringen/pagetrack/visitlog"
)

func seedVisitor(t *testing.T, cfg pagetrack.Config, visitorID string, pages ...string) {
	t.Helper()
	backend, err := pagetrack.OpenBackend(cfg)
	if err != nil {
		t.Fatalf("OpenBackend failed: %v", err)
	}
	defer backend.Close()
	visits, err := pagetrack.NewVisitLog(cfg, pagetrack.VisitorStore(backend, visitorID))
	if err != nil {
		t.Fatalf("NewVisitLog failed: %v", err)
	}
	for _, p := range pages {
		if err := visits.Append(p, visitlog.Client{Language: "en"}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
}

func TestVisitorStatsAndClear(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "visits.db")
	t.Setenv("PAGETRACK_STORE", "sqlite")
	t.Setenv("PAGETRACK_DB", dbPath)
	t.Setenv("PAGETRACK_TIMEZONE", "UTC")

	cfg := pagetrack.Config{Store: pagetrack.StoreSQLite, DatabasePath: dbPath, Timezone: "UTC"}
	seedVisitor(t, cfg, "v1", "Home", "Home", "Report")
	seedVisitor(t, cfg, "v2", "Home")

	var out bytes.Buffer
	if err := runVisitor(&out, "stats", "v1"); err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	var stats visitlog.Stats
	if err := json.Unmarshal(out.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats output: %v\n%s", err, out.String())
	}
	if stats.TotalVisits != 3 || stats.PageViews["Home"] != 2 {
		t.Errorf("stats = %+v", stats)
	}

	out.Reset()
	if err := runVisitor(&out, "clear", "v1"); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if !strings.Contains(out.String(), "Cleared visits for v1") {
		t.Errorf("clear output = %q", out.String())
	}

	out.Reset()
	runVisitor(&out, "stats", "v1")
	stats = visitlog.Stats{}
	json.Unmarshal(out.Bytes(), &stats)
	if stats.TotalVisits != 0 {
		t.Errorf("TotalVisits after clear = %d, want 0", stats.TotalVisits)
	}

	out.Reset()
	runVisitor(&out, "stats", "v2")
	stats = visitlog.Stats{}
	json.Unmarshal(out.Bytes(), &stats)
	if stats.TotalVisits != 1 {
		t.Errorf("other visitor TotalVisits = %d, want 1", stats.TotalVisits)
	}
}

func TestVisitorRejectsSessionStore(t *testing.T) {
	t.Setenv("PAGETRACK_STORE", "session")
	if err := runVisitor(&bytes.Buffer{}, "stats", "v1"); err == nil {
		t.Error("session store keeps no server-side visits and should be rejected")
	}
}
