package pagetrack

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"

	"github.com/eringen/pagetrack/events"
	"github.com/eringen/pagetrack/kv"
	"github.com/eringen/pagetrack/tracker"
	"github.com/eringen/pagetrack/views"
	"github.com/eringen/pagetrack/visitlog"
)

// PageViewRequest is the body of POST /api/track/pageview.
type PageViewRequest struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Path      string `json:"path"`
	Language  string `json:"language"`
	UserAgent string `json:"user_agent"`
}

// EventRequest is the body of POST /api/track/event. Kind selects which of
// the remaining fields are read.
type EventRequest struct {
	Kind          string         `json:"kind"`
	Name          string         `json:"name"`
	Params        map[string]any `json:"params"`
	Button        string         `json:"button"`
	URL           string         `json:"url"`
	RequiredHours float64        `json:"required_hours"`
	ActualHours   float64        `json:"actual_hours"`
	EmployeeName  string         `json:"employee_name"`
	TotalDays     int            `json:"total_days"`
	DurationSec   int            `json:"duration_sec"`
	Title         string         `json:"title"`
}

// Input validation limits for the tracking endpoints.
const (
	maxTitleLen     = 512
	maxURLLen       = 2048
	maxLanguageLen  = 35
	maxUserAgentLen = 512
	maxEventNameLen = 64
	maxDurationSec  = 86400 // 24 hours
)

const recentVisitsShown = 10

func validatePageView(req *PageViewRequest) error {
	if len(req.Title) > maxTitleLen {
		return fmt.Errorf("title exceeds maximum length of %d", maxTitleLen)
	}
	if len(req.URL) > maxURLLen || len(req.Path) > maxURLLen {
		return fmt.Errorf("url exceeds maximum length of %d", maxURLLen)
	}
	if len(req.Language) > maxLanguageLen {
		return fmt.Errorf("language exceeds maximum length of %d", maxLanguageLen)
	}
	if len(req.UserAgent) > maxUserAgentLen {
		return fmt.Errorf("user_agent exceeds maximum length of %d", maxUserAgentLen)
	}
	return nil
}

func validateEvent(req *EventRequest) error {
	if len(req.Name) > maxEventNameLen {
		return fmt.Errorf("name exceeds maximum length of %d", maxEventNameLen)
	}
	if len(req.URL) > maxURLLen {
		return fmt.Errorf("url exceeds maximum length of %d", maxURLLen)
	}
	if len(req.Title) > maxTitleLen || len(req.EmployeeName) > maxTitleLen {
		return fmt.Errorf("text field exceeds maximum length of %d", maxTitleLen)
	}
	if req.DurationSec < 0 || req.DurationSec > maxDurationSec {
		return fmt.Errorf("duration_sec must be between 0 and %d", maxDurationSec)
	}
	if req.TotalDays < 0 {
		return fmt.Errorf("total_days must not be negative")
	}
	return nil
}

func (a *App) setupRoutes() {
	e := a.Echo

	assets, _ := fs.Sub(EmbeddedAssets, "embedded")
	e.GET("/public/track.js", echo.WrapHandler(http.StripPrefix("/public/", http.FileServer(http.FS(assets)))))

	e.POST("/api/track/pageview", a.handlePageView)
	e.POST("/api/track/event", a.handleEvent)

	e.GET("/api/visits", a.handleVisits)
	e.DELETE("/api/visits", a.handleClearVisits)
	e.GET("/api/visits/stats", a.handleStats)
	e.GET("/api/visits/badge.png", a.handleBadge)
	e.GET("/visits/", a.handleStatsPage)

	if a.Events != nil && a.Config.AdminToken != "" {
		admin := e.Group("/admin/api", a.adminAuth())
		admin.GET("/events", a.handleEventSummary)
		admin.GET("/events/recent", a.handleRecentEvents)
	}
}

// bindTrackingBody decodes a tracking payload. Beacons post their JSON as
// text/plain, which cross-origin pages may send without a preflight.
func bindTrackingBody(c echo.Context, v any) error {
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMETextPlain) {
		return json.NewDecoder(c.Request().Body).Decode(v)
	}
	return c.Bind(v)
}

// visitLog opens the caller's visit log: their session itself for the
// session backend, otherwise their namespace in the shared backend.
func (a *App) visitLog(c echo.Context) (*visitlog.Log, string, error) {
	sess, id, err := visitorSession(c)
	if err != nil {
		return nil, "", fmt.Errorf("visitor session: %w", err)
	}
	var store kv.Store
	if a.backend == nil {
		store = kv.NewSession(sess, c.Request(), c.Response())
	} else {
		store = VisitorStore(a.backend, id)
	}
	return visitlog.New(store,
		visitlog.WithCapacity(a.Config.Capacity),
		visitlog.WithLocation(a.loc),
		visitlog.WithClock(a.now),
		visitlog.WithLogger(a.logger),
	), id, nil
}

// newTracker builds a tracker for one request. Do Not Track requests keep
// the local visit log but are not forwarded to any sink.
func (a *App) newTracker(c echo.Context, visits *visitlog.Log, env tracker.Environment) *tracker.Tracker {
	opts := []tracker.Option{
		tracker.WithEnvironment(env),
		tracker.WithLogger(a.logger),
		tracker.WithClock(a.now),
	}
	if c.Request().Header.Get("DNT") != "1" {
		var sinks []tracker.Sink
		if a.Events != nil {
			sinks = append(sinks, a.Events.Sink())
		}
		sinks = append(sinks, a.sinks...)
		opts = append(opts, tracker.WithSink(tracker.MultiSink(sinks...)))
	}
	return tracker.New(visits, opts...)
}

// handlePageView records a page view for the calling visitor.
func (a *App) handlePageView(c echo.Context) error {
	if !a.limiter.allow(c.RealIP()) {
		return c.NoContent(http.StatusTooManyRequests)
	}

	var req PageViewRequest
	if err := bindTrackingBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "Invalid request")
	}
	if err := validatePageView(&req); err != nil {
		return c.String(http.StatusBadRequest, "Invalid request")
	}

	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = c.Request().UserAgent()
	}
	if events.IsBot(userAgent) {
		return c.NoContent(http.StatusNoContent)
	}

	visits, _, err := a.visitLog(c)
	if err != nil {
		c.Logger().Errorf("Failed to open visit log: %v", err)
		return c.NoContent(http.StatusNoContent)
	}

	env := tracker.Environment{
		UserAgent: userAgent,
		Language:  requestLanguage(req.Language, c.Request()),
		URL:       req.URL,
		Path:      req.Path,
		Title:     req.Title,
	}
	a.newTracker(c, visits, env).TrackPageView(tracker.PageName(req.Title))

	return c.NoContent(http.StatusNoContent)
}

// handleEvent forwards a UI event for the calling visitor.
func (a *App) handleEvent(c echo.Context) error {
	if !a.limiter.allow(c.RealIP()) {
		return c.NoContent(http.StatusTooManyRequests)
	}

	var req EventRequest
	if err := bindTrackingBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "Invalid request")
	}
	if err := validateEvent(&req); err != nil {
		return c.String(http.StatusBadRequest, "Invalid request")
	}

	env := tracker.Environment{
		UserAgent: c.Request().UserAgent(),
		Language:  requestLanguage("", c.Request()),
		Title:     req.Title,
	}
	// Events never touch the visit log, so no session is needed here.
	tr := a.newTracker(c, nil, env)

	switch req.Kind {
	case tracker.EventButtonClick:
		tr.TrackButtonClick(tracker.ButtonLabel(req.Button))
	case tracker.EventExternalLinkClick:
		if req.URL == "" {
			return c.String(http.StatusBadRequest, "Invalid request")
		}
		tr.TrackExternalLink(req.URL)
	case tracker.EventCalculatorUsed:
		tr.TrackCalculatorUsage(req.RequiredHours, req.ActualHours)
	case tracker.EventReportAnalyzed:
		tr.TrackReportAnalysis(req.EmployeeName, req.TotalDays)
	case tracker.EventTimeOnPage:
		tr.TrackTimeOnPage(time.Duration(req.DurationSec) * time.Second)
	case "", "custom":
		if req.Name == "" {
			return c.String(http.StatusBadRequest, "Invalid request")
		}
		tr.TrackEvent(req.Name, req.Params)
	default:
		return c.String(http.StatusBadRequest, "Invalid request")
	}

	return c.NoContent(http.StatusNoContent)
}

// VisitsResponse is the JSON response for GET /api/visits.
type VisitsResponse struct {
	VisitorID string            `json:"visitor_id"`
	Capacity  int               `json:"capacity"`
	Visits    []visitlog.Record `json:"visits"`
}

func (a *App) handleVisits(c echo.Context) error {
	visits, id, err := a.visitLog(c)
	if err != nil {
		return a.internalError(c, "open visit log", err)
	}
	records, err := visits.Records()
	if err != nil {
		return a.internalError(c, "read visits", err)
	}
	return c.JSON(http.StatusOK, VisitsResponse{
		VisitorID: id,
		Capacity:  visits.Capacity(),
		Visits:    records,
	})
}

func (a *App) handleClearVisits(c echo.Context) error {
	visits, _, err := a.visitLog(c)
	if err != nil {
		return a.internalError(c, "open visit log", err)
	}
	if err := visits.Clear(); err != nil {
		return a.internalError(c, "clear visits", err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (a *App) handleStats(c echo.Context) error {
	visits, _, err := a.visitLog(c)
	if err != nil {
		return a.internalError(c, "open visit log", err)
	}
	stats, err := visits.Stats()
	if err != nil {
		return a.internalError(c, "compute stats", err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (a *App) handleBadge(c echo.Context) error {
	visits, _, err := a.visitLog(c)
	if err != nil {
		return a.internalError(c, "open visit log", err)
	}
	stats, err := visits.Stats()
	if err != nil {
		return a.internalError(c, "compute stats", err)
	}
	png, err := renderBadge("visits", humanize.Comma(int64(stats.TotalVisits)))
	if err != nil {
		return a.internalError(c, "render badge", err)
	}
	return c.Blob(http.StatusOK, "image/png", png)
}

func (a *App) handleStatsPage(c echo.Context) error {
	visits, id, err := a.visitLog(c)
	if err != nil {
		return a.internalError(c, "open visit log", err)
	}
	records, err := visits.Records()
	if err != nil {
		return a.internalError(c, "read visits", err)
	}
	vm := convertStatsToViewModel(id, visits.Capacity(), visits.Aggregate(records), records)
	cmp := views.StatsPage(vm)
	if c.Request().Header.Get("HX-Request") == "true" {
		cmp = views.StatsFragment(vm)
	}
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMETextHTMLCharsetUTF8)
	c.Response().WriteHeader(http.StatusOK)
	return cmp.Render(c.Request().Context(), c.Response().Writer)
}

func (a *App) handleEventSummary(c echo.Context) error {
	days := 7
	if v, err := strconv.Atoi(c.QueryParam("days")); err == nil && v > 0 && v <= 366 {
		days = v
	}
	now := a.now().UTC()
	from := now.AddDate(0, 0, -days)
	summary, err := a.Events.Summary(from, now.Add(time.Second))
	if err != nil {
		return a.internalError(c, "event summary", err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (a *App) handleRecentEvents(c echo.Context) error {
	limit := 50
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	recent, err := a.Events.Recent(limit)
	if err != nil {
		return a.internalError(c, "recent events", err)
	}
	return c.JSON(http.StatusOK, recent)
}

func (a *App) internalError(c echo.Context, what string, err error) error {
	c.Logger().Errorf("Failed to %s: %v", what, err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
}

// requestLanguage prefers the language the page reported and falls back to
// the first Accept-Language tag.
func requestLanguage(reported string, r *http.Request) string {
	if reported != "" {
		return reported
	}
	lang := r.Header.Get("Accept-Language")
	if i := strings.IndexAny(lang, ",;"); i >= 0 {
		lang = lang[:i]
	}
	lang = strings.TrimSpace(lang)
	if len(lang) > maxLanguageLen {
		return ""
	}
	return lang
}

// convertStatsToViewModel orders pages by views (then label) and keeps the
// most recent visits, newest first.
func convertStatsToViewModel(visitorID string, capacity int, stats visitlog.Stats, records []visitlog.Record) *views.StatsViewModel {
	vm := &views.StatsViewModel{
		VisitorID:   visitorID,
		TotalVisits: stats.TotalVisits,
		TodayVisits: stats.TodayVisits,
		WeekVisits:  stats.WeekVisits,
		Capacity:    capacity,
	}

	vm.Pages = make([]views.PageViewModel, 0, len(stats.PageViews))
	for page, n := range stats.PageViews {
		vm.Pages = append(vm.Pages, views.PageViewModel{Page: page, Views: n})
	}
	sort.Slice(vm.Pages, func(i, j int) bool {
		if vm.Pages[i].Views != vm.Pages[j].Views {
			return vm.Pages[i].Views > vm.Pages[j].Views
		}
		return vm.Pages[i].Page < vm.Pages[j].Page
	})

	for i := len(records) - 1; i >= 0 && len(vm.Recent) < recentVisitsShown; i-- {
		r := records[i]
		when, _ := r.Time()
		vm.Recent = append(vm.Recent, views.VisitViewModel{
			Page:     r.Page,
			When:     when,
			Language: r.Language,
		})
	}

	return vm
}
