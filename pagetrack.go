// Package pagetrack is a page-analytics service built with Go and Echo.
// It keeps a capped per-visitor history of page views in a key-value store,
// derives visit statistics from it, and forwards UI events to optional sinks.
package pagetrack

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/eringen/pagetrack/events"
	"github.com/eringen/pagetrack/kv"
	"github.com/eringen/pagetrack/tracker"
	"github.com/eringen/pagetrack/visitlog"
)

// App is the central pagetrack application. It wires together the visit
// store, the optional event store, handlers and middleware.
type App struct {
	Config Config
	Echo   *echo.Echo
	Events *events.Store

	logger       *log.Logger
	backend      kv.Backend // nil for the session backend
	sessionStore sessions.Store
	limiter      *rateLimiter
	loc          *time.Location
	now          func() time.Time
	sinks        []tracker.Sink
	customRoutes []func(*App)
	stopCleanup  func()
}

// Option configures additional App behavior.
type Option func(*App)

// WithCustomRoutes registers additional routes on the Echo instance.
// The callback receives the App after the built-in routes are set up.
func WithCustomRoutes(fn func(*App)) Option {
	return func(a *App) {
		a.customRoutes = append(a.customRoutes, fn)
	}
}

// WithSink forwards every tracked event to s in addition to the event store.
func WithSink(s tracker.Sink) Option {
	return func(a *App) {
		a.sinks = append(a.sinks, s)
	}
}

// WithBackend replaces the configured visit store backend.
func WithBackend(b kv.Backend) Option {
	return func(a *App) {
		a.backend = b
	}
}

// WithClock sets the time source for visits and stats.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		a.now = now
	}
}

// New creates a new pagetrack App with the given configuration.
func New(cfg Config, opts ...Option) *App {
	cfg.setDefaults()

	a := &App{
		Config: cfg,
		Echo:   echo.New(),
		logger: log.New("pagetrack"),
		now:    time.Now,
	}
	a.logger.SetLevel(parseLevel(cfg.LogLevel))
	a.Echo.Logger = a.logger
	a.Echo.HideBanner = true

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Init opens the stores and sets up middleware and routes without starting
// the listener.
func (a *App) Init() error {
	if err := a.Config.validate(); err != nil {
		return err
	}
	loc, _ := a.Config.Location()
	a.loc = loc

	if a.backend == nil && a.Config.Store != StoreSession {
		backend, err := OpenBackend(a.Config)
		if err != nil {
			return fmt.Errorf("pagetrack: init store: %w", err)
		}
		a.backend = backend
	}

	if a.Config.Store == StoreSession {
		if err := os.MkdirAll(a.Config.SessionDir, 0o755); err != nil {
			return fmt.Errorf("pagetrack: create session dir: %w", err)
		}
		fs := sessions.NewFilesystemStore(a.Config.SessionDir, []byte(a.Config.SessionSecret))
		// A full visit log is far larger than the securecookie default.
		fs.MaxLength(0)
		fs.Options = a.sessionOptions()
		a.sessionStore = fs
	} else {
		cs := sessions.NewCookieStore([]byte(a.Config.SessionSecret))
		cs.Options = a.sessionOptions()
		a.sessionStore = cs
	}

	if a.Config.EventsEnabled {
		store, err := events.NewStore(a.Config.EventsDatabasePath)
		if err != nil {
			return fmt.Errorf("pagetrack: init events: %w", err)
		}
		store.SetLogger(a.logger)
		store.SetClock(a.now)
		a.Events = store
	}

	a.limiter = newRateLimiter(a.Config.RateLimit, time.Minute)

	a.setupMiddleware()
	a.setupRoutes()

	for _, fn := range a.customRoutes {
		fn(a)
	}
	return nil
}

// Start initializes the app and starts the server.
func (a *App) Start() error {
	if err := a.Init(); err != nil {
		return err
	}
	if a.Events != nil {
		a.stopCleanup = a.Events.StartCleanupScheduler(a.Config.EventRetentionDays, 24*time.Hour)
	}

	if err := a.Echo.Start(a.Config.Addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close cleans up resources. Call this when the app is shutting down.
func (a *App) Close() error {
	if a.stopCleanup != nil {
		a.stopCleanup()
	}
	if a.limiter != nil {
		a.limiter.stop()
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Errorf("close visit store: %v", err)
		}
	}
	if a.Events != nil {
		if err := a.Events.Close(); err != nil {
			a.logger.Errorf("close event store: %v", err)
		}
	}
	return nil
}

// OpenBackend opens the server-side visit store selected by cfg.Store. The
// session backend has no server-side handle and is rejected.
func OpenBackend(cfg Config) (kv.Backend, error) {
	cfg.setDefaults()
	switch cfg.Store {
	case StoreMemory:
		return kv.NewMemory(), nil
	case StoreSQLite:
		return kv.OpenSQLite(cfg.DatabasePath)
	case StoreBadger:
		return kv.OpenBadger(cfg.BadgerDir)
	case StoreSession:
		return nil, fmt.Errorf("the session backend keeps visits in client sessions only")
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}

// VisitorStore namespaces a shared backend for one visitor.
func VisitorStore(base kv.Store, visitorID string) *kv.PrefixedStore {
	return kv.Prefixed(base, "visitor/"+visitorID+"/")
}

// NewVisitLog builds a visit log over s configured from cfg.
func NewVisitLog(cfg Config, s kv.Store, opts ...visitlog.Option) (*visitlog.Log, error) {
	cfg.setDefaults()
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	base := []visitlog.Option{
		visitlog.WithCapacity(cfg.Capacity),
		visitlog.WithLocation(loc),
	}
	return visitlog.New(s, append(base, opts...)...), nil
}

// sessionOptions keeps the visitor cookie for a year. Cross-origin tracking
// needs SameSite=None so credentialed fetches from allowed origins carry it.
func (a *App) sessionOptions() *sessions.Options {
	sameSite := http.SameSiteLaxMode
	if len(a.Config.AllowedOrigins) > 0 {
		sameSite = http.SameSiteNoneMode
	}
	return &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		MaxAge:   60 * 60 * 24 * 365,
		SameSite: sameSite,
		Secure:   a.Config.CookieSecure,
	}
}

func parseLevel(s string) log.Lvl {
	switch s {
	case "debug":
		return log.DEBUG
	case "warn":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}
