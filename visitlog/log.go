// Package visitlog keeps a capped, ordered history of page visits in a string
// key-value store and derives visit statistics from it.
package visitlog

import (
	"fmt"
	"time"

	"github.com/labstack/gommon/log"

	"github.com/eringen/pagetrack/kv"
)

// Key is the store key holding the encoded log.
const Key = "site_visits"

// DefaultCapacity is the maximum number of records kept.
const DefaultCapacity = 1000

// Log is a FIFO-bounded visit history persisted under Key. The whole log is
// read and rewritten on every append; concurrent writers are last-write-wins.
type Log struct {
	store    kv.Store
	capacity int
	now      func() time.Time
	loc      *time.Location
	logger   *log.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithCapacity overrides DefaultCapacity. Non-positive values are ignored.
func WithCapacity(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.capacity = n
		}
	}
}

// WithClock sets the time source used for timestamps and stats windows.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLocation sets the timezone whose calendar defines "today" in Stats.
// The default is time.Local.
func WithLocation(loc *time.Location) Option {
	return func(l *Log) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithLogger replaces the package logger.
func WithLogger(logger *log.Logger) Option {
	return func(l *Log) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New returns a Log stored in s.
func New(s kv.Store, opts ...Option) *Log {
	l := &Log{
		store:    s,
		capacity: DefaultCapacity,
		now:      time.Now,
		loc:      time.Local,
		logger:   log.New("visitlog"),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Capacity returns the maximum number of records kept.
func (l *Log) Capacity() int {
	return l.capacity
}

// load reads the stored log. A missing or unreadable value is an empty log.
func (l *Log) load() ([]Record, error) {
	raw, ok, err := l.store.Get(Key)
	if err != nil {
		return nil, fmt.Errorf("read visit log: %w", err)
	}
	if !ok {
		return nil, nil
	}
	visits, err := Decode(raw)
	if err != nil {
		l.logger.Warnf("discarding unreadable visit log: %v", err)
		return nil, nil
	}
	return visits, nil
}

// Append records a visit to page and persists the log, evicting the single
// oldest record when the log exceeds its capacity. Only storage failures are
// returned; a corrupt stored log is replaced.
func (l *Log) Append(page string, client Client) error {
	visits, err := l.load()
	if err != nil {
		return err
	}

	visits = append(visits, Record{
		Page:      page,
		Timestamp: l.now().UTC().Format(TimestampFormat),
		UserAgent: client.UserAgent,
		Language:  client.Language,
	})
	if len(visits) > l.capacity {
		visits = visits[1:]
	}

	raw, err := Encode(visits)
	if err != nil {
		return err
	}
	if err := l.store.Set(Key, raw); err != nil {
		return fmt.Errorf("write visit log: %w", err)
	}
	return nil
}

// Records returns the stored visits, oldest first.
func (l *Log) Records() ([]Record, error) {
	visits, err := l.load()
	if err != nil {
		return nil, err
	}
	if visits == nil {
		visits = []Record{}
	}
	return visits, nil
}

// Stats aggregates the stored log in a single pass. It never writes.
func (l *Log) Stats() (Stats, error) {
	visits, err := l.load()
	if err != nil {
		return Stats{}, err
	}
	return l.Aggregate(visits), nil
}

// Aggregate computes Stats over visits already read with Records, using the
// log's clock and location.
func (l *Log) Aggregate(visits []Record) Stats {
	stats := Stats{PageViews: make(map[string]int)}

	now := l.now().In(l.loc)
	year, month, day := now.Date()
	weekAgo := now.Add(-7 * 24 * time.Hour)

	for _, v := range visits {
		stats.TotalVisits++
		stats.PageViews[v.Page]++

		ts, err := v.Time()
		if err != nil {
			continue
		}
		ts = ts.In(l.loc)
		if y, m, d := ts.Date(); y == year && m == month && d == day {
			stats.TodayVisits++
		}
		if !ts.Before(weekAgo) {
			stats.WeekVisits++
		}
	}
	return stats
}

// Clear removes the stored log. Clearing an absent log is a no-op.
func (l *Log) Clear() error {
	if err := l.store.Delete(Key); err != nil {
		return fmt.Errorf("clear visit log: %w", err)
	}
	return nil
}
