package visitlog

import "time"

// TimestampFormat is the ISO-8601 layout used for Record.Timestamp. Times are
// always written in UTC, so the zone renders as "Z".
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Record is one observation of a page load.
type Record struct {
	Page      string `json:"page"`
	Timestamp string `json:"timestamp"`
	UserAgent string `json:"userAgent"`
	Language  string `json:"language"`
}

// Time parses the record's timestamp.
func (r Record) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, r.Timestamp)
}

// Client is the ambient client metadata captured with each visit.
type Client struct {
	UserAgent string
	Language  string
}

// Stats is derived from the log on demand and never stored.
type Stats struct {
	TotalVisits int            `json:"totalVisits"`
	PageViews   map[string]int `json:"pageViews"`
	TodayVisits int            `json:"todayVisits"`
	WeekVisits  int            `json:"weekVisits"`
}
