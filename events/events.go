// Package events persists analytics events forwarded by a tracker.
package events

import (
	"strings"
	"time"
)

// Event is a single stored analytics event.
type Event struct {
	ID        int64          `json:"-"`
	Name      string         `json:"name"`
	Params    map[string]any `json:"params"`
	Timestamp time.Time      `json:"timestamp"`
}

// Summary holds aggregated event counts for a time range.
type Summary struct {
	Period string       `json:"period"`
	Total  int          `json:"total"`
	Events []EventCount `json:"events"`
}

// EventCount is the number of times an event name was recorded.
type EventCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// botMarkers are lowercase User-Agent fragments of common crawlers.
var botMarkers = []string{
	"bot", "crawler", "spider", "crawl", "slurp", "scrape",
	"googlebot", "bingbot", "yandex", "baidu", "duckduckbot",
	"facebookexternalhit", "twitterbot", "linkedinbot",
	"ahrefsbot", "semrushbot", "mj12bot", "dotbot", "headlesschrome",
}

// IsBot checks if the User-Agent is likely a bot/crawler.
func IsBot(ua string) bool {
	ua = strings.ToLower(ua)
	for _, bot := range botMarkers {
		if strings.Contains(ua, bot) {
			return true
		}
	}
	return false
}
