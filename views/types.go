// Package views contains the HTML components for the visit pages and the view
// models they render. The view models mirror the visitlog types to keep the
// components free of storage imports.
package views

import "time"

// StatsViewModel represents a visitor's statistics for templating.
type StatsViewModel struct {
	VisitorID   string
	TotalVisits int
	TodayVisits int
	WeekVisits  int
	Capacity    int
	Pages       []PageViewModel
	Recent      []VisitViewModel
}

// PageViewModel is the view count of one page label.
type PageViewModel struct {
	Page  string
	Views int
}

// VisitViewModel is one recent visit. When is zero for unreadable timestamps.
type VisitViewModel struct {
	Page     string
	When     time.Time
	Language string
}
