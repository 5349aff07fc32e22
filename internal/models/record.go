// Package models defines the domain types for Rallylog.
package models

import (
	"strings"
	"time"
)

// DateLayout is the calendar-day format used in headers and vector metadata.
const DateLayout = "2006-01-02"

// Record represents one parsed journal entry.
type Record struct {
	ID         string         `json:"id"`
	Path       string         `json:"path"`
	Date       time.Time      `json:"date"`
	Scene      string         `json:"scene"`
	Tags       []string       `json:"tags"`
	Title      string         `json:"title,omitempty"`
	Body       string         `json:"body"`
	Extra      map[string]any `json:"extra,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	ModifiedAt time.Time      `json:"modified_at"`
}

// HasDate reports whether the record carries a known calendar day.
func (r *Record) HasDate() bool {
	return !r.Date.IsZero()
}

// DateString returns the date as YYYY-MM-DD, or "" when unknown.
func (r *Record) DateString() string {
	if !r.HasDate() {
		return ""
	}
	return r.Date.Format(DateLayout)
}

// HasTag reports whether the record carries tag (case-insensitive).
func (r *Record) HasTag(tag string) bool {
	for _, t := range r.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether day d falls within the range. Times are compared
// by calendar day only.
func (r DateRange) Contains(d time.Time) bool {
	day := Day(d)
	return !day.Before(Day(r.From)) && !day.After(Day(r.To))
}

// SearchFilters describes a lexical query. The zero value matches everything.
type SearchFilters struct {
	Keywords     []string   `json:"keywords,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	Scene        string     `json:"scene,omitempty"`
	DateRange    *DateRange `json:"date_range,omitempty"`
	MatchAllTags bool       `json:"match_all_tags,omitempty"`
}

// Day truncates t to midnight of its calendar day in UTC, keeping the
// wall-clock year/month/day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
