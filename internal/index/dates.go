package index

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/starford/rallylog/internal/models"
)

var (
	fullDateRe  = regexp.MustCompile(`(\d{4})[-/](\d{1,2})[-/](\d{1,2})`)
	shortDateRe = regexp.MustCompile(`(?:^|[^\d/])(\d{1,2})/(\d{1,2})(?:$|[^\d/])`)
	daysAgoRe   = regexp.MustCompile(`(?i)(\d+)\s*(?:days?\s+ago|日前)`)
)

// relativeDays maps fixed phrases to an offset in days. Longer phrases come
// first so "一昨日" is not read as "昨日".
var relativeDays = []struct {
	phrase string
	days   int
}{
	{"day before yesterday", 2},
	{"一昨日", 2},
	{"おととい", 2},
	{"yesterday", 1},
	{"昨日", 1},
	{"きのう", 1},
	{"today", 0},
	{"今日", 0},
}

// ExtractDate finds a calendar day in free text. Absolute forms win over
// relative ones: YYYY-MM-DD or YYYY/MM/DD, then MM/DD in now's year, then
// the fixed relative phrases, then "N days ago" / "N日前".
func ExtractDate(text string, now time.Time) (time.Time, bool) {
	if strings.TrimSpace(text) == "" {
		return time.Time{}, false
	}

	if m := fullDateRe.FindStringSubmatch(text); m != nil {
		if d, ok := calendarDay(atoi(m[1]), atoi(m[2]), atoi(m[3])); ok {
			return d, true
		}
	}
	if m := shortDateRe.FindStringSubmatch(text); m != nil {
		if d, ok := calendarDay(now.Year(), atoi(m[1]), atoi(m[2])); ok {
			return d, true
		}
	}

	lower := strings.ToLower(text)
	for _, rel := range relativeDays {
		if strings.Contains(lower, rel.phrase) {
			return models.Day(now.AddDate(0, 0, -rel.days)), true
		}
	}
	if m := daysAgoRe.FindStringSubmatch(text); m != nil {
		return models.Day(now.AddDate(0, 0, -atoi(m[1]))), true
	}
	return time.Time{}, false
}

// calendarDay rejects dates time.Date would normalize, such as 2/30.
func calendarDay(y, m, d int) (time.Time, bool) {
	if m < 1 || m > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Month() != time.Month(m) || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
