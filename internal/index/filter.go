package index

import (
	"cmp"
	"slices"
	"strings"

	"github.com/starford/rallylog/internal/models"
)

// Matches reports whether rec satisfies every predicate in f. Predicates run
// cheapest first: scene, date range, tags, keywords.
func Matches(rec *models.Record, f *models.SearchFilters) bool {
	return matchScene(rec, f.Scene) &&
		matchDateRange(rec, f.DateRange) &&
		matchTags(rec, f.Tags, f.MatchAllTags) &&
		matchKeywords(rec, f.Keywords)
}

func matchScene(rec *models.Record, scene string) bool {
	scene = strings.TrimSpace(scene)
	return scene == "" || strings.EqualFold(rec.Scene, scene)
}

// matchDateRange never matches a record whose date is unknown.
func matchDateRange(rec *models.Record, r *models.DateRange) bool {
	if r == nil {
		return true
	}
	return rec.HasDate() && r.Contains(rec.Date)
}

func matchTags(rec *models.Record, tags []string, all bool) bool {
	wanted := 0
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		wanted++
		has := rec.HasTag(t)
		if all && !has {
			return false
		}
		if !all && has {
			return true
		}
	}
	return wanted == 0 || all
}

// matchKeywords is a case-insensitive substring test over body, title and
// tags. Any one keyword is enough.
func matchKeywords(rec *models.Record, keywords []string) bool {
	var haystack string
	wanted := 0
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if wanted == 0 {
			haystack = searchText(rec)
		}
		wanted++
		if strings.Contains(haystack, kw) {
			return true
		}
	}
	return wanted == 0
}

func searchText(rec *models.Record) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(rec.Title))
	b.WriteByte('\n')
	b.WriteString(strings.ToLower(rec.Body))
	for _, t := range rec.Tags {
		b.WriteByte('\n')
		b.WriteString(strings.ToLower(t))
	}
	return b.String()
}

// SortNewestFirst orders records by date descending with unknown dates last,
// then by modification time descending, then by id.
func SortNewestFirst(recs []models.Record) {
	slices.SortStableFunc(recs, CompareRecency)
}

// CompareRecency is the newest-first ordering used by every ranked list.
func CompareRecency(a, b models.Record) int {
	switch {
	case a.HasDate() && !b.HasDate():
		return -1
	case !a.HasDate() && b.HasDate():
		return 1
	}
	if c := b.Date.Compare(a.Date); c != 0 {
		return c
	}
	if c := b.ModifiedAt.Compare(a.ModifiedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
