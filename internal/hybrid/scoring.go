package hybrid

import (
	"slices"
	"strings"
	"time"

	"github.com/starford/rallylog/internal/index"
	"github.com/starford/rallylog/internal/models"
)

// Score weights.
const (
	titleWeight  = 10
	bodyWeight   = 5
	tagWeight    = 3
	recentBonus  = 2 // dated within recentWindow
	monthsBonus  = 1 // dated within olderWindow
	recentWindow = 30
	olderWindow  = 90
)

// Score is the lexical relevance of rec to terms as of now. For every
// distinct term: +10 when the title contains it plus one per extra
// occurrence, +5 when the body contains it plus one per extra occurrence,
// +3 for each tag containing it. A single recency bonus is added on top.
// Matching is case-insensitive.
func Score(rec models.Record, terms []string, now time.Time) int {
	title := strings.ToLower(rec.Title)
	body := strings.ToLower(rec.Body)

	score := 0
	seen := make(map[string]bool, len(terms))
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true

		if n := strings.Count(title, t); n > 0 {
			score += titleWeight + n - 1
		}
		if n := strings.Count(body, t); n > 0 {
			score += bodyWeight + n - 1
		}
		for _, tag := range rec.Tags {
			if strings.Contains(strings.ToLower(tag), t) {
				score += tagWeight
			}
		}
	}
	return score + recencyBonus(rec, now)
}

func recencyBonus(rec models.Record, now time.Time) int {
	if !rec.HasDate() {
		return 0
	}
	days := int(models.Day(now).Sub(models.Day(rec.Date)).Hours() / 24)
	switch {
	case days <= recentWindow:
		return recentBonus
	case days <= olderWindow:
		return monthsBonus
	}
	return 0
}

// rankByScore scores recs and orders them highest first, breaking ties by
// recency.
func rankByScore(recs []models.Record, terms []string, now time.Time) []Hit {
	hits := make([]Hit, len(recs))
	for i, r := range recs {
		hits[i] = Hit{Record: r, Score: Score(r, terms, now)}
	}
	slices.SortStableFunc(hits, func(a, b Hit) int {
		if a.Score != b.Score {
			return b.Score - a.Score
		}
		return index.CompareRecency(a.Record, b.Record)
	})
	return hits
}
