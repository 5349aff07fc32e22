package hybrid

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode"
)

// MaxKeywords caps how many keywords a free-text query is reduced to.
const MaxKeywords = 5

// KeywordExtractor reduces free text to search keywords, typically by asking
// a language model. Failures are tolerated: the engine falls back to
// NaiveKeywords.
type KeywordExtractor interface {
	ExtractKeywords(ctx context.Context, text string) ([]string, error)
}

// KeywordExtractorFunc adapts a function to KeywordExtractor.
type KeywordExtractorFunc func(ctx context.Context, text string) ([]string, error)

func (f KeywordExtractorFunc) ExtractKeywords(ctx context.Context, text string) ([]string, error) {
	return f(ctx, text)
}

// onomatopoeiaRe catches katakana feel words such as "バシッ" or "ギューン".
var onomatopoeiaRe = regexp.MustCompile(`[ァ-ヴー]{2,4}[ッー]+`)

var stopwords = map[string]bool{
	"the": true, "and": true, "was": true, "were": true, "what": true,
	"did": true, "how": true, "my": true, "is": true, "are": true,
	"with": true, "for": true, "to": true, "of": true, "in": true,
	"on": true, "at": true, "it": true, "do": true, "does": true,
	"when": true, "why": true, "about": true, "that": true, "this": true,
	"me": true, "an": true, "be": true, "as": true,
}

// NaiveKeywords picks up to MaxKeywords keywords from text without any
// model: synonym-table entries first, then katakana onomatopoeia, then
// whitespace and punctuation separated words of at least two characters.
func NaiveKeywords(text string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(s string) bool {
		k := strings.ToLower(s)
		if s == "" || seen[k] {
			return len(out) < MaxKeywords
		}
		seen[k] = true
		out = append(out, s)
		return len(out) < MaxKeywords
	}

	for _, s := range dictionaryTerms(text) {
		if !add(s) {
			return out
		}
	}
	for _, s := range onomatopoeiaRe.FindAllString(text, -1) {
		if !add(s) {
			return out
		}
	}
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	for _, f := range fields {
		if len([]rune(f)) < 2 || stopwords[strings.ToLower(f)] {
			continue
		}
		if !add(f) {
			return out
		}
	}
	return out
}

func (e *Engine) keywords(ctx context.Context, text string) []string {
	if e.extractor != nil {
		kws, err := e.extractor.ExtractKeywords(ctx, text)
		switch {
		case err != nil:
			e.logger.Warn("hybrid: keyword extraction failed, using naive tokens",
				slog.String("error", err.Error()))
		case len(clean(kws)) > 0:
			return clean(kws)
		}
	}
	return NaiveKeywords(text)
}

func clean(kws []string) []string {
	out := make([]string, 0, len(kws))
	for _, k := range kws {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}
