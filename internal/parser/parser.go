// Package parser decodes and renders the header + body format of journal records.
package parser

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/rallylog/internal/apperr"
	"github.com/starford/rallylog/internal/models"
)

const delim = "---"

// Header keys with a dedicated Document field. Everything else lands in Extra.
const (
	keyDate  = "date"
	keyScene = "scene"
	keyTags  = "tags"
	keyTitle = "title"
)

// dateLayouts are tried in order when decoding the header date.
var dateLayouts = []string{
	models.DateLayout,
	"2006/01/02",
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
}

// Document is the decoded form of a record file.
type Document struct {
	Date  time.Time // zero when missing or unparsable
	Scene string
	Tags  []string
	Title string // header title, else first H1, else ""
	Extra map[string]any
	Body  string
}

// Parse splits the header block from the body and decodes it. A file with
// no header, an unterminated header or invalid YAML yields ErrParse.
func Parse(data []byte) (*Document, error) {
	fm, body, err := splitHeader(data)
	if err != nil {
		return nil, err
	}

	doc := &Document{
		Body: strings.TrimSpace(body),
	}

	for k, v := range fm {
		switch k {
		case keyDate:
			doc.Date, _ = decodeDate(v)
		case keyScene:
			if s, ok := v.(string); ok {
				doc.Scene = strings.TrimSpace(s)
			}
		case keyTags:
			doc.Tags = decodeTags(v)
		case keyTitle:
			if s, ok := v.(string); ok {
				doc.Title = strings.TrimSpace(s)
			}
		default:
			if doc.Extra == nil {
				doc.Extra = make(map[string]any)
			}
			doc.Extra[k] = v
		}
	}
	if doc.Title == "" {
		doc.Title = deriveTitle(doc.Body)
	}
	return doc, nil
}

// splitHeader separates the YAML header (between leading --- delimiters) from
// the body.
func splitHeader(data []byte) (map[string]any, string, error) {
	trimmed := bytes.TrimLeft(data, "\n\r\ufeff")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, "", fmt.Errorf("missing header: %w", apperr.ErrParse)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, "", fmt.Errorf("unterminated header: %w", apperr.ErrParse)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	fm := map[string]any{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, "", fmt.Errorf("decode header: %v: %w", err, apperr.ErrParse)
	}
	return fm, body, nil
}

// decodeDate accepts the string forms yaml.v3 hands back for timestamp-like
// scalars as well as an explicit time value.
func decodeDate(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return models.Day(d), true
	case string:
		return ParseDate(d)
	}
	return time.Time{}, false
}

// ParseDate parses a calendar day in any of the accepted header layouts.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.Day(t), true
		}
	}
	return time.Time{}, false
}

// decodeTags accepts a YAML list or a comma-separated string. Blank and
// duplicate entries are dropped; first occurrence order is kept.
func decodeTags(v any) []string {
	var raw []string
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if item == nil {
				continue
			}
			raw = append(raw, fmt.Sprint(item))
		}
	case string:
		raw = strings.Split(t, ",")
	}
	return NormalizeTags(raw)
}

// NormalizeTags trims tags, strips a leading '#', and removes blanks and
// duplicates.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimPrefix(strings.TrimSpace(t), "#")
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// deriveTitle returns the first H1 heading of body, otherwise "".
func deriveTitle(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// header is the rendering shape. yaml.v3 emits the fixed keys in field order
// and the inlined Extra keys sorted after them.
type header struct {
	Date  string         `yaml:"date"`
	Scene string         `yaml:"scene"`
	Tags  []string       `yaml:"tags"`
	Title string         `yaml:"title,omitempty"`
	Extra map[string]any `yaml:",inline"`
}

// Render serializes doc into the on-disk format: header block, blank line,
// body, trailing newline. An explicit Title is written only when it differs
// from the one derived from the body.
func Render(doc *Document) ([]byte, error) {
	h := header{
		Scene: doc.Scene,
		Tags:  NormalizeTags(doc.Tags),
	}
	if !doc.Date.IsZero() {
		h.Date = doc.Date.Format(models.DateLayout)
	}
	if doc.Title != "" && doc.Title != deriveTitle(doc.Body) {
		h.Title = doc.Title
	}
	if len(doc.Extra) > 0 {
		h.Extra = make(map[string]any, len(doc.Extra))
		for k, v := range doc.Extra {
			switch k {
			case keyDate, keyScene, keyTags, keyTitle:
				continue
			}
			h.Extra[k] = v
		}
	}

	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(h); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode header: %w", err)
	}
	buf.WriteString(delim + "\n\n")
	if body := strings.TrimSpace(doc.Body); body != "" {
		buf.WriteString(body)
		buf.WriteString("\n")
	}
	return buf.Bytes(), nil
}
