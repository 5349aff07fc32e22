package parser

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/starford/rallylog/internal/apperr"
)

func TestParse_HeaderAndBody(t *testing.T) {
	input := []byte("---\ndate: 2025-01-10\nscene: match\ntags:\n  - serve\n  - forehand\ncondition: good\n---\n\n# Finals\nFirst serve held up.\n")
	doc, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	if !doc.Date.Equal(want) {
		t.Errorf("date = %v, want %v", doc.Date, want)
	}
	if doc.Scene != "match" {
		t.Errorf("scene = %q, want match", doc.Scene)
	}
	if len(doc.Tags) != 2 || doc.Tags[0] != "serve" || doc.Tags[1] != "forehand" {
		t.Errorf("tags = %v, want [serve forehand]", doc.Tags)
	}
	if doc.Title != "Finals" {
		t.Errorf("title = %q, want Finals", doc.Title)
	}
	if doc.Body != "# Finals\nFirst serve held up." {
		t.Errorf("body = %q", doc.Body)
	}
	if doc.Extra["condition"] != "good" {
		t.Errorf("extra = %v", doc.Extra)
	}
}

func TestParse_QuotedDateAndSlashLayout(t *testing.T) {
	for _, raw := range []string{`"2025-03-04"`, "2025/03/04"} {
		doc, err := Parse([]byte("---\ndate: " + raw + "\nscene: practice\n---\n\nbody\n"))
		if err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if doc.Date.Format("2006-01-02") != "2025-03-04" {
			t.Errorf("%s: date = %v", raw, doc.Date)
		}
	}
}

func TestParse_UnknownDate(t *testing.T) {
	doc, err := Parse([]byte("---\ndate: someday\nscene: practice\n---\n\nbody\n"))
	if err != nil {
		t.Fatalf("unparsable date should not fail: %v", err)
	}
	if !doc.Date.IsZero() {
		t.Errorf("date = %v, want zero", doc.Date)
	}
}

func TestParse_Malformed(t *testing.T) {
	cases := map[string]string{
		"no header":    "# Just a heading\nSome text.\n",
		"unterminated": "---\ndate: 2025-01-01\nbody without closing\n",
		"invalid yaml": "---\n: invalid: yaml: {{{\n---\nBody\n",
		"scalar yaml":  "---\njust a string\n---\nBody\n",
	}
	for name, input := range cases {
		if _, err := Parse([]byte(input)); !errors.Is(err, apperr.ErrParse) {
			t.Errorf("%s: err = %v, want ErrParse", name, err)
		}
	}
}

func TestParse_CommaSeparatedTags(t *testing.T) {
	doc, err := Parse([]byte("---\ndate: 2025-01-01\nscene: practice\ntags: \"serve, #volley, serve, \"\n---\n\nbody\n"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(doc.Tags, ",") != "serve,volley" {
		t.Errorf("tags = %v, want [serve volley]", doc.Tags)
	}
}

func TestRender_RoundTrip(t *testing.T) {
	in := &Document{
		Date:  time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		Scene: "practice",
		Tags:  []string{"serve", "forehand"},
		Title: "Toss height",
		Extra: map[string]any{"condition": "tired"},
		Body:  "Worked on the toss.\n\n## Notes\nKeep it in front.",
	}
	data, err := Render(in)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.HasPrefix(string(data), "---\ndate: ") || !strings.Contains(string(data), "\nscene: practice\n") {
		t.Errorf("unexpected header:\n%s", data)
	}
	out, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !out.Date.Equal(in.Date) || out.Scene != in.Scene || out.Body != in.Body || out.Title != in.Title {
		t.Errorf("round trip mismatch: %+v", out)
	}
	if strings.Join(out.Tags, ",") != "serve,forehand" {
		t.Errorf("tags = %v", out.Tags)
	}
	if out.Extra["condition"] != "tired" {
		t.Errorf("extra = %v", out.Extra)
	}
}

func TestRender_EmptyTags(t *testing.T) {
	data, err := Render(&Document{Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Scene: "school", Body: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "tags: []\n") {
		t.Errorf("expected empty tag list, got:\n%s", data)
	}
	out, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Tags) != 0 {
		t.Errorf("tags = %v, want empty", out.Tags)
	}
}

func TestRender_DerivedTitleNotDuplicated(t *testing.T) {
	data, err := Render(&Document{Scene: "match", Title: "Heading", Body: "# Heading\ntext"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "title:") {
		t.Errorf("title derived from H1 should not be written:\n%s", data)
	}
}
