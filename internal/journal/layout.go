package journal

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/starford/rallylog/internal/models"
)

// DefaultDir is the vault subtree holding record files.
const DefaultDir = "sessions"

// DefaultScene is used when a record is written without a scene.
const DefaultScene = "practice"

const stampLayout = "2006-01-02-150405"

// filenameRe matches "YYYY-MM-DD-HHMMSS-scene".
var filenameRe = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2}-\d{6})-(.+)$`)

// recordPath builds sessions/YYYY/MM/YYYY-MM-DD-HHMMSS-scene[-n].md.
func recordPath(dir string, created time.Time, scene string, n int) string {
	name := created.Format(stampLayout) + "-" + sanitizeScene(scene)
	if n > 1 {
		name = fmt.Sprintf("%s-%d", name, n)
	}
	return path.Join(dir, created.Format("2006"), created.Format("01"), name+".md")
}

// sanitizeScene makes scene safe for a file name. Letters in any script are
// kept; separators and punctuation become '_'.
func sanitizeScene(scene string) string {
	scene = strings.TrimSpace(scene)
	if scene == "" {
		return DefaultScene
	}
	var b strings.Builder
	for _, r := range scene {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// IDFromPath returns the record id for a vault path: the file name without
// extension.
func IDFromPath(p string) string {
	return strings.TrimSuffix(path.Base(p), ".md")
}

// filenameInfo recovers the timestamp and scene encoded in a record id.
func filenameInfo(id string) (created time.Time, scene string, ok bool) {
	m := filenameRe.FindStringSubmatch(id)
	if m == nil {
		return time.Time{}, "", false
	}
	created, err := time.ParseInLocation(stampLayout, m[1], time.Local)
	if err != nil {
		return time.Time{}, "", false
	}
	return created, m[2], true
}

// pathForID guesses where a record with the given id lives.
func pathForID(dir, id string) (string, bool) {
	created, _, ok := filenameInfo(id)
	if !ok {
		return "", false
	}
	return path.Join(dir, created.Format("2006"), created.Format("01"), id+".md"), true
}

// formatCallout renders an appended block in the vault's callout style.
func formatCallout(label, text string, at time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "> [!tip] %s (%s)\n", label, at.Format("2006-01-02 15:04"))
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			b.WriteString(">\n")
			continue
		}
		b.WriteString("> " + line + "\n")
	}
	return b.String()
}

func dayOf(t time.Time) time.Time {
	return models.Day(t)
}
