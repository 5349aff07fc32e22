package indexer

import (
	"strings"
	"time"

	"github.com/starford/rallylog/internal/checksum"
	"github.com/starford/rallylog/internal/journal"
	"github.com/starford/rallylog/internal/models"
)

// Metadata keys stored alongside every vector.
const (
	MetaDate     = "date"
	MetaScene    = "scene"
	MetaTags     = "tags"
	MetaPath     = "path"
	MetaChecksum = "checksum"
)

// Document composes the text embedded for rec: scene and tags as labelled
// lines, then the body.
func Document(rec models.Record) string {
	var b strings.Builder
	if rec.Scene != "" {
		b.WriteString("scene: ")
		b.WriteString(rec.Scene)
		b.WriteByte('\n')
	}
	if len(rec.Tags) > 0 {
		b.WriteString("tags: ")
		b.WriteString(strings.Join(rec.Tags, ", "))
		b.WriteByte('\n')
	}
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	b.WriteString(rec.Body)
	return strings.TrimSpace(b.String())
}

// Metadata is the flat vector metadata of rec. The checksum covers the
// embedded text and every other value, so a changed record never looks
// up to date.
func Metadata(rec models.Record) map[string]string {
	md := map[string]string{
		MetaDate:  rec.DateString(),
		MetaScene: rec.Scene,
		MetaTags:  strings.Join(rec.Tags, ","),
		MetaPath:  rec.Path,
	}
	md[MetaChecksum] = checksum.Text(Document(rec), md[MetaDate], md[MetaScene], md[MetaTags], md[MetaPath])
	return md
}

// RecordFromMetadata rebuilds a best-effort record from a vector entry when
// the file itself is unavailable.
func RecordFromMetadata(id string, md map[string]string, document string) models.Record {
	rec := models.Record{
		ID:    id,
		Path:  md[MetaPath],
		Scene: md[MetaScene],
		Tags:  []string{},
		Body:  document,
	}
	if d, err := time.Parse(models.DateLayout, md[MetaDate]); err == nil {
		rec.Date = d
	}
	for _, t := range strings.Split(md[MetaTags], ",") {
		if t = strings.TrimSpace(t); t != "" {
			rec.Tags = append(rec.Tags, t)
		}
	}
	if rec.Scene == "" {
		rec.Scene = journal.DefaultScene
	}
	return rec
}
