package internal

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/rallylog/internal/hybrid"
	"github.com/starford/rallylog/internal/vectorindex"
)

func testConfig(t *testing.T, provider string) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Journal.VaultPath = filepath.Join(dir, "vault")
	cfg.Embedding.Provider = provider
	cfg.Embedding.Dimensions = 8
	cfg.Embedding.Interval = 0
	cfg.Vector.Backend = vectorindex.BackendSQLite
	cfg.Vector.Path = filepath.Join(dir, "vectors.db")
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func writeRecord(t *testing.T, cfg *Config, rel, content string) {
	t.Helper()
	p := filepath.Join(cfg.Journal.VaultPath, cfg.Journal.Dir, rel)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReindex_FakeProvider(t *testing.T) {
	cfg := testConfig(t, "fake")
	writeRecord(t, cfg, "2025/01/2025-01-10-180000-match.md",
		"---\ndate: \"2025-01-10\"\nscene: match\ntags: [serve]\n---\n\nserve toss drifted\n")
	writeRecord(t, cfg, "2025/01/2025-01-12-090000-practice.md",
		"---\ndate: \"2025-01-12\"\nscene: practice\n---\n\nvolley drills\n")

	st, err := Reindex(context.Background(), false, WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if st.Scanned != 2 || st.Embedded != 2 {
		t.Errorf("first run = %+v", st)
	}

	// Vectors persist across runs, so nothing changed means nothing embedded.
	st, err = Reindex(context.Background(), false, WithConfig(cfg), WithLogOutput(io.Discard))
	if err != nil {
		t.Fatalf("Reindex: %v", err)
	}
	if st.Skipped != 2 || st.Embedded != 0 {
		t.Errorf("second run = %+v", st)
	}
}

func TestReindex_EmbeddingDisabled(t *testing.T) {
	cfg := testConfig(t, EmbeddingDisabled)
	if _, err := Reindex(context.Background(), false, WithConfig(cfg), WithLogOutput(io.Discard)); err == nil {
		t.Fatal("reindex without a provider should fail")
	}
}

func TestQuery_Modes(t *testing.T) {
	cfg := testConfig(t, EmbeddingDisabled)
	writeRecord(t, cfg, "2024/06/2024-06-01-100000-practice.md",
		"---\ndate: \"2024-06-01\"\nscene: practice\n---\n\nforehand felt スパッ today\n")

	ctx := context.Background()
	res, err := Query(ctx, QueryRequest{Mode: QueryRecent}, WithConfig(cfg))
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(res.Hits) != 1 || res.Source != hybrid.SourceRecent {
		t.Errorf("recent = %+v", res)
	}

	res, err = Query(ctx, QueryRequest{Mode: QuerySensation, Text: "スパッ"}, WithConfig(cfg))
	if err != nil {
		t.Fatalf("sensation: %v", err)
	}
	if res.Status != hybrid.StatusMatched {
		t.Errorf("sensation status = %s", res.Status)
	}

	if _, err := Query(ctx, QueryRequest{Mode: "guess"}, WithConfig(cfg)); err == nil {
		t.Error("unknown mode should fail")
	}
}

func TestSetup_RequiresConfig(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Fatal("Run without config should fail")
	}
}
