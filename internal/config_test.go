package internal

import (
	"strings"
	"testing"
	"time"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Embedding.Enabled() {
		t.Error("embedding should be off by default")
	}
}

func TestJournalConfig_Required(t *testing.T) {
	cfg := JournalConfig{Dir: "sessions"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing vault path should fail")
	}
	cfg = JournalConfig{VaultPath: "./vault", Dir: "sessions", CacheTTL: -time.Second}
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative cache ttl should fail")
	}
}

func TestEmbeddingConfig_EmptyProviderDisables(t *testing.T) {
	cfg := EmbeddingConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty provider should validate: %v", err)
	}
	if cfg.Provider != EmbeddingDisabled || cfg.Enabled() {
		t.Errorf("provider = %q, enabled = %v", cfg.Provider, cfg.Enabled())
	}
}

func TestEmbeddingConfig_Providers(t *testing.T) {
	cases := []struct {
		cfg     EmbeddingConfig
		wantErr string
	}{
		{EmbeddingConfig{Provider: "ollama"}, ""},
		{EmbeddingConfig{Provider: "fake", Dimensions: 16}, ""},
		{EmbeddingConfig{Provider: "gemini", APIKey: "k"}, ""},
		{EmbeddingConfig{Provider: "gemini"}, "requires api_key"},
		{EmbeddingConfig{Provider: "openai", BaseURL: "http://localhost:8000/v1"}, ""},
		{EmbeddingConfig{Provider: "openai"}, "requires api_key or base_url"},
		{EmbeddingConfig{Provider: "word2vec"}, "must be a valid value"},
		{EmbeddingConfig{Provider: "fake", Attempts: 50}, "no greater than 10"},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		switch {
		case tc.wantErr == "" && err != nil:
			t.Errorf("%+v: unexpected error %v", tc.cfg, err)
		case tc.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tc.wantErr)):
			t.Errorf("%+v: error = %v, want containing %q", tc.cfg, err, tc.wantErr)
		}
	}
}

func TestEmbeddingConfig_Conversions(t *testing.T) {
	cfg := EmbeddingConfig{
		Provider:       "ollama",
		Model:          "nomic-embed-text",
		DocumentPrefix: "search_document: ",
		QueryPrefix:    "search_query: ",
		Attempts:       2,
		Interval:       50 * time.Millisecond,
	}
	pc := cfg.ProviderConfig()
	if pc.Provider != "ollama" || pc.Model != "nomic-embed-text" || pc.Prefixes.Query != "search_query: " {
		t.Errorf("provider config = %+v", pc)
	}
	if n := len(cfg.GeneratorOptions()); n != 2 {
		t.Errorf("generator options = %d, want 2", n)
	}
	if n := len((&EmbeddingConfig{}).GeneratorOptions()); n != 0 {
		t.Errorf("zero config options = %d, want 0", n)
	}
}

func TestVectorConfig_Validate(t *testing.T) {
	cases := []struct {
		cfg VectorConfig
		ok  bool
	}{
		{VectorConfig{Backend: "sqlite", Path: "v.db"}, true},
		{VectorConfig{Backend: "sqlite"}, false},
		{VectorConfig{Backend: "chromem", Path: "vectors"}, false},
		{VectorConfig{Backend: "chromem", Path: "vectors", Collection: "journal_records"}, true},
		{VectorConfig{Backend: "memory"}, true},
		{VectorConfig{Backend: "pinecone", Path: "x"}, false},
	}
	for _, tc := range cases {
		err := tc.cfg.Validate()
		if (err == nil) != tc.ok {
			t.Errorf("%+v: err = %v, want ok=%v", tc.cfg, err, tc.ok)
		}
	}
	vc := VectorConfig{Backend: "chromem", Path: "p", Collection: "c"}
	idx := vc.IndexConfig()
	if idx.Backend != "chromem" || idx.Path != "p" || idx.Collection != "c" {
		t.Errorf("index config = %+v", idx)
	}
}
