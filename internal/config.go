package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/rallylog/internal/embedding"
	"github.com/starford/rallylog/internal/index"
	"github.com/starford/rallylog/internal/journal"
	"github.com/starford/rallylog/internal/vectorindex"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// EmbeddingDisabled turns off the vector path; queries run lexical only.
const EmbeddingDisabled = "none"

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Journal   JournalConfig     `yaml:"journal"`
	Embedding EmbeddingConfig   `yaml:"embedding"`
	Vector    VectorConfig      `yaml:"vector"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Journal.Validate(); err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	if err := c.Embedding.Validate(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := c.Vector.Validate(); err != nil {
		return fmt.Errorf("vector: %w", err)
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// JournalConfig locates the Markdown vault and tunes the scan cache.
type JournalConfig struct {
	VaultPath string        `yaml:"vault_path"`
	Dir       string        `yaml:"dir"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// Validate validates the journal configuration.
func (c *JournalConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.VaultPath, validation.Required),
		validation.Field(&c.Dir, validation.Required),
		validation.Field(&c.CacheTTL, validation.Min(time.Duration(0))),
	)
}

// EmbeddingConfig selects the embedding provider and its call policy.
//
// Provider is one of "gemini", "openai", "ollama", "fake" or "none". With
// "none" no vectors are written and every query takes the lexical path.
type EmbeddingConfig struct {
	Provider       string        `yaml:"provider"`
	Model          string        `yaml:"model"`
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Dimensions     int           `yaml:"dimensions"`
	DocumentPrefix string        `yaml:"document_prefix"`
	QueryPrefix    string        `yaml:"query_prefix"`
	Timeout        time.Duration `yaml:"timeout"`
	Attempts       int           `yaml:"attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	Interval       time.Duration `yaml:"interval"`
}

// Enabled reports whether a provider is configured.
func (c *EmbeddingConfig) Enabled() bool {
	return c.Provider != "" && c.Provider != EmbeddingDisabled
}

// ProviderConfig converts c for embedding.NewProvider.
func (c *EmbeddingConfig) ProviderConfig() embedding.ProviderConfig {
	return embedding.ProviderConfig{
		Provider:   c.Provider,
		Model:      c.Model,
		APIKey:     c.APIKey,
		BaseURL:    c.BaseURL,
		Dimensions: c.Dimensions,
		Prefixes: embedding.Prefixes{
			Document: c.DocumentPrefix,
			Query:    c.QueryPrefix,
		},
	}
}

// Validate validates the embedding configuration.
func (c *EmbeddingConfig) Validate() error {
	if c.Provider == "" {
		c.Provider = EmbeddingDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Provider, validation.In(
			EmbeddingDisabled,
			embedding.ProviderGemini,
			embedding.ProviderOpenAI,
			embedding.ProviderOllama,
			embedding.ProviderFake,
		)),
		validation.Field(&c.Dimensions, validation.Min(0)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.Attempts, validation.Min(0), validation.Max(10)),
		validation.Field(&c.Interval, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
	if c.Provider == embedding.ProviderGemini && c.APIKey == "" {
		return fmt.Errorf("provider %q requires api_key", c.Provider)
	}
	if c.Provider == embedding.ProviderOpenAI && c.APIKey == "" && c.BaseURL == "" {
		return fmt.Errorf("provider %q requires api_key or base_url", c.Provider)
	}
	return nil
}

// GeneratorOptions returns the call policy as embedding options. Zero
// values keep the generator defaults.
func (c *EmbeddingConfig) GeneratorOptions() []embedding.Option {
	var opts []embedding.Option
	if c.Timeout > 0 {
		opts = append(opts, embedding.WithTimeout(c.Timeout))
	}
	if c.Attempts > 0 {
		delay := c.BaseDelay
		if delay <= 0 {
			delay = embedding.DefaultBaseDelay
		}
		opts = append(opts, embedding.WithRetry(c.Attempts, delay))
	}
	if c.Interval > 0 {
		opts = append(opts, embedding.WithInterval(c.Interval))
	}
	return opts
}

// VectorConfig selects the vector index backend.
type VectorConfig struct {
	Backend    string `yaml:"backend"`
	Path       string `yaml:"path"`
	Collection string `yaml:"collection"`
}

// IndexConfig converts c for vectorindex.Open.
func (c *VectorConfig) IndexConfig() vectorindex.Config {
	return vectorindex.Config{Backend: c.Backend, Path: c.Path, Collection: c.Collection}
}

// Validate validates the vector configuration.
func (c *VectorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(
			vectorindex.BackendSQLite,
			vectorindex.BackendChromem,
			vectorindex.BackendMemory,
		)),
		validation.Field(&c.Path, validation.When(c.Backend != vectorindex.BackendMemory, validation.Required)),
		validation.Field(&c.Collection, validation.When(c.Backend == vectorindex.BackendChromem, validation.Required)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Journal: JournalConfig{
			VaultPath: "./vault",
			Dir:       journal.DefaultDir,
			CacheTTL:  index.DefaultTTL,
		},
		Embedding: EmbeddingConfig{
			Provider: EmbeddingDisabled,
		},
		Vector: VectorConfig{
			Backend:    vectorindex.BackendSQLite,
			Path:       "./rallylog-vectors.db",
			Collection: "journal_records",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
