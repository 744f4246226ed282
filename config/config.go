package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"dupguard/internal/domain"
)

const (
	// FileName is the project-level configuration file.
	FileName = "dupguard.yaml"
	// EnvPrefix prefixes every environment override, e.g. DUPGUARD_STORE_HOST.
	EnvPrefix = "DUPGUARD"
)

// Config holds all configuration for dupguard.
type Config struct {
	SimilarityThreshold   float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	WorkspaceNameOverride string  `yaml:"workspace_name_override" mapstructure:"workspace_name_override"`
	DebugLogging          bool    `yaml:"debug_logging" mapstructure:"debug_logging"`

	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Embedding EmbeddingConfig `yaml:"embedding" mapstructure:"embedding"`
	Index     IndexConfig     `yaml:"index" mapstructure:"index"`
	Guard     GuardConfig     `yaml:"guard" mapstructure:"guard"`
	Workspace WorkspaceConfig `yaml:"workspace" mapstructure:"workspace"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry" mapstructure:"telemetry"`
}

// StoreConfig holds vector store connection settings.
type StoreConfig struct {
	Transport      string        `yaml:"transport" mapstructure:"transport"` // "http", "grpc", "memory"
	Host           string        `yaml:"host" mapstructure:"host"`
	Port           int           `yaml:"port" mapstructure:"port"`
	APIKey         string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"` // per attempt
	MaxAttempts    int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider  string        `yaml:"provider" mapstructure:"provider"` // "local", "openai", "ollama", "gemini"
	Model     string        `yaml:"model" mapstructure:"model"`
	Dimension int           `yaml:"dimension" mapstructure:"dimension"`
	BaseURL   string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	APIKeyEnv string        `yaml:"api_key_env,omitempty" mapstructure:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout"`
	CacheSize int           `yaml:"cache_size" mapstructure:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
}

// IndexConfig holds indexing configuration.
type IndexConfig struct {
	Includes     []string `yaml:"includes" mapstructure:"includes"`
	Excludes     []string `yaml:"excludes" mapstructure:"excludes"`
	MaxFileBytes int64    `yaml:"max_file_bytes" mapstructure:"max_file_bytes"`
	ChunkLines   int      `yaml:"chunk_lines" mapstructure:"chunk_lines"`
	ChunkOverlap int      `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`
	MinUnitChars int      `yaml:"min_unit_chars" mapstructure:"min_unit_chars"`
	Workers      int      `yaml:"workers" mapstructure:"workers"`
	QueueSize    int      `yaml:"queue_size" mapstructure:"queue_size"`
	Reconcile    string   `yaml:"reconcile" mapstructure:"reconcile"` // cron spec, empty disables
	StateDir     string   `yaml:"state_dir" mapstructure:"state_dir"`
}

// GuardConfig holds duplicate-check settings.
type GuardConfig struct {
	TopK          int           `yaml:"top_k" mapstructure:"top_k"`
	Timeout       time.Duration `yaml:"timeout" mapstructure:"timeout"`
	Concurrency   int           `yaml:"concurrency" mapstructure:"concurrency"`
	OverrideToken string        `yaml:"override_token,omitempty" mapstructure:"override_token"`
}

// WorkspaceConfig controls project root detection.
type WorkspaceConfig struct {
	Markers          []string `yaml:"markers" mapstructure:"markers"`
	MaxDepth         int      `yaml:"max_depth" mapstructure:"max_depth"`
	GlobalCollection string   `yaml:"global_collection" mapstructure:"global_collection"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	File       string `yaml:"file,omitempty" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty" mapstructure:"otlp_endpoint"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		SimilarityThreshold: 0.70,
		Store: StoreConfig{
			Transport:      "http",
			Host:           "localhost",
			Port:           6333,
			Timeout:        3 * time.Second,
			MaxAttempts:    3,
			InitialBackoff: 200 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:  "local",
			Dimension: 384,
			Timeout:   10 * time.Second,
			CacheSize: 1024,
			CacheTTL:  10 * time.Minute,
		},
		Index: IndexConfig{
			Includes: []string{
				"**/*.go", "**/*.py", "**/*.rb", "**/*.js", "**/*.jsx", "**/*.ts", "**/*.tsx",
				"**/*.java", "**/*.kt", "**/*.scala", "**/*.swift", "**/*.c", "**/*.h",
				"**/*.cpp", "**/*.hpp", "**/*.cc", "**/*.cs", "**/*.rs", "**/*.php",
				"**/*.sh",
			},
			Excludes: []string{
				"**/node_modules/**", "**/vendor/**", "**/.git/**", "**/dist/**", "**/build/**",
				"**/__pycache__/**", "**/.venv/**", "**/target/**", "**/*.min.js",
			},
			MaxFileBytes: 1 << 20,
			ChunkLines:   40,
			ChunkOverlap: 10,
			MinUnitChars: 20,
			Workers:      4,
			QueueSize:    256,
			Reconcile:    "@every 30m",
			StateDir:     ".dupguard",
		},
		Guard: GuardConfig{
			TopK:        5,
			Timeout:     5 * time.Second,
			Concurrency: 4,
		},
		Workspace: WorkspaceConfig{
			Markers: []string{
				".git", ".hg", ".svn", "go.mod", "package.json", "pyproject.toml", "setup.py",
				"Cargo.toml", "pom.xml", "build.gradle", "composer.json", "Gemfile", ".dupguard",
			},
			MaxDepth:         32,
			GlobalCollection: "dupguard_global",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// Load layers defaults, the YAML file at path (if it exists) and DUPGUARD_*
// environment variables. An empty path loads defaults and environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	defaults, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("encoding defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("reading defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		case !os.IsNotExist(err):
			return nil, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	return &cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for dupguard.yaml,
// then <state_dir>/config.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, DefaultConfig().Index.StateDir, "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return Load("")
}

// Validate returns the fatal problems in the configuration. Each error wraps
// domain.ErrConfiguration.
func (c *Config) Validate() []error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{domain.ErrConfiguration}, args...)...))
	}

	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		add("similarity_threshold %.2f is outside [0, 1]", c.SimilarityThreshold)
	}
	switch c.Store.Transport {
	case "http", "grpc", "memory":
	default:
		add("unknown store.transport %q", c.Store.Transport)
	}
	if c.Store.Transport != "memory" && (c.Store.Port <= 0 || c.Store.Port > 65535) {
		add("store.port %d is invalid", c.Store.Port)
	}
	if c.Store.MaxAttempts <= 0 {
		add("store.max_attempts must be positive")
	}
	switch c.Embedding.Provider {
	case "local", "openai", "ollama", "gemini":
	default:
		add("unknown embedding.provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimension <= 0 {
		add("embedding.dimension must be positive")
	}
	if c.Guard.TopK <= 0 {
		add("guard.top_k must be positive")
	}
	if c.Guard.Timeout <= 0 {
		add("guard.timeout must be positive")
	}
	if c.Index.Workers <= 0 {
		add("index.workers must be positive")
	}
	if c.Index.ChunkLines <= 0 || c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkLines {
		add("index.chunk_overlap must be in [0, chunk_lines)")
	}
	return errs
}

// Warnings returns non-fatal configuration issues.
func (c *Config) Warnings() []string {
	var warnings []string

	switch c.Embedding.Provider {
	case "openai", "gemini":
		if c.Embedding.APIKeyEnv == "" {
			warnings = append(warnings, fmt.Sprintf("embedding provider '%s' is configured but api_key_env is empty", c.Embedding.Provider))
		} else if os.Getenv(c.Embedding.APIKeyEnv) == "" {
			warnings = append(warnings, fmt.Sprintf("embedding provider '%s' is configured but $%s is not set", c.Embedding.Provider, c.Embedding.APIKeyEnv))
		}
	}
	if c.SimilarityThreshold < 0.5 {
		warnings = append(warnings, fmt.Sprintf("similarity_threshold %.2f is low and will block loosely related code", c.SimilarityThreshold))
	}
	if c.Store.Transport == "memory" {
		warnings = append(warnings, "store.transport 'memory' keeps points inside this process; index, watch and check will not share them")
	}
	if c.Store.Timeout > c.Guard.Timeout {
		warnings = append(warnings, "store.timeout exceeds guard.timeout; every guard query will fail open")
	}
	return warnings
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// StateDir returns the absolute indexer state directory for a workspace root.
func (c *Config) StateDir(root string) string {
	if filepath.IsAbs(c.Index.StateDir) {
		return c.Index.StateDir
	}
	return filepath.Join(root, c.Index.StateDir)
}

// LedgerPath returns the path to the indexer ledger database.
func (c *Config) LedgerPath(root string) string {
	return filepath.Join(c.StateDir(root), "ledger.db")
}

// EnsureStateDir ensures the state directory exists.
func (c *Config) EnsureStateDir(root string) error {
	return os.MkdirAll(c.StateDir(root), 0755)
}
