// Package config provides configuration types and defaults for catalog.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/catalog/internal/domain/catalog"
	"github.com/zjrosen/catalog/internal/log"
	"github.com/zjrosen/catalog/internal/storage"
	"github.com/zjrosen/catalog/internal/tracing"
)

// Operating modes.
const (
	ModeEdit    = "edit"
	ModeRuntime = "runtime"
)

// Store backends.
const (
	BackendFS     = "fs"
	BackendSQLite = "sqlite"
	BackendMinio  = "minio"
)

// Config holds all configuration options for catalog.
type Config struct {
	Root          string         `mapstructure:"root"`
	Mode          string         `mapstructure:"mode"`           // "edit" (default) or "runtime"
	CascadeDelete bool           `mapstructure:"cascade_delete"` // Deleting a collection deletes its records
	Store         StoreConfig    `mapstructure:"store"`
	Kinds         []KindConfig   `mapstructure:"kinds"`
	Watch         WatchConfig    `mapstructure:"watch"`
	Cache         CacheConfig    `mapstructure:"cache"`
	Tracing       tracing.Config `mapstructure:"tracing"`
}

// StoreConfig selects and configures the storage backend.
type StoreConfig struct {
	Backend    string      `mapstructure:"backend"`     // "fs" (default), "sqlite" or "minio"
	SQLitePath string      `mapstructure:"sqlite_path"` // Relative paths resolve against root
	Minio      MinioConfig `mapstructure:"minio"`
}

// MinioConfig holds object store connection settings.
type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	Prefix    string `mapstructure:"prefix"`
	Secure    bool   `mapstructure:"secure"`
}

// KindConfig declares one collection kind and the record kind it holds.
type KindConfig struct {
	Collection string `mapstructure:"collection" yaml:"collection"`
	Record     string `mapstructure:"record" yaml:"record"`
}

// WatchConfig holds file watcher settings.
type WatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// CacheConfig holds reference resolution cache settings.
type CacheConfig struct {
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// ReadOnly reports whether structural edits are rejected.
func (c Config) ReadOnly() bool {
	return c.Mode == ModeRuntime
}

// KindTable builds the registration table from the configured kinds.
func (c Config) KindTable() (*catalog.Kinds, error) {
	kinds := make([]catalog.Kind, 0, len(c.Kinds))
	for _, k := range c.Kinds {
		kinds = append(kinds, catalog.Kind{
			Collection: storage.TypeTag(k.Collection),
			Record:     storage.TypeTag(k.Record),
		})
	}
	return catalog.NewKinds(kinds...)
}

// SQLitePath returns the database path, resolved against the root when
// relative.
func (c Config) SQLitePath() string {
	p := c.Store.SQLitePath
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// DefaultTracesFilePath returns the default path for trace file export.
// Returns ~/.config/catalog/traces/traces.jsonl or empty string if home dir unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "catalog", "traces", "traces.jsonl")
}

// DefaultKinds returns the kinds table used when none is configured.
func DefaultKinds() []KindConfig {
	return []KindConfig{{Collection: "deck", Record: "card"}}
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Root: ".",
		Mode: ModeEdit,
		Store: StoreConfig{
			Backend:    BackendFS,
			SQLitePath: ".catalog/catalog.db",
			Minio: MinioConfig{
				Endpoint: "localhost:9000",
				Bucket:   "catalog",
			},
		},
		Kinds: DefaultKinds(),
		Watch: WatchConfig{
			Enabled:  true,
			Debounce: 200 * time.Millisecond,
		},
		Cache: CacheConfig{
			TTL:             10 * time.Minute,
			CleanupInterval: 30 * time.Minute,
		},
		Tracing: tracing.DefaultConfig(),
	}
}

// Validate checks the configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func Validate(cfg Config) error {
	switch cfg.Mode {
	case "", ModeEdit, ModeRuntime:
	default:
		return fmt.Errorf("mode must be \"edit\" or \"runtime\", got %q", cfg.Mode)
	}
	if err := ValidateStore(cfg.Store); err != nil {
		return err
	}
	if err := ValidateKinds(cfg.Kinds); err != nil {
		return err
	}
	if cfg.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative, got %s", cfg.Watch.Debounce)
	}
	if cfg.Cache.TTL < 0 || cfg.Cache.CleanupInterval < 0 {
		return fmt.Errorf("cache durations must not be negative")
	}
	return ValidateTracing(cfg.Tracing)
}

// ValidateStore checks backend selection and its required settings.
func ValidateStore(store StoreConfig) error {
	switch store.Backend {
	case "", BackendFS:
	case BackendSQLite:
		if store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required when backend is \"sqlite\"")
		}
	case BackendMinio:
		if store.Minio.Endpoint == "" {
			return fmt.Errorf("store.minio.endpoint is required when backend is \"minio\"")
		}
		if store.Minio.Bucket == "" {
			return fmt.Errorf("store.minio.bucket is required when backend is \"minio\"")
		}
	default:
		return fmt.Errorf("store.backend must be \"fs\", \"sqlite\", or \"minio\", got %q", store.Backend)
	}
	return nil
}

// ValidateKinds checks that at least one kind is declared and that no tag
// is used twice.
func ValidateKinds(kinds []KindConfig) error {
	if len(kinds) == 0 {
		return fmt.Errorf("kinds: at least one kind is required")
	}
	for i, k := range kinds {
		if k.Collection == "" || k.Record == "" {
			return fmt.Errorf("kinds %d: collection and record are required", i)
		}
	}
	if _, err := (Config{Kinds: kinds}).KindTable(); err != nil {
		return fmt.Errorf("kinds: %w", err)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(cfg tracing.Config) error {
	if cfg.SampleRate < 0.0 || cfg.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", cfg.SampleRate)
	}
	if !tracing.ValidExporter(cfg.Exporter) {
		return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", cfg.Exporter)
	}

	// Only validate path requirements when tracing is enabled
	if cfg.Enabled {
		if cfg.Exporter == tracing.ExporterFile && cfg.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if cfg.Exporter == tracing.ExporterOTLP && cfg.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}
	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Catalog Configuration

# Directory holding the asset tree (fs backend) and relative store paths
root: .

# Operating mode: "edit" (default) allows structural edits, "runtime" rejects them
mode: edit

# Delete a collection's records when the collection is deleted
cascade_delete: false

# Storage backend
store:
  backend: fs                       # fs (default), sqlite, or minio
  sqlite_path: .catalog/catalog.db  # Used when backend is sqlite
  # minio:
  #   endpoint: localhost:9000
  #   access_key: minioadmin
  #   secret_key: minioadmin
  #   bucket: catalog
  #   prefix: assets
  #   secure: false

# Kind registration table: each collection kind holds exactly one record kind
# Add entries with 'catalog kinds add <collection> <record>'
kinds:
  - collection: deck
    record: card

# Watch the asset tree and apply changes as they happen (fs backend only)
watch:
  enabled: true
  debounce: 200ms

# Reference resolution cache
cache:
  ttl: 10m
  cleanup_interval: 30m

# Distributed tracing configuration
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/catalog/traces/traces.jsonl  # Output file for file exporter
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
