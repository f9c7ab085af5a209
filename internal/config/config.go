package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for ots.
type Config struct {
	BaseDir string `toml:"base_dir"`
	LogDir  string `toml:"log_dir"`
	// BaseURL is used to format download links in CLI output.
	BaseURL string `toml:"base_url"`

	Store     StoreConfig     `toml:"store"`
	Blob      BlobConfig      `toml:"blob"`
	Secrets   SecretsConfig   `toml:"secrets"`
	Crypto    CryptoConfig    `toml:"crypto"`
	Reconcile ReconcileConfig `toml:"reconcile"`
}

// StoreConfig represents configuration for the metadata store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type StoreConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite

	// OpTimeoutSeconds bounds every store round trip. Defaults to 5.
	OpTimeoutSeconds int64 `toml:"op_timeout_seconds"`
	// HealthIntervalSeconds is how long a reachability probe is cached. Defaults to 15.
	HealthIntervalSeconds int64 `toml:"health_interval_seconds"`
}

// BlobConfig represents configuration for the blob store backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type BlobConfig struct {
	Type string `toml:"type"` // "filesystem", "s3", or "memory"

	// Filesystem-specific fields (only used when Type == "filesystem")
	Root string `toml:"root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`   // custom endpoint for MinIO-style deployments
	S3AccessKey string `toml:"s3_access_key,omitempty"` // static credentials; empty = default chain
	S3SecretKey string `toml:"s3_secret_key,omitempty"`
}

// SecretsConfig holds the record lifecycle parameters.
type SecretsConfig struct {
	TTLSeconds  int64 `toml:"ttl_seconds"`   // record lifetime; default 5 hours
	MaxRetries  int   `toml:"max_retries"`   // wrong-password budget; default 5
	MaxFileSize int64 `toml:"max_file_size"` // upload byte limit; default 20 MiB
}

// CryptoConfig holds the Argon2id cost parameters for password key derivation.
type CryptoConfig struct {
	Argon2Time        uint32 `toml:"argon2_time"`
	Argon2Memory      uint32 `toml:"argon2_memory"` // KiB
	Argon2Parallelism uint8  `toml:"argon2_parallelism"`
}

// ReconcileConfig holds the reconciliation sweep parameters.
type ReconcileConfig struct {
	// GraceSeconds is the minimum blob age before a blob with no record is
	// treated as an orphan. Covers the window between a blob write and its
	// record commit. Default 300.
	GraceSeconds int64 `toml:"grace_seconds"`
}

// Defaults applied by NewConfig and by consumers of zero-valued sections.
const (
	DefaultTTLSeconds   = 5 * 60 * 60
	DefaultMaxRetries   = 5
	DefaultMaxFileSize  = 20 * 1024 * 1024
	DefaultGraceSeconds = 300
)

// NewConfig creates a Config with the provided base directory and defaults
// for everything else.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		BaseURL: "http://localhost:5000",
		Store: StoreConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Blob: BlobConfig{
			Type: "filesystem",
			Root: filepath.Join(baseDir, "blobs"),
		},
		Secrets: SecretsConfig{
			TTLSeconds:  DefaultTTLSeconds,
			MaxRetries:  DefaultMaxRetries,
			MaxFileSize: DefaultMaxFileSize,
		},
		Crypto: CryptoConfig{
			Argon2Time:        3,
			Argon2Memory:      64 * 1024,
			Argon2Parallelism: 4,
		},
		Reconcile: ReconcileConfig{
			GraceSeconds: DefaultGraceSeconds,
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
