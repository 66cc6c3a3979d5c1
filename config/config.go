package config

import "time"

// Config represents the complete ScrapeQL configuration
type Config struct {
	BaseDir string        `yaml:"-"` // Directory containing config file, for resolving relative paths
	Path    string        `yaml:"-"` // Config file that was loaded; empty when only defaults apply
	Fetch   FetchConfig   `yaml:"fetch"`
	Cache   CacheConfig   `yaml:"cache"`
	S3      S3Config      `yaml:"s3"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
	REPL    REPLConfig    `yaml:"repl"`
}

// FetchConfig holds settings for loading documents
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`    // Per-request timeout (default: 30s)
	UserAgent string        `yaml:"user_agent"` // User-Agent header for http(s) sources
	MaxBytes  string        `yaml:"max_bytes"`  // Largest accepted document, e.g. "10MB"
}

// CacheConfig holds settings for the http(s) document cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled"` // Cache fetched documents (default: false)
	Path    string        `yaml:"path"`    // SQLite database file (default: user cache dir)
	TTL     time.Duration `yaml:"ttl"`     // Maximum age of a cached document (0 = forever)
}

// S3Config holds settings for s3:// sources and destinations
type S3Config struct {
	Region          string       `yaml:"region"`
	Endpoint        string       `yaml:"endpoint"`       // For S3-compatible services (MinIO, etc.)
	UsePathStyle    bool         `yaml:"use_path_style"` // Use path-style addressing
	AccessKeyID     string       `yaml:"access_key_id"`
	SecretAccessKey SecretString `yaml:"secret_access_key"`
}

// OutputConfig holds settings for WRITE destinations
type OutputConfig struct {
	Compression string `yaml:"compression"` // Compression level: "fastest", "default", "best", "none" (default: "default")
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
	Output string `yaml:"output"` // stderr, stdout, or file path
}

// REPLConfig holds interactive shell settings
type REPLConfig struct {
	Prompt      string `yaml:"prompt"`
	HistoryFile string `yaml:"history_file"` // "~/" is expanded; empty disables history
}

// Defaults returns a Config with sensible defaults
func Defaults() *Config {
	return &Config{
		Fetch: FetchConfig{
			Timeout:   30 * time.Second,
			UserAgent: "scrapeql/1.0",
			MaxBytes:  "10MB",
		},
		Cache: CacheConfig{
			Enabled: false,
			TTL:     time.Hour,
		},
		S3: S3Config{
			Region: "us-east-1",
		},
		Output: OutputConfig{
			Compression: "default",
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
			Output: "stderr",
		},
		REPL: REPLConfig{
			Prompt:      "scrapeql> ",
			HistoryFile: "~/.scrapeql_history",
		},
	}
}
