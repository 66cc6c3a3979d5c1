package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sambeau/scrapeql/pkg/scrapeql/sink"
)

// EnvConfig names the environment variable holding a config file path.
const EnvConfig = "SCRAPEQL_CONFIG"

// Load reads configuration from a file with ENV interpolation.
// If configPath is empty, it searches default locations and falls back to
// Defaults() when no file exists. The result is validated.
func Load(configPath string, getenv func(string) string) (*Config, error) {
	path, err := resolveConfigPath(configPath, getenv)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		cfg.BaseDir = wd
	} else {
		if err := loadFile(cfg, path, getenv); err != nil {
			return nil, err
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string, getenv func(string) string) error {
	// Get absolute path and directory for resolving relative paths
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	baseDir := filepath.Dir(absPath)

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	// Interpolate environment variables
	data = interpolateEnv(data, getenv)

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Path = absPath
	cfg.BaseDir = baseDir

	// Resolve relative cache path
	if cfg.Cache.Path != "" {
		cfg.Cache.Path = resolvePath(baseDir, cfg.Cache.Path)
	}

	// Resolve relative log file path
	switch cfg.Logging.Output {
	case "", "stderr", "stdout":
	default:
		cfg.Logging.Output = resolvePath(baseDir, cfg.Logging.Output)
	}

	return nil
}

// resolvePath expands a leading "~/" and makes relative paths relative to
// baseDir.
func resolvePath(baseDir, path string) string {
	path = ExpandHome(path)
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// resolveConfigPath finds the config file to use.
// Search order: explicit path > SCRAPEQL_CONFIG env > ./scrapeql.yaml > ~/.config/scrapeql/scrapeql.yaml
// An empty result with a nil error means no file was found.
func resolveConfigPath(explicit string, getenv func(string) string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	// Try SCRAPEQL_CONFIG environment variable
	if envPath := getenv(EnvConfig); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("%s file not found: %s", EnvConfig, envPath)
		}
		return envPath, nil
	}

	// Try ./scrapeql.yaml
	if _, err := os.Stat("scrapeql.yaml"); err == nil {
		return "scrapeql.yaml", nil
	}

	// Try ~/.config/scrapeql/scrapeql.yaml
	home, err := os.UserHomeDir()
	if err == nil {
		xdgPath := filepath.Join(home, ".config", "scrapeql", "scrapeql.yaml")
		if _, err := os.Stat(xdgPath); err == nil {
			return xdgPath, nil
		}
	}

	return "", nil
}

// envPattern matches ${VAR} or ${VAR:-default}
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// interpolateEnv replaces ${VAR} and ${VAR:-default} patterns with environment values.
func interpolateEnv(data []byte, getenv func(string) string) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := string(parts[1])
		value := getenv(varName)

		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}

		return []byte(value)
	})
}

// Validate checks the whole configuration and reports every problem found.
func Validate(cfg *Config) error {
	var errs []string

	// Fetch validation
	if cfg.Fetch.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("fetch.timeout must be positive, got %s", cfg.Fetch.Timeout))
	}
	if size, err := ParseSize(cfg.Fetch.MaxBytes); err != nil {
		errs = append(errs, fmt.Sprintf("fetch.max_bytes: %v", err))
	} else if size <= 0 {
		errs = append(errs, fmt.Sprintf("fetch.max_bytes must be positive, got %q", cfg.Fetch.MaxBytes))
	}

	// Cache validation
	if cfg.Cache.TTL < 0 {
		errs = append(errs, fmt.Sprintf("cache.ttl cannot be negative, got %s", cfg.Cache.TTL))
	}

	// S3 validation
	if (cfg.S3.AccessKeyID == "") != (cfg.S3.SecretAccessKey.Value() == "") {
		errs = append(errs, "s3: access_key_id and secret_access_key must be set together")
	}

	// Output validation
	if !sink.ValidLevel(cfg.Output.Compression) {
		errs = append(errs, fmt.Sprintf("invalid output compression: %s (must be one of %s)",
			cfg.Output.Compression, strings.Join(sink.Levels, ", ")))
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", cfg.Logging.Level))
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be json or text)", cfg.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// MaxBytes returns fetch.max_bytes in bytes. Call it after Validate.
func (c *Config) MaxBytes() int64 {
	size, _ := ParseSize(c.Fetch.MaxBytes)
	return size
}

// ParseSize parses a size string like "10MB", "1GB", "500KB" to bytes.
// Supports: B, KB, MB, GB (case insensitive).
// Returns 0 for empty string.
func ParseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}

	s = strings.TrimSpace(strings.ToUpper(s))

	// Check suffixes in order of length (longest first) to avoid "B" matching before "MB"
	suffixes := []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
		{"B", 1},
	}

	for _, sf := range suffixes {
		if strings.HasSuffix(s, sf.suffix) {
			numStr := strings.TrimSuffix(s, sf.suffix)
			numStr = strings.TrimSpace(numStr)
			var num int64
			if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
				return 0, fmt.Errorf("invalid size number: %s", numStr)
			}
			return num * sf.mult, nil
		}
	}

	// Try parsing as plain number (bytes)
	var num int64
	if _, err := fmt.Sscanf(s, "%d", &num); err != nil {
		return 0, fmt.Errorf("invalid size format: %s (use B, KB, MB, or GB suffix)", s)
	}
	return num, nil
}
