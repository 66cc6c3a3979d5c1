package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestInterpolateEnv(t *testing.T) {
	getenv := func(key string) string {
		switch key {
		case "TEST_REGION":
			return "eu-west-2"
		case "TEST_PORT":
			return "9000"
		default:
			return ""
		}
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple substitution",
			input:    "region: ${TEST_REGION}",
			expected: "region: eu-west-2",
		},
		{
			name:     "with default (env set)",
			input:    "region: ${TEST_REGION:-us-east-1}",
			expected: "region: eu-west-2",
		},
		{
			name:     "with default (env not set)",
			input:    "region: ${UNSET_VAR:-us-east-1}",
			expected: "region: us-east-1",
		},
		{
			name:     "multiple substitutions",
			input:    "endpoint: http://${TEST_REGION}:${TEST_PORT}",
			expected: "endpoint: http://eu-west-2:9000",
		},
		{
			name:     "unset without default",
			input:    "key: ${UNSET_VAR}",
			expected: "key: ",
		},
		{
			name:     "no substitution needed",
			input:    "static: value",
			expected: "static: value",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := string(interpolateEnv([]byte(tt.input), getenv))
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "scrapeql.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, `
fetch:
  timeout: 10s
  user_agent: ${AGENT:-bot/1}
  max_bytes: 2MB

cache:
  enabled: true
  path: ./cache/documents.db
  ttl: 24h

s3:
  region: eu-west-1
  endpoint: http://localhost:9000
  use_path_style: true
  access_key_id: minio
  secret_access_key: !secret ${S3_SECRET}

output:
  compression: best

logging:
  level: debug
  format: json
  output: logs/scrapeql.log

repl:
  prompt: "sq> "
`)

	getenv := func(key string) string {
		if key == "S3_SECRET" {
			return "minio123"
		}
		return ""
	}

	cfg, err := Load(configPath, getenv)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Fetch.Timeout != 10*time.Second {
		t.Errorf("timeout = %s", cfg.Fetch.Timeout)
	}
	if cfg.Fetch.UserAgent != "bot/1" {
		t.Errorf("user agent = %q", cfg.Fetch.UserAgent)
	}
	if cfg.MaxBytes() != 2*1024*1024 {
		t.Errorf("max bytes = %d", cfg.MaxBytes())
	}
	if !cfg.Cache.Enabled || cfg.Cache.TTL != 24*time.Hour {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Cache.Path != filepath.Join(dir, "cache", "documents.db") {
		t.Errorf("cache path not resolved against config dir: %s", cfg.Cache.Path)
	}
	if cfg.S3.Region != "eu-west-1" || !cfg.S3.UsePathStyle {
		t.Errorf("s3 = %+v", cfg.S3)
	}
	if cfg.S3.SecretAccessKey.Value() != "minio123" || !cfg.S3.SecretAccessKey.IsSecret() {
		t.Errorf("secret not loaded")
	}
	if cfg.Output.Compression != "best" {
		t.Errorf("compression = %q", cfg.Output.Compression)
	}
	if cfg.Logging.Output != filepath.Join(dir, "logs", "scrapeql.log") {
		t.Errorf("log output = %q", cfg.Logging.Output)
	}
	if cfg.REPL.Prompt != "sq> " {
		t.Errorf("prompt = %q", cfg.REPL.Prompt)
	}
	if cfg.BaseDir != dir {
		t.Errorf("base dir = %q, want %q", cfg.BaseDir, dir)
	}
}

func TestLoadKeepsStandardStreams(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, "logging:\n  output: stdout\n")

	cfg, err := Load(configPath, func(string) string { return "" })
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("log output = %q", cfg.Logging.Output)
	}
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	configPath := writeConfig(t, dir, "fetch:\n  user_agent: from-env\n")

	getenv := func(key string) string {
		if key == EnvConfig {
			return configPath
		}
		return ""
	}

	cfg, err := Load("", getenv)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Fetch.UserAgent != "from-env" {
		t.Errorf("user agent = %q", cfg.Fetch.UserAgent)
	}
	if cfg.Path != configPath {
		t.Errorf("path = %q", cfg.Path)
	}
}

func TestLoadFromHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	dir := filepath.Join(home, ".config", "scrapeql")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, dir, "repl:\n  prompt: \"home> \"\n")

	cfg, err := Load("", func(string) string { return "" })
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.REPL.Prompt != "home> " {
		t.Errorf("prompt = %q", cfg.REPL.Prompt)
	}
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("", func(string) string { return "" })
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Path != "" {
		t.Errorf("no file should be loaded, got %q", cfg.Path)
	}
	if cfg.Fetch.UserAgent != Defaults().Fetch.UserAgent {
		t.Errorf("user agent = %q", cfg.Fetch.UserAgent)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing.yaml")

	tests := []struct {
		name     string
		path     string
		env      string
		content  string
		contains string
	}{
		{name: "explicit path missing", path: missing, contains: "config file not found"},
		{name: "env path missing", env: missing, contains: "SCRAPEQL_CONFIG file not found"},
		{name: "bad yaml", content: "fetch: [", contains: "failed to parse config"},
		{name: "invalid values", content: "logging:\n  level: loud\n", contains: "invalid log level: loud"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := tt.path
			if tt.content != "" {
				path = writeConfig(t, t.TempDir(), tt.content)
			}
			getenv := func(key string) string {
				if key == EnvConfig {
					return tt.env
				}
				return ""
			}

			_, err := Load(path, getenv)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.contains) {
				t.Errorf("error %q should contain %q", err, tt.contains)
			}
		})
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if got := ExpandHome("~/.scrapeql_history"); got != filepath.Join(home, ".scrapeql_history") {
		t.Errorf("ExpandHome = %q", got)
	}
	if got := ExpandHome("/tmp/history"); got != "/tmp/history" {
		t.Errorf("absolute path changed: %q", got)
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input    string
		expected int64
		wantErr  bool
	}{
		{"", 0, false},
		{"100", 100, false},
		{"100B", 100, false},
		{"10KB", 10 * 1024, false},
		{"10MB", 10 * 1024 * 1024, false},
		{"1GB", 1024 * 1024 * 1024, false},
		{"10mb", 10 * 1024 * 1024, false},
		{" 5 MB ", 5 * 1024 * 1024, false},
		{"abc", 0, true},
		{"MB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := ParseSize(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.input, result, tt.expected)
			}
		})
	}
}
