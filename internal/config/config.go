// Package config loads configuration from environment variables, an optional
// YAML file and an optional .env file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all lexreview client configuration.
type Config struct {
	// Backend
	ServerURL     string        `yaml:"server_url"`
	Timeout       time.Duration `yaml:"timeout"`
	LongTimeout   time.Duration `yaml:"long_timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`

	// Session
	TokenFile string `yaml:"token_file"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogOutput string `yaml:"log_output"`

	// Metrics listener, empty disables it
	MetricsAddr string `yaml:"metrics_addr"`

	// File categories on the backend
	SubjectCategory string `yaml:"subject_category"`
	CorpusCategory  string `yaml:"corpus_category"`

	// Artifact sink ("local" or "s3", default: "local")
	SinkBackend string `yaml:"sink_backend"`
	DownloadDir string `yaml:"download_dir"`

	// S3 sink
	S3Endpoint  string `yaml:"s3_endpoint"`
	S3Bucket    string `yaml:"s3_bucket"`
	S3Prefix    string `yaml:"s3_prefix"`
	S3AccessKey string `yaml:"s3_access_key"`
	S3SecretKey string `yaml:"s3_secret_key"`
	S3Region    string `yaml:"s3_region"`

	// Renderer
	Markdown bool `yaml:"markdown"`
	Width    int  `yaml:"width"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		ServerURL:       "http://localhost:8000",
		Timeout:         30 * time.Second,
		LongTimeout:     15 * time.Minute,
		RetryAttempts:   3,
		TokenFile:       filepath.Join(home, ".config", "lexreview", "token.json"),
		LogLevel:        "info",
		LogFormat:       "console",
		LogOutput:       "stderr",
		SubjectCategory: "temp",
		CorpusCategory:  "vbpl",
		SinkBackend:     "local",
		DownloadDir:     ".",
		S3Region:        "us-east-1",
		Markdown:        true,
		Width:           100,
	}
}

// Load builds the configuration. Precedence, lowest first: defaults, the YAML
// file named by LEXREVIEW_CONFIG, then environment variables. A .env file in
// the working directory is loaded into the environment first if present; it
// never overrides variables that are already set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("LEXREVIEW_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.ServerURL = envOr("LEXREVIEW_SERVER_URL", c.ServerURL)
	c.Timeout = envDuration("LEXREVIEW_TIMEOUT", c.Timeout)
	c.LongTimeout = envDuration("LEXREVIEW_LONG_TIMEOUT", c.LongTimeout)
	c.RetryAttempts = envInt("LEXREVIEW_RETRY_ATTEMPTS", c.RetryAttempts)
	c.TokenFile = envOr("LEXREVIEW_TOKEN_FILE", c.TokenFile)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = envOr("LOG_FORMAT", c.LogFormat)
	c.LogOutput = envOr("LOG_OUTPUT", c.LogOutput)
	c.MetricsAddr = envOr("METRICS_ADDR", c.MetricsAddr)
	c.SubjectCategory = envOr("LEXREVIEW_SUBJECT_CATEGORY", c.SubjectCategory)
	c.CorpusCategory = envOr("LEXREVIEW_CORPUS_CATEGORY", c.CorpusCategory)
	c.SinkBackend = envOr("SINK_BACKEND", c.SinkBackend)
	c.DownloadDir = envOr("DOWNLOAD_DIR", c.DownloadDir)
	c.S3Endpoint = envOr("S3_ENDPOINT", c.S3Endpoint)
	c.S3Bucket = envOr("S3_BUCKET", c.S3Bucket)
	c.S3Prefix = envOr("S3_PREFIX", c.S3Prefix)
	c.S3AccessKey = envOr("S3_ACCESS_KEY", c.S3AccessKey)
	c.S3SecretKey = envOr("S3_SECRET_KEY", c.S3SecretKey)
	c.S3Region = envOr("S3_REGION", c.S3Region)
	c.Markdown = envBool("LEXREVIEW_MARKDOWN", c.Markdown)
	c.Width = envInt("LEXREVIEW_WIDTH", c.Width)
}

// Validate checks for settings the client cannot run without.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server URL is required")
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got %d", c.RetryAttempts)
	}
	switch c.SinkBackend {
	case "local":
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 sink")
		}
	default:
		return fmt.Errorf("unknown sink backend %q", c.SinkBackend)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
