// internal/config/config.go
package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// LLMEndpoint represents one LLM provider in the fallback chain
type LLMEndpoint struct {
	URL       string `yaml:"url"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"` // env var name for API key
	APIKey    string `yaml:"-"`           // resolved at load time
}

// ClassifierConfig controls batching and retries against the LLM
type ClassifierConfig struct {
	Endpoints      []LLMEndpoint `yaml:"llm_endpoints"` // fallback chain
	BatchSize      int           `yaml:"batch_size"`
	MaxAttempts    int           `yaml:"max_attempts"`
	BaseDelay      time.Duration `yaml:"base_delay"`
	Jitter         float64       `yaml:"jitter"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	StrictSchema   bool          `yaml:"strict_schema"`
}

// ArchiveConfig points at optional S3-compatible storage for raw uploads
type ArchiveConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Region       string `yaml:"region"`
	Bucket       string `yaml:"bucket"`
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
	UseSSL       bool   `yaml:"use_ssl"`
	AccessKey    string `yaml:"-"`
	SecretKey    string `yaml:"-"`
}

// Enabled reports whether uploads should be archived
func (a ArchiveConfig) Enabled() bool {
	return a.Endpoint != "" && a.Bucket != ""
}

// Config for logsentry
type Config struct {
	ListenAddr     string           `yaml:"listen_addr"`
	DBPath         string           `yaml:"db_path"`
	MaxUploadBytes int64            `yaml:"max_upload_bytes"`
	AllowedOrigins []string         `yaml:"allowed_origins"`
	TLSCert        string           `yaml:"tls_cert"` // optional; serves HTTPS when both are set
	TLSKey         string           `yaml:"tls_key"`
	Classifier     ClassifierConfig `yaml:"classifier"`
	Archive        ArchiveConfig    `yaml:"archive"`
}

// Default returns a config with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load loads config from a YAML file with env overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	cfg.applyEnv()
	return &cfg, nil
}

// LoadOrDefault loads path if it exists, otherwise returns defaults with env overrides
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		cfg.applyEnv()
		return cfg, nil
	}
	return cfg, err
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = "127.0.0.1:8080"
	}
	if c.DBPath == "" {
		c.DBPath = "logsentry.db"
	}
	if c.MaxUploadBytes == 0 {
		c.MaxUploadBytes = 10 << 20
	}
	if c.Classifier.BatchSize == 0 {
		c.Classifier.BatchSize = 25
	}
	if c.Classifier.MaxAttempts == 0 {
		c.Classifier.MaxAttempts = 3
	}
	if c.Classifier.BaseDelay == 0 {
		c.Classifier.BaseDelay = time.Second
	}
	if c.Classifier.RequestTimeout == 0 {
		c.Classifier.RequestTimeout = 60 * time.Second
	}
}

func (c *Config) applyEnv() {
	if addr := os.Getenv("LOGSENTRY_LISTEN_ADDR"); addr != "" {
		c.ListenAddr = addr
	}
	if path := os.Getenv("LOGSENTRY_DB_PATH"); path != "" {
		c.DBPath = path
	}

	// Resolve API keys for each LLM endpoint from env vars
	for i := range c.Classifier.Endpoints {
		if c.Classifier.Endpoints[i].APIKeyEnv != "" {
			c.Classifier.Endpoints[i].APIKey = os.Getenv(c.Classifier.Endpoints[i].APIKeyEnv)
		}
	}

	// Fall back to a single OpenAI endpoint when none are configured
	if len(c.Classifier.Endpoints) == 0 {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			c.Classifier.Endpoints = []LLMEndpoint{{
				URL:       "https://api.openai.com/v1",
				Model:     "gpt-4o-mini",
				APIKeyEnv: "OPENAI_API_KEY",
				APIKey:    key,
			}}
		}
	}

	if c.Archive.AccessKeyEnv != "" {
		c.Archive.AccessKey = os.Getenv(c.Archive.AccessKeyEnv)
	}
	if c.Archive.SecretKeyEnv != "" {
		c.Archive.SecretKey = os.Getenv(c.Archive.SecretKeyEnv)
	}
}
