package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full application configuration. It is loaded once and
// injected into the components that need it; there is no package-level
// mutable configuration state.
type Config struct {
	Scanner struct {
		Binary       string   `mapstructure:"binary"`
		RulesConfig  string   `mapstructure:"rules_config"`
		Timeout      int      `mapstructure:"timeout_seconds"`
		MaxFileSize  int64    `mapstructure:"max_file_size_bytes"`
		ExcludeGlobs []string `mapstructure:"exclude_globs"`
	} `mapstructure:"scanner"`
	LLM struct {
		BaseURL    string `mapstructure:"base_url"`
		Model      string `mapstructure:"model"`
		APIKeyEnv  string `mapstructure:"api_key_env"`
		Timeout    int    `mapstructure:"timeout_seconds"`
		MaxRetries int    `mapstructure:"max_retries"`
	} `mapstructure:"llm"`
	Validation struct {
		ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
		MaxContextFiles     int     `mapstructure:"max_context_files"`
	} `mapstructure:"validation"`
	Cache struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"`
		TTL     int    `mapstructure:"ttl_seconds"`
	} `mapstructure:"cache"`
	Server struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"server"`
	Logging struct {
		Level string `mapstructure:"level"`
		Path  string `mapstructure:"path"`
	} `mapstructure:"logging"`
}

// ScannerTimeout returns the static-analyzer subprocess timeout.
func (c *Config) ScannerTimeout() time.Duration {
	return time.Duration(c.Scanner.Timeout) * time.Second
}

// LLMTimeout returns the per-request LLM deadline.
func (c *Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLM.Timeout) * time.Second
}

// CacheTTL returns the scan-result cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTL) * time.Second
}

func expandTilde(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// DefaultConfigDir is where the config file, cache database and logs live
// unless overridden.
func DefaultConfigDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "secscan")
}

// Load reads configuration from defaults, then an optional YAML file
// (cfgFile, or config.yaml in the default config dir / CWD), then SECSCAN_*
// environment variables. It returns a value for injection rather than
// populating a global.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	dir := DefaultConfigDir()
	v.SetDefault("scanner.binary", "semgrep")
	v.SetDefault("scanner.rules_config", "auto")
	v.SetDefault("scanner.timeout_seconds", 300)
	v.SetDefault("scanner.max_file_size_bytes", int64(1<<20))
	v.SetDefault("scanner.exclude_globs", []string{"*.min.js", "*.lock"})
	v.SetDefault("llm.base_url", "http://localhost:11434/v1")
	v.SetDefault("llm.model", "qwen2.5-coder")
	v.SetDefault("llm.api_key_env", "SECSCAN_LLM_API_KEY")
	v.SetDefault("llm.timeout_seconds", 120)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("validation.confidence_threshold", 0.7)
	v.SetDefault("validation.max_context_files", 5)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", filepath.Join(dir, "scancache.db"))
	v.SetDefault("cache.ttl_seconds", 3600)
	v.SetDefault("server.port", "8787")
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.path", filepath.Join(dir, "logs", "secscan.log"))

	if cfgFile != "" {
		expanded, err := expandTilde(cfgFile)
		if err == nil {
			cfgFile = expanded
		}
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SECSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && cfgFile != "" {
			return nil, fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
		// No config file is fine; defaults apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if p, err := expandTilde(cfg.Cache.Path); err == nil {
		cfg.Cache.Path = p
	}
	if p, err := expandTilde(cfg.Logging.Path); err == nil {
		cfg.Logging.Path = p
	}
	if cfg.Validation.ConfidenceThreshold <= 0 || cfg.Validation.ConfidenceThreshold > 1 {
		cfg.Validation.ConfidenceThreshold = 0.7
	}
	if cfg.Validation.MaxContextFiles <= 0 {
		cfg.Validation.MaxContextFiles = 5
	}
	return &cfg, nil
}
