// Package config loads diagfix settings from defaults, an optional config
// file, .env files, DIAGFIX_* environment variables and bound CLI flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dshills/diagfix/internal/logger"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "DIAGFIX"

// Config is the resolved application configuration.
type Config struct {
	LLM    LLMConfig     `mapstructure:"llm"`
	Oracle OracleConfig  `mapstructure:"oracle"`
	Server ServerConfig  `mapstructure:"server"`
	Log    logger.Config `mapstructure:"log"`
	Fix    FixConfig     `mapstructure:"fix"`
}

type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
	// Enabled turns the LLM rewrite fallback on.
	Enabled bool `mapstructure:"enabled"`
}

type OracleConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type FixConfig struct {
	MaxAttempts int `mapstructure:"max_attempts"`
	Jobs        int `mapstructure:"jobs"`
}

var providers = map[string]bool{"anthropic": true, "openai": true, "google": true}

// New returns a viper instance with every default registered and the
// environment bound. Callers bind flags onto it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("llm.provider", "anthropic")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.enabled", true)
	v.SetDefault("oracle.url", "https://kroki.io")
	v.SetDefault("oracle.timeout", 30*time.Second)
	v.SetDefault("server.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("log.file", "")
	v.SetDefault("fix.max_attempts", 3)
	v.SetDefault("fix.jobs", 4)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// Load resolves the configuration held by v. path names an explicit config
// file; when empty, diagfix.{yaml,toml,json} is searched for in the working
// directory and its absence is not an error. A .env file in the working
// directory is loaded first so its variables are visible to AutomaticEnv.
func Load(v *viper.Viper, path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("diagfix")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if !providers[c.LLM.Provider] {
		return fmt.Errorf("config: unknown llm.provider %q (want anthropic, openai or google)", c.LLM.Provider)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("config: llm.max_tokens must be positive, got %d", c.LLM.MaxTokens)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("config: llm.temperature must be within [0,2], got %g", c.LLM.Temperature)
	}
	u, err := url.Parse(c.Oracle.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: oracle.url %q is not an http(s) URL", c.Oracle.URL)
	}
	if c.Oracle.Timeout <= 0 {
		return fmt.Errorf("config: oracle.timeout must be positive, got %s", c.Oracle.Timeout)
	}
	if c.Fix.MaxAttempts < 0 {
		return fmt.Errorf("config: fix.max_attempts must not be negative, got %d", c.Fix.MaxAttempts)
	}
	if c.Fix.Jobs <= 0 {
		return fmt.Errorf("config: fix.jobs must be positive, got %d", c.Fix.Jobs)
	}
	return nil
}
