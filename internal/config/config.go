// Package config loads the daemon's configuration: node identity, the
// initial platform resource seed, policy selection, the admin API surface
// and the ambient logging/metrics stack.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the complete configuration for a bbqued daemon instance.
type Config struct {
	Node     NodeConfig     `yaml:"node"`
	Platform PlatformConfig `yaml:"platform"`
	Policy   PolicyConfig   `yaml:"policy"`
	AdminAPI AdminAPIConfig `yaml:"admin_api"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// NodeConfig identifies this daemon instance in logs and metrics.
type NodeConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
}

// ResourceSeed registers one resource path and its total capacity at
// startup, before any EXC is admitted.
type ResourceSeed struct {
	Path  string `yaml:"path"`
	Total uint64 `yaml:"total"`
}

// PlatformConfig seeds the resource tree and configures the binding
// manager's domains.
type PlatformConfig struct {
	Resources      []ResourceSeed `yaml:"resources"`
	BindingDomains []string       `yaml:"binding_domains"`
	PriorityFloor  int            `yaml:"priority_floor"`
}

// PolicyConfig selects the scheduling policy and its run cadence.
type PolicyConfig struct {
	Name     string        `yaml:"name"`
	Interval time.Duration `yaml:"interval"`
}

// CorsConfig mirrors gin-contrib/cors' configurable fields.
type CorsConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAgeSeconds    int      `yaml:"max_age_seconds"`
}

// RateLimitConfig configures the x/time/rate limiter guarding the admin API.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// JWTConfig configures the bearer-token auth middleware.
type JWTConfig struct {
	Secret      string        `yaml:"secret"`
	Issuer      string        `yaml:"issuer"`
	TokenExpiry time.Duration `yaml:"token_expiry"`
}

// AdminAPIConfig configures the read-only operator console.
type AdminAPIConfig struct {
	Listen    string          `yaml:"listen"`
	Cors      CorsConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	JWT       JWTConfig       `yaml:"jwt"`
}

// MetricsConfig configures the prometheus collector endpoint.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Listen    string `yaml:"listen"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// LoggingConfig configures the base zerolog logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration usable as-is for a single-node
// development instance.
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			Name:        "bbqued",
			Environment: "development",
		},
		Platform: PlatformConfig{
			BindingDomains: []string{"cpu"},
			PriorityFloor:  0,
		},
		Policy: PolicyConfig{
			Name:     "greedy",
			Interval: 2 * time.Second,
		},
		AdminAPI: AdminAPIConfig{
			Listen: "0.0.0.0:8338",
			Cors: CorsConfig{
				AllowedOrigins:   []string{"http://localhost:3000"},
				AllowedMethods:   []string{"GET"},
				AllowedHeaders:   []string{"Authorization", "Content-Type"},
				AllowCredentials: false,
				MaxAgeSeconds:    600,
			},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerSecond: 20,
				Burst:             40,
			},
			JWT: JWTConfig{
				Issuer:      "bbqued",
				TokenExpiry: 24 * time.Hour,
			},
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Listen:    "0.0.0.0:9338",
			Path:      "/metrics",
			Namespace: "bbque",
			Subsystem: "rtrm",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads configFile (or the standard search path, when empty) through
// viper, overlays it on Default, applies the BBQUED_-prefixed environment
// overrides, and validates the result.
func Load(configFile string) (*Config, error) {
	cfg := Default()

	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigName("bbqued")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/bbqued")
	}

	viper.SetEnvPrefix("BBQUED")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Register every key of the defaults, so that environment overrides
	// also apply to keys the config file does not mention.
	var defaults map[string]interface{}
	raw, err := yaml.Marshal(cfg)
	if err == nil {
		err = yaml.Unmarshal(raw, &defaults)
	}
	if err != nil {
		return nil, fmt.Errorf("config: encoding defaults: %w", err)
	}
	for k, v := range defaults {
		viper.SetDefault(k, v)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) { dc.TagName = "yaml" }); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return cfg, nil
}

// Save writes cfg to filename in viper's format.
func (c *Config) Save(filename string) error {
	viper.Set("node", c.Node)
	viper.Set("platform", c.Platform)
	viper.Set("policy", c.Policy)
	viper.Set("admin_api", c.AdminAPI)
	viper.Set("metrics", c.Metrics)
	viper.Set("logging", c.Logging)
	return viper.WriteConfigAs(filename)
}
