// Package config holds the process settings of surge-balancer.
//
// Precedence, lowest first: defaults, YAML file, SB_* environment variables,
// command line flags that were explicitly set. Data settings (password,
// storage, users...) are not part of it; the store reads those on every
// request.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix              = "SB"
	FileName               = "surge-balancer"
	DefaultListen          = "127.0.0.1:3000"
	DefaultSurgeAPIBaseURL = "https://enterprise.nssurge.com/api/admin"
)

type Config struct {
	Listen            string        `mapstructure:"listen" json:"listen"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" json:"readHeaderTimeout"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout" json:"fetchTimeout"`
	CheckTimeout      time.Duration `mapstructure:"check_timeout" json:"checkTimeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" json:"shutdownTimeout"`
	// PublicBaseURL is the externally visible origin used in the
	// #!MANAGED-CONFIG line; empty means "derive from the request".
	PublicBaseURL string `mapstructure:"public_base_url" json:"publicBaseUrl,omitempty"`

	Check    CheckConfig    `mapstructure:"check" json:"check"`
	SurgeAPI SurgeAPIConfig `mapstructure:"surge_api" json:"surgeApi"`
	Log      LogConfig      `mapstructure:"log" json:"log"`
}

type CheckConfig struct {
	Concurrency int `mapstructure:"concurrency" json:"concurrency"`
	// Cron schedules a background check of every enabled subscription.
	// Empty disables it.
	Cron string `mapstructure:"cron" json:"cron,omitempty"`
}

type SurgeAPIConfig struct {
	BaseURL string `mapstructure:"base_url" json:"baseUrl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("read_header_timeout", 5*time.Second)
	v.SetDefault("fetch_timeout", 15*time.Second)
	v.SetDefault("check_timeout", 60*time.Second)
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("public_base_url", "")
	v.SetDefault("check.concurrency", 5)
	v.SetDefault("check.cron", "")
	v.SetDefault("surge_api.base_url", DefaultSurgeAPIBaseURL)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// flagKeys maps flag names to setting keys.
var flagKeys = map[string]string{
	"listen":              "listen",
	"read-header-timeout": "read_header_timeout",
	"fetch-timeout":       "fetch_timeout",
	"check-timeout":       "check_timeout",
	"shutdown-timeout":    "shutdown_timeout",
	"public-base-url":     "public_base_url",
	"check-concurrency":   "check.concurrency",
	"check-cron":          "check.cron",
	"surge-api-base-url":  "surge_api.base_url",
	"log-level":           "log.level",
	"log-format":          "log.format",
}

// RegisterFlags adds one flag per setting. Flag defaults are informational:
// a flag only overrides the other sources when it is set explicitly.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("listen", DefaultListen, "HTTP listen address")
	fs.Duration("read-header-timeout", 5*time.Second, "HTTP read header timeout")
	fs.Duration("fetch-timeout", 15*time.Second, "timeout of one upstream request")
	fs.Duration("check-timeout", 60*time.Second, "timeout of a whole subscription check")
	fs.Duration("shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	fs.String("public-base-url", "", "external base URL used in #!MANAGED-CONFIG")
	fs.Int("check-concurrency", 5, "parallel subscription fetches")
	fs.String("check-cron", "", "cron spec for background subscription checks")
	fs.String("surge-api-base-url", DefaultSurgeAPIBaseURL, "Surge Enterprise admin API base URL")
	fs.String("log-level", "info", "debug | info | warn | error")
	fs.String("log-format", "text", "text | json")
}

// Load reads the settings. path may be empty, in which case
// surge-balancer.yaml is looked up in the working directory and in
// /etc/surge-balancer/. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/surge-balancer/")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil || !f.Changed {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return errors.New("listen must not be empty")
	}
	if c.Check.Concurrency < 1 {
		return fmt.Errorf("check.concurrency must be >= 1, got %d", c.Check.Concurrency)
	}
	for name, d := range map[string]time.Duration{
		"read_header_timeout": c.ReadHeaderTimeout,
		"fetch_timeout":       c.FetchTimeout,
		"shutdown_timeout":    c.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.CheckTimeout < 0 {
		return fmt.Errorf("check_timeout must not be negative, got %s", c.CheckTimeout)
	}
	if c.PublicBaseURL != "" && !strings.HasPrefix(c.PublicBaseURL, "http://") && !strings.HasPrefix(c.PublicBaseURL, "https://") {
		return fmt.Errorf("public_base_url must be an http(s) URL, got %q", c.PublicBaseURL)
	}
	return nil
}
