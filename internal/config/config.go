// Package config loads server configuration from defaults, an optional
// config file and APP_-prefixed environment variables, in that order of
// precedence (later wins).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides: db.path is read from APP_DB_PATH.
const EnvPrefix = "APP"

type Config struct {
	Port      int       `mapstructure:"port"`
	DB        DB        `mapstructure:"db"`
	Log       Log       `mapstructure:"log"`
	Auth      Auth      `mapstructure:"auth"`
	Instagram Instagram `mapstructure:"instagram"`
	Vault     Vault     `mapstructure:"vault"`
	Dispatch  Dispatch  `mapstructure:"dispatch"`
}

type DB struct {
	Path string `mapstructure:"path"`
}

type Log struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text or json
}

type Auth struct {
	JWTSecret     string `mapstructure:"jwt_secret"`
	SecureCookies bool   `mapstructure:"secure_cookies"`
	GitHub        GitHub `mapstructure:"github"`
}

type GitHub struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	CallbackURL  string `mapstructure:"callback_url"`
}

type Instagram struct {
	AppSecret         string        `mapstructure:"app_secret"`
	VerifyToken       string        `mapstructure:"verify_token"`
	GraphBaseURL      string        `mapstructure:"graph_base_url"`
	GraphVersion      string        `mapstructure:"graph_version"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
}

// Vault.Key is the hex-encoded 32-byte key that seals access tokens at rest.
type Vault struct {
	Key string `mapstructure:"key"`
}

type Dispatch struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseBackoff time.Duration `mapstructure:"base_backoff"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
	Timeout     time.Duration `mapstructure:"timeout"`
	LaneIdle    time.Duration `mapstructure:"lane_idle"`
	LaneBuffer  int           `mapstructure:"lane_buffer"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("db.path", "data/autoreply.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.secure_cookies", false)
	v.SetDefault("auth.github.client_id", "")
	v.SetDefault("auth.github.client_secret", "")
	v.SetDefault("auth.github.callback_url", "http://localhost:8080/auth/github/callback")

	v.SetDefault("instagram.app_secret", "")
	v.SetDefault("instagram.verify_token", "")
	v.SetDefault("instagram.graph_base_url", "https://graph.facebook.com")
	v.SetDefault("instagram.graph_version", "v21.0")
	v.SetDefault("instagram.requests_per_second", 10.0)
	v.SetDefault("instagram.request_timeout", 10*time.Second)

	v.SetDefault("vault.key", "")

	v.SetDefault("dispatch.max_attempts", 3)
	v.SetDefault("dispatch.base_backoff", 250*time.Millisecond)
	v.SetDefault("dispatch.max_backoff", 2*time.Second)
	v.SetDefault("dispatch.timeout", 5*time.Second)
	v.SetDefault("dispatch.lane_idle", 30*time.Second)
	v.SetDefault("dispatch.lane_buffer", 64)
}

// Load reads configuration. path names a config file; when empty, $CONFIG_FILE
// is tried, then ./config.yaml. A missing default file is not an error, a
// missing explicit one is.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// Validate reports every missing required key at once.
func (c *Config) Validate() error {
	var errs []error
	require := func(key, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required (env %s)", key, envName(key)))
		}
	}

	require("auth.jwt_secret", c.Auth.JWTSecret)
	require("auth.github.client_id", c.Auth.GitHub.ClientID)
	require("auth.github.client_secret", c.Auth.GitHub.ClientSecret)
	require("instagram.app_secret", c.Instagram.AppSecret)
	require("instagram.verify_token", c.Instagram.VerifyToken)
	require("vault.key", c.Vault.Key)

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
