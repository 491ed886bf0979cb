package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix            = "WANDERLIST"
	defaultHTTPAddress   = "0.0.0.0:8080"
	defaultDatabasePath  = "wanderlist.db"
	defaultLogLevel      = "info"
	defaultTokenTTLMin   = 30
	defaultTokenIssuer   = "wanderlist-auth"
	defaultTokenAudience = "wanderlist-api"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress       string
	DatabasePath      string
	LogLevel          string
	AuthSigningSecret string
	AuthTokenIssuer   string
	AuthTokenAudience string
	AuthTokenTTL      time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMin)
	configViper.SetDefault("auth.token_issuer", defaultTokenIssuer)
	configViper.SetDefault("auth.token_audience", defaultTokenAudience)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		DatabasePath:      configViper.GetString("database.path"),
		LogLevel:          configViper.GetString("log.level"),
		AuthSigningSecret: configViper.GetString("auth.signing_secret"),
		AuthTokenIssuer:   configViper.GetString("auth.token_issuer"),
		AuthTokenAudience: configViper.GetString("auth.token_audience"),
		AuthTokenTTL:      time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AuthSigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.AuthTokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	return nil
}
