// Package config loads application settings from environment variables,
// with an optional .env file, via Viper. Env vars win over file values.
package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig
	HTTP    HTTPConfig
	DB      DBConfig
	Log     LogConfig
	Costing CostingConfig
}

type AppConfig struct {
	Env  string // development, staging, production
	Name string
}

type HTTPConfig struct {
	Host string
	Port int
}

// Addr returns the listen address (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DBConfig points at the SQLite database file. Use ":memory:" for an
// ephemeral database.
type DBConfig struct {
	Path string
}

type LogConfig struct {
	Level string // trace, debug, info, warn, error
}

// CostingConfig tunes the cost aggregation engine.
type CostingConfig struct {
	// MaxDepth bounds composition recursion as a second line of defense
	// behind insert-time cycle validation.
	MaxDepth int
}

// Load reads configuration from env vars and, when present, a .env file
// in the working directory. Expected names: APP_ENV, HTTP_PORT, DB_PATH,
// LOG_LEVEL, COSTING_MAX_DEPTH.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // missing file is fine

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:  getString(v, "APP_ENV", "development"),
			Name: getString(v, "APP_NAME", "bake-tracker"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		DB: DBConfig{
			Path: getString(v, "DB_PATH", "bake-tracker.db"),
		},
		Log: LogConfig{
			Level: getString(v, "LOG_LEVEL", "info"),
		},
		Costing: CostingConfig{
			MaxDepth: getInt(v, "COSTING_MAX_DEPTH", 32),
		},
	}

	if cfg.Costing.MaxDepth < 1 {
		return nil, fmt.Errorf("COSTING_MAX_DEPTH must be at least 1, got %d", cfg.Costing.MaxDepth)
	}
	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		if s := v.GetString(key); s != "" {
			if n, err := strconv.Atoi(s); err == nil {
				return n
			}
		}
		return v.GetInt(key)
	}
	return def
}
