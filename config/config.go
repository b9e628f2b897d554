// Package config reads application configuration via Viper.
//
// Sources, in precedence order: environment variables with the CARTON_
// prefix (CARTON_HTTP_PORT, CARTON_DB_PATH, ...), then an optional
// carton.yaml in the working directory, then defaults. Every deployment
// knob lives here; packages receive plain values, never Viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/packline/carton-ledger/ledger"
)

// Config groups all application settings.
type Config struct {
	App  AppConfig  `mapstructure:"app"`
	HTTP HTTPConfig `mapstructure:"http"`
	DB   DBConfig   `mapstructure:"db"`
	Log  LogConfig  `mapstructure:"log"`

	// Location roles consumed by the engine. Both must exist in the
	// catalog; Load seeds them with the configured names on first run.
	Locations LocationConfig `mapstructure:"locations"`
}

type AppConfig struct {
	Env  string `mapstructure:"env"` // development, production
	Name string `mapstructure:"name"`
}

type HTTPConfig struct {
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DBConfig struct {
	// Path to the SQLite database file; ":memory:" for in-memory.
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type LocationConfig struct {
	ProductionID   string `mapstructure:"production_id"`
	ProductionName string `mapstructure:"production_name"`
	StorageID      string `mapstructure:"storage_id"`
	StorageName    string `mapstructure:"storage_name"`
}

func (l LocationConfig) Production() ledger.LocationID { return ledger.LocationID(l.ProductionID) }
func (l LocationConfig) Storage() ledger.LocationID    { return ledger.LocationID(l.StorageID) }

// Load reads configuration from env and the optional config file.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("app.env", "development")
	v.SetDefault("app.name", "carton-ledger")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.cors_origins", []string{"http://localhost:5173", "http://localhost:8080"})
	v.SetDefault("db.path", "cartons.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("locations.production_id", "production-floor")
	v.SetDefault("locations.production_name", "Production Floor")
	v.SetDefault("locations.storage_id", "storage")
	v.SetDefault("locations.storage_name", "Storage")

	v.SetEnvPrefix("CARTON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("carton")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Locations.ProductionID == cfg.Locations.StorageID {
		return nil, fmt.Errorf("locations.production_id and locations.storage_id must differ")
	}
	return &cfg, nil
}
