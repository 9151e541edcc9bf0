package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds the driver-wide defaults loaded once per driver load from an
// optional config file and environment variables. Per-connection settings
// from the connection string override these.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Query   QueryConfig   `mapstructure:"query"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=error warn info debug trace"`
	Path  string `mapstructure:"path"`
}

type QueryConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	BatchSize       int32         `mapstructure:"batch_size" validate:"gte=0"`
	MaxStringLength int           `mapstructure:"max_string_length" validate:"gte=0"`
}

var validate = validator.New()

// Load reads the optional driver config file and environment overrides.
// A missing config file is not an error; defaults apply.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("docstore-odbc")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME/.config/docstore-odbc")
	v.AddConfigPath(".")

	setDefaults(v)

	v.SetEnvPrefix("DOCSTORE_ODBC")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid driver configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")

	v.SetDefault("query.timeout", "30s")
	v.SetDefault("query.batch_size", 100)
	v.SetDefault("query.max_string_length", 0)
}
