package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Connection struct {
		InstanceURL string `mapstructure:"instance_url"`
		AccessToken string `mapstructure:"access_token"`
		APIVersion  string `mapstructure:"api_version"`
		TargetOrg   string `mapstructure:"target_org"`
	} `mapstructure:"connection"`

	CLI struct {
		Bin     string            `mapstructure:"bin"`
		Env     map[string]string `mapstructure:"env"`
		Timeout time.Duration     `mapstructure:"timeout"`
	} `mapstructure:"cli"`

	Bulk struct {
		PollInterval         time.Duration `mapstructure:"poll_interval"`
		PollTimeout          time.Duration `mapstructure:"poll_timeout"`
		RequestTimeout       time.Duration `mapstructure:"request_timeout"`
		RateLimit            float64       `mapstructure:"rate_limit"`
		RateBurst            int           `mapstructure:"rate_burst"`
		ColumnDelimiter      string        `mapstructure:"column_delimiter"`
		LineEnding           string        `mapstructure:"line_ending"`
		AbortOnUploadFailure bool          `mapstructure:"abort_on_upload_failure"`
	} `mapstructure:"bulk"`

	Database struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"database"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("connection.instance_url", "")
	v.SetDefault("connection.access_token", "")
	v.SetDefault("connection.api_version", "58.0")
	v.SetDefault("connection.target_org", "")
	v.SetDefault("cli.bin", "sf")
	v.SetDefault("cli.env", map[string]string{})
	v.SetDefault("cli.timeout", 2*time.Minute)
	v.SetDefault("bulk.poll_interval", 5*time.Second)
	v.SetDefault("bulk.poll_timeout", 10*time.Minute)
	v.SetDefault("bulk.request_timeout", 60*time.Second)
	v.SetDefault("bulk.rate_limit", 5.0)
	v.SetDefault("bulk.rate_burst", 2)
	v.SetDefault("bulk.column_delimiter", "COMMA")
	v.SetDefault("bulk.line_ending", "LF")
	v.SetDefault("bulk.abort_on_upload_failure", true)
	v.SetDefault("database.dsn", "bulkload.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig reads bulkload.yaml (or configFile when given) and BULKLOAD_* environment
// variables on top of the defaults.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("bulkload")
		v.SetConfigType("yaml")
		v.AddConfigPath(".") // Look for bulkload.yaml in the current directory
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "bulkload"))
		}
	}

	// connection.access_token -> BULKLOAD_CONNECTION_ACCESS_TOKEN
	v.SetEnvPrefix("BULKLOAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// Config file was found but another error was produced
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; proceed with defaults/env vars.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.CLI.Env == nil {
		cfg.CLI.Env = map[string]string{}
	}
	return &cfg, nil
}
