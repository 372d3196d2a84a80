package config

import (
	"fmt"

	"github.com/spf13/viper"
)

type Config struct {
	Port              int     `mapstructure:"port"`
	LogLevel          string  `mapstructure:"log_level"`
	AllowedOrigin     string  `mapstructure:"allowed_origin"`
	MessagesPerSecond float64 `mapstructure:"messages_per_second"`
	MessageBurst      int     `mapstructure:"message_burst"`
	MaxMessageSize    int64   `mapstructure:"max_message_size"`
}

// Load reads configuration from an optional JSON file, with INKROOM_*
// environment variables overriding file values and defaults filling the
// rest. An empty path skips the file entirely.
func Load(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("allowed_origin", "*")
	v.SetDefault("messages_per_second", 100.0)
	v.SetDefault("message_burst", 200)
	v.SetDefault("max_message_size", 64*1024)

	v.SetEnvPrefix("INKROOM")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}
