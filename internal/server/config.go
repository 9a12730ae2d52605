package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the room relay's runtime configuration.
type Config struct {
	Port            int           `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	RoomTTL         time.Duration `mapstructure:"room_ttl"`
	MaxParticipants int           `mapstructure:"max_participants"`
	Redis           RedisConfig   `mapstructure:"redis"`
}

// RedisConfig holds the Redis connection parameters.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoadConfig reads configuration from the given file (optional) with
// WATCHROOM_* environment variables taking precedence.
func LoadConfig(path string) (Config, error) {
	v := viper.New()

	v.SetDefault("port", 8080)
	v.SetDefault("environment", "development")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("jwt_secret", "change-me-in-production")
	v.SetDefault("room_ttl", 24*time.Hour)
	v.SetDefault("max_participants", 10)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetEnvPrefix("WATCHROOM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}
