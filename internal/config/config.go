package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type Config struct {
	LogLevel    string        `yaml:"log-level" env:"LOG_LEVEL" env-default:"info"`
	HTTPAddr    string        `yaml:"http-addr" env:"HTTP_ADDR" env-default:":8080"`
	ThinkDelay  time.Duration `yaml:"think-delay" env:"THINK_DELAY" env-default:"500ms"`
	AIMark      string        `yaml:"ai-mark" env:"AI_MARK" env-default:"O"`
	FirstPlayer string        `yaml:"first-player" env:"FIRST_PLAYER" env-default:"X"`
	Store       string        `yaml:"store" env:"STORE" env-default:"memory"`
	Redis       Redis         `yaml:"redis"`
	HistoryPath string        `yaml:"history-path" env:"HISTORY_PATH" env-default:"tictactoe.db"`
}

type Redis struct {
	Host string        `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port string        `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	TTL  time.Duration `yaml:"ttl" env:"REDIS_TTL" env-default:"24h"`
}

// Load reads path when it exists and applies environment overrides. A
// missing file is not an error.
func Load(path string) (*Config, error) {
	config := &Config{}

	_, err := os.Stat(path)
	switch {
	case err == nil:
		if err = cleanenv.ReadConfig(path, config); err != nil {
			return nil, fmt.Errorf("unable to load config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		if err = cleanenv.ReadEnv(config); err != nil {
			return nil, fmt.Errorf("unable to read environment: %w", err)
		}
	default:
		return nil, fmt.Errorf("unable to stat config file: %w", err)
	}

	if err = config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// MustLoad is Load that panics on error.
func MustLoad(path string) *Config {
	config, err := Load(path)
	if err != nil {
		panic(err)
	}
	return config
}

func (that *Config) validate() error {
	switch that.Store {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("unknown store %q", that.Store)
	}
	if that.ThinkDelay < 0 {
		return fmt.Errorf("think-delay must not be negative, got %s", that.ThinkDelay)
	}
	return nil
}

func (that *Redis) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", that.Host, that.Port)
}
