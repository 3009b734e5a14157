// Package config loads process settings through viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "VOLLEY"

type Settings struct {
	Server  ServerSettings  `mapstructure:"server"`
	History HistorySettings `mapstructure:"history"`
	Log     LogSettings     `mapstructure:"log"`
}

type ServerSettings struct {
	Address string `mapstructure:"address" validate:"required"`
}

type HistorySettings struct {
	Driver string `mapstructure:"driver" validate:"oneof=json bolt"`
	Path   string `mapstructure:"path"`
	Limit  int    `mapstructure:"limit" validate:"gte=1"`
}

type LogSettings struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// LoadDotEnv reads .env from the working directory if it exists. Variables
// already set in the environment win.
func LoadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	return godotenv.Load()
}

// SetDefaults registers the default for every key on v and binds the
// environment.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":3000")
	v.SetDefault("history.driver", "json")
	v.SetDefault("history.path", "")
	v.SetDefault("history.limit", 50)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes and validates the settings held by v.
func Load(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}

	// PORT is what most hosting platforms set.
	if port := os.Getenv("PORT"); port != "" && !v.InConfig("server.address") && os.Getenv(EnvPrefix+"_SERVER_ADDRESS") == "" {
		s.Server.Address = ":" + port
	}

	s.History.Driver = strings.ToLower(s.History.Driver)
	s.Log.Level = strings.ToLower(s.Log.Level)

	if s.History.Path == "" {
		s.History.Path = DefaultHistoryPath(s.History.Driver)
	}

	if err := validator.New().Struct(&s); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	return &s, nil
}

// DefaultHistoryPath is $HOME/.volley/history.json, or history.db for bolt.
func DefaultHistoryPath(driver string) string {
	name := "history.json"
	if driver == "bolt" {
		name = "history.db"
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".volley", name)
	}
	return filepath.Join(home, ".volley", name)
}
