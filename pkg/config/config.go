// Package config loads typed configuration from the environment. A .env file is exported into the
// process environment first; variables already set in the environment win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

const defaultEnvFile = ".env"

var (
	mu      sync.RWMutex
	envFile string
)

// SetEnvFile selects the file New exports before processing. Empty means ./.env when it exists.
func SetEnvFile(path string) {
	mu.Lock()
	defer mu.Unlock()
	envFile = strings.TrimSpace(path)
}

func EnvFile() string {
	mu.RLock()
	defer mu.RUnlock()
	return envFile
}

func New[T any](prefix string) (*T, error) {
	if err := loadEnvFile(EnvFile()); err != nil {
		return nil, err
	}

	var conf T
	if err := envconfig.Process(prefix, &conf); err != nil {
		return nil, fmt.Errorf("process %s config: %w", prefix, err)
	}
	return &conf, nil
}

func loadEnvFile(path string) error {
	if path != "" {
		if err := exportEnvironment(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}

	info, err := os.Stat(defaultEnvFile)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("stat default env file: %w", err)
	case info.IsDir():
		return nil
	}
	if err := exportEnvironment(defaultEnvFile); err != nil {
		return fmt.Errorf("load default env file: %w", err)
	}
	return nil
}

func exportEnvironment(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return err
	}

	for k, val := range v.AllSettings() {
		key := strings.ToUpper(k)
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, fmt.Sprint(val)); err != nil {
			return err
		}
	}
	return nil
}
