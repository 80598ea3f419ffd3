package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// City stores accepted in city_store.kind / CITY_STORE.
const (
	CityStoreMemory = "memory"
	CityStoreSQLite = "sqlite"
	CityStoreRedis  = "redis"
)

// ClientConfig configures the terminal widget.
type ClientConfig struct {
	BackendURL string
	Timeout    time.Duration
	LogLevel   string

	CityStore     string
	CityStorePath string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Profile       string

	Effects bool
}

type clientFile struct {
	Backend struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"backend"`
	LogLevel  string `yaml:"log_level"`
	CityStore struct {
		Kind    string `yaml:"kind"`
		Path    string `yaml:"path"`
		Profile string `yaml:"profile"`
		Redis   struct {
			Addr string `yaml:"addr"`
			DB   int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"city_store"`
	Effects *bool `yaml:"effects"`
}

type clientEnv struct {
	BackendURL    string `envconfig:"WEATHER_BACKEND_URL"`
	CityStore     string `envconfig:"CITY_STORE"`
	CityStorePath string `envconfig:"CITY_STORE_PATH"`
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	Profile       string `envconfig:"CITY_PROFILE"`
	LogLevel      string `envconfig:"LOG_LEVEL"`
}

// LoadClient reads the optional config/client.yaml from the working directory
// and applies environment overrides.
func LoadClient() (*ClientConfig, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadClientFrom(cwd)
}

// LoadClientFrom is LoadClient rooted at dir.
func LoadClientFrom(dir string) (*ClientConfig, error) {
	var fc clientFile
	data, err := os.ReadFile(filepath.Join(dir, "config", "client.yaml"))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse client config: %w", err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read client config: %w", err)
	}

	var ev clientEnv
	if err := envconfig.Process("", &ev); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	cfg := &ClientConfig{
		BackendURL:    firstNonEmpty(ev.BackendURL, fc.Backend.URL, "http://localhost:8080"),
		Timeout:       parseDuration(fc.Backend.Timeout, 10*time.Second),
		LogLevel:      firstNonEmpty(ev.LogLevel, fc.LogLevel, "warn"),
		CityStore:     strings.ToLower(firstNonEmpty(ev.CityStore, fc.CityStore.Kind, CityStoreSQLite)),
		CityStorePath: firstNonEmpty(ev.CityStorePath, fc.CityStore.Path, "cities.db"),
		RedisAddr:     firstNonEmpty(ev.RedisAddr, fc.CityStore.Redis.Addr, "localhost:6379"),
		RedisPassword: strings.TrimSpace(ev.RedisPassword),
		RedisDB:       fc.CityStore.Redis.DB,
		Profile:       firstNonEmpty(ev.Profile, fc.CityStore.Profile, "default"),
		Effects:       fc.Effects == nil || *fc.Effects,
	}

	switch cfg.CityStore {
	case CityStoreMemory, CityStoreSQLite, CityStoreRedis:
	default:
		return nil, fmt.Errorf("city_store.kind must be memory, sqlite or redis, got %q", cfg.CityStore)
	}
	if !strings.HasPrefix(cfg.BackendURL, "http://") && !strings.HasPrefix(cfg.BackendURL, "https://") {
		return nil, fmt.Errorf("backend.url must be an http(s) URL, got %q", cfg.BackendURL)
	}
	return cfg, nil
}
