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

// Cache backends accepted in cache.backend / CACHE_BACKEND.
const (
	CacheInMemory  = "in_memory"
	CacheMemcached = "memcached"
	CacheRedis     = "redis"
)

// Config holds server configuration loaded from YAML and env.
type Config struct {
	ServerPort string
	LogLevel   string

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration

	RequestTimeout time.Duration
	DefaultCity    string
	CityMinLength  int
	CityMaxLength  int

	CacheBackend    string
	CacheTTL        time.Duration
	CoalesceTimeout time.Duration

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	RateLimitRequests int
	RateLimitWindow   time.Duration
	TrustForwardedFor bool

	ShutdownTimeout         time.Duration
	ShutdownInFlightTimeout time.Duration

	DegradedWindow   time.Duration
	DegradedErrorPct int
	HealthCheckTTL   time.Duration

	TrackedCities []string
	WarmCities    []string
	WarmInterval  time.Duration
}

type fileConfig struct {
	Server struct {
		Port     string `yaml:"port"`
		LogLevel string `yaml:"log_level"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout       string `yaml:"timeout"`
		DefaultCity   string `yaml:"default_city"`
		CityMinLength int    `yaml:"city_min_length"`
		CityMaxLength int    `yaml:"city_max_length"`
	} `yaml:"request"`

	Cache struct {
		Backend         string `yaml:"backend"`
		TTL             string `yaml:"ttl"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`
		Memcached       struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
		Redis struct {
			Addr string `yaml:"addr"`
			DB   int    `yaml:"db"`
		} `yaml:"redis"`
		WarmCities   []string `yaml:"warm_cities"`
		WarmInterval string   `yaml:"warm_interval"`
	} `yaml:"cache"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		CircuitBreaker   struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	RateLimit struct {
		Requests          int    `yaml:"requests"`
		Window            string `yaml:"window"`
		TrustForwardedFor bool   `yaml:"trust_forwarded_for"`
	} `yaml:"rate_limit"`

	Shutdown struct {
		Timeout         string `yaml:"timeout"`
		InFlightTimeout string `yaml:"in_flight_timeout"`
	} `yaml:"shutdown"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
		APICheckTTL      string `yaml:"api_check_ttl"`
	} `yaml:"health"`

	Metrics struct {
		TrackedCities []string `yaml:"tracked_cities"`
	} `yaml:"metrics"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	RedisPassword string `yaml:"redis_password"`
}

// serverEnv holds environment overrides. Empty values leave the file setting alone.
type serverEnv struct {
	WeatherAPIKey  string        `envconfig:"WEATHER_API_KEY"`
	CacheBackend   string        `envconfig:"CACHE_BACKEND"`
	CacheTTL       time.Duration `envconfig:"CACHE_TTL"`
	MemcachedAddrs string        `envconfig:"MEMCACHED_ADDRS"`
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	Port           string        `envconfig:"PORT"`
	LogLevel       string        `envconfig:"LOG_LEVEL"`
}

// Load reads config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml from
// the working directory, then applies environment overrides.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom is Load rooted at dir instead of the working directory.
func LoadFrom(dir string) (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	var sec secretsFile
	secretsData, err := os.ReadFile(filepath.Join(dir, "config", "secrets.yaml"))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(secretsData, &sec); err != nil {
			return nil, fmt.Errorf("parse secrets file: %w", err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read secrets file: %w", err)
	}

	var ev serverEnv
	if err := envconfig.Process("", &ev); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	cfg := fromFile(&fc)
	cfg.WeatherAPIKey = firstNonEmpty(ev.WeatherAPIKey, sec.WeatherAPIKey)
	cfg.RedisPassword = firstNonEmpty(ev.RedisPassword, sec.RedisPassword)
	cfg.ServerPort = firstNonEmpty(ev.Port, cfg.ServerPort)
	cfg.LogLevel = firstNonEmpty(ev.LogLevel, cfg.LogLevel)
	cfg.CacheBackend = strings.ToLower(strings.TrimSpace(firstNonEmpty(ev.CacheBackend, cfg.CacheBackend)))
	cfg.MemcachedAddrs = firstNonEmpty(ev.MemcachedAddrs, cfg.MemcachedAddrs)
	cfg.RedisAddr = firstNonEmpty(ev.RedisAddr, cfg.RedisAddr)
	if ev.CacheTTL > 0 {
		cfg.CacheTTL = ev.CacheTTL
	}

	if cfg.WeatherAPIKey == "" {
		return nil, fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromFile(fc *fileConfig) *Config {
	return &Config{
		ServerPort: firstNonEmpty(fc.Server.Port, "8080"),
		LogLevel:   firstNonEmpty(fc.Server.LogLevel, "info"),

		WeatherAPIURL:     firstNonEmpty(fc.WeatherAPI.URL, "https://api.openweathermap.org/data/2.5/weather"),
		WeatherAPITimeout: parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second),

		RequestTimeout: parseDuration(fc.Request.Timeout, 10*time.Second),
		DefaultCity:    firstNonEmpty(fc.Request.DefaultCity, "Miami"),
		CityMinLength:  fc.Request.CityMinLength,
		CityMaxLength:  positiveOr(fc.Request.CityMaxLength, 100),

		CacheBackend:    firstNonEmpty(fc.Cache.Backend, CacheInMemory),
		CacheTTL:        parseDuration(fc.Cache.TTL, 10*time.Second),
		CoalesceTimeout: parseDurationOrZero(fc.Cache.CoalesceTimeout, 10*time.Second),

		MemcachedAddrs:        firstNonEmpty(strings.TrimSpace(fc.Cache.Memcached.Addrs), "localhost:11211"),
		MemcachedTimeout:      parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond),
		MemcachedMaxIdleConns: positiveOr(fc.Cache.Memcached.MaxIdleConns, 2),

		RedisAddr: firstNonEmpty(fc.Cache.Redis.Addr, "localhost:6379"),
		RedisDB:   fc.Cache.Redis.DB,

		RetryAttempts:  positiveOr(fc.Reliability.RetryMaxAttempts, 1),
		RetryBaseDelay: parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond),
		RetryMaxDelay:  parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second),

		CircuitBreakerEnabled:          fc.Reliability.CircuitBreaker.Enabled,
		CircuitBreakerFailureThreshold: positiveOr(fc.Reliability.CircuitBreaker.FailureThreshold, 5),
		CircuitBreakerSuccessThreshold: positiveOr(fc.Reliability.CircuitBreaker.SuccessThreshold, 2),
		CircuitBreakerTimeout:          parseDuration(fc.Reliability.CircuitBreaker.Timeout, 30*time.Second),

		RateLimitRequests: positiveOr(fc.RateLimit.Requests, 10),
		RateLimitWindow:   parseDuration(fc.RateLimit.Window, 20*time.Second),
		TrustForwardedFor: fc.RateLimit.TrustForwardedFor,

		ShutdownTimeout:         parseDuration(fc.Shutdown.Timeout, 30*time.Second),
		ShutdownInFlightTimeout: parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second),

		DegradedWindow:   parseDuration(fc.Health.DegradedWindow, time.Minute),
		DegradedErrorPct: positiveOr(fc.Health.DegradedErrorPct, 50),
		HealthCheckTTL:   parseDuration(fc.Health.APICheckTTL, 30*time.Second),

		TrackedCities: fc.Metrics.TrackedCities,
		WarmCities:    fc.Cache.WarmCities,
		WarmInterval:  parseDurationOrZero(fc.Cache.WarmInterval, 0),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func positiveOr(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// parseDuration returns defaultVal when s is empty, malformed or not positive.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero returns defaultVal on empty or malformed input and keeps
// zero or negative values for validate to reject.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate rejects unusable values and stretches RequestTimeout to cover the
// upstream timeout.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.CacheBackend {
	case CacheInMemory, CacheMemcached, CacheRedis:
	default:
		return fmt.Errorf("cache.backend must be in_memory, memcached or redis, got %q", cfg.CacheBackend)
	}
	if cfg.CityMinLength > cfg.CityMaxLength {
		return fmt.Errorf("request.city_min_length (%d) exceeds city_max_length (%d)", cfg.CityMinLength, cfg.CityMaxLength)
	}
	if cfg.CoalesceTimeout < 0 {
		return fmt.Errorf("cache.coalesce_timeout must not be negative")
	}
	if cfg.WarmInterval < 0 {
		return fmt.Errorf("cache.warm_interval must not be negative")
	}
	return nil
}
