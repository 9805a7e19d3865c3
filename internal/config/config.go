package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
// It captures the platform session, storage, pacing and the local daemon surface.
type Config struct {
	Session    SessionConfig    `yaml:"session"`
	Platform   PlatformConfig   `yaml:"platform"`
	Storage    StorageConfig    `yaml:"storage"`
	Pacing     PacingConfig     `yaml:"pacing"`
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Onboarding OnboardingConfig `yaml:"onboarding"`
	// IANA zone used for the daily quota date and schedule times. Empty means local.
	Timezone string `yaml:"timezone"`
}

// SessionConfig holds the browser session cookies the platform API authenticates with.
type SessionConfig struct {
	// If empty, read from env IG_SESSIONID
	SessionID string `yaml:"sessionid"`
	// If empty, read from env IG_CSRFTOKEN
	CSRFToken string `yaml:"csrftoken"`
	// Account identifier of the session. If empty, read from env IG_DS_USER_ID
	DSUserID string `yaml:"dsUserId"`
}

type PlatformConfig struct {
	BaseURL        string `yaml:"baseURL" validate:"required,url"`
	AppID          string `yaml:"appId" validate:"required"`
	TimeoutSeconds int    `yaml:"timeoutSeconds" validate:"min=1"`
}

type StorageConfig struct {
	Driver    string `yaml:"driver" validate:"oneof=sqlite redis badger"`
	DBPath    string `yaml:"dbPath"`
	RedisAddr string `yaml:"redisAddr"`
	RedisDB   int    `yaml:"redisDB"`
	BadgerDir string `yaml:"badgerDir"`
}

// PacingConfig sets the randomized waits between consecutive calls, in milliseconds.
type PacingConfig struct {
	ActionBaseMs   int `yaml:"actionBaseMs" validate:"min=0"`
	ActionJitterMs int `yaml:"actionJitterMs" validate:"min=0"`
	CheckBaseMs    int `yaml:"checkBaseMs" validate:"min=0"`
	CheckJitterMs  int `yaml:"checkJitterMs" validate:"min=0"`
	SkipBaseMs     int `yaml:"skipBaseMs" validate:"min=0"`
	SkipJitterMs   int `yaml:"skipJitterMs" validate:"min=0"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`
	MetricsAddr string `yaml:"metricsAddr"`
	// Inbound message budget for the relay endpoint.
	MessagesPerSecond float64 `yaml:"messagesPerSecond" validate:"gt=0"`
	MessageBurst      int     `yaml:"messageBurst" validate:"min=1"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

type OnboardingConfig struct {
	DeveloperID string `yaml:"developerId"`
}

var validate = validator.New()

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Platform: PlatformConfig{BaseURL: "https://www.instagram.com", AppID: "936619743392459", TimeoutSeconds: 30},
		Storage:  StorageConfig{Driver: "sqlite", DBPath: "./charognard.db", RedisAddr: "localhost:6379", BadgerDir: "./charognard.badger"},
		Pacing: PacingConfig{
			ActionBaseMs: 2000, ActionJitterMs: 2000,
			CheckBaseMs: 1000, CheckJitterMs: 1000,
			SkipBaseMs: 500, SkipJitterMs: 500,
		},
		Server:  ServerConfig{Addr: "127.0.0.1:7878", MessagesPerSecond: 5, MessageBurst: 10},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// ResolveEnv fills in config fields from environment variables if not set.
func (c *Config) ResolveEnv() {
	if c.Session.SessionID == "" {
		c.Session.SessionID = os.Getenv("IG_SESSIONID")
	}
	if c.Session.CSRFToken == "" {
		c.Session.CSRFToken = os.Getenv("IG_CSRFTOKEN")
	}
	if c.Session.DSUserID == "" {
		c.Session.DSUserID = os.Getenv("IG_DS_USER_ID")
	}
	if v := os.Getenv("CHAROGNARD_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("CHAROGNARD_REDIS_ADDR"); v != "" {
		c.Storage.RedisAddr = v
	}
	if v := os.Getenv("METRICS_ADDR"); v != "" && c.Server.MetricsAddr == "" {
		c.Server.MetricsAddr = v
	}
	if v := os.Getenv("CHAROGNARD_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Platform.TimeoutSeconds = n
		}
	}
}

// Validate checks field bounds and the time zone.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Location resolves Timezone, defaulting to the process local zone.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Load reads YAML config from path, after loading a .env file if one exists.
// Keys missing from the file keep their Default values.
func Load(path string) (Config, error) {
	_ = godotenv.Load()
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
