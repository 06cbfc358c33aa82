// Package config loads runtime settings from defaults, an optional .env
// file, an optional YAML file and HEADLINES_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable the loader reads,
// e.g. HEADLINES_DB_PATH for db.path.
const EnvPrefix = "HEADLINES"

var (
	errEmptyListen   = errors.New("listen address is required")
	errEmptyDBPath   = errors.New("db.path is required")
	errBadBatchSize  = errors.New("refresh.batch_size must be positive")
	errBadDuration   = errors.New("duration must be positive")
	errBadImageWidth = errors.New("content.max_image_width must be positive")
)

// Config is the validated application configuration.
type Config struct {
	Listen   string
	DBPath   string
	Log      LogConfig
	Refresh  RefreshConfig
	Notify   NotifyConfig
	Beacon   BeaconConfig
	Items    ItemsConfig
	Content  ContentConfig
	EnvFiles []string
}

// LogConfig controls the slog handler and optional rotating log file.
type LogConfig struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// RefreshConfig controls the background feed refresh loop.
type RefreshConfig struct {
	DefaultInterval time.Duration
	LoopInterval    time.Duration
	BatchSize       int
}

// NotifyConfig controls per-session notification logs.
type NotifyConfig struct {
	SessionTTL time.Duration
}

// BeaconConfig tells the page how often to ping the beacon endpoint.
type BeaconConfig struct {
	Interval time.Duration
}

// ItemsConfig holds item display settings.
type ItemsConfig struct {
	BoringThreshold int
}

// ContentConfig holds summary rewriting settings.
type ContentConfig struct {
	MaxImageWidth  int
	MaxImageHeight int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("db.path", "headlines.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("refresh.default_interval", 30*time.Minute)
	v.SetDefault("refresh.loop_interval", 30*time.Second)
	v.SetDefault("refresh.batch_size", 5)
	v.SetDefault("notify.session_ttl", 24*time.Hour)
	v.SetDefault("beacon.interval", 60*time.Second)
	v.SetDefault("items.boring_threshold", -1)
	v.SetDefault("content.max_image_width", 640)
	v.SetDefault("content.max_image_height", 480)
}

// Load reads the configuration. path may be empty, in which case
// headlines.yaml is looked up in the working directory and silently skipped
// when absent. envFiles are loaded with godotenv before the environment is
// consulted; missing env files are ignored.
func Load(path string, envFiles ...string) (Config, error) {
	loadedEnv := loadEnvFiles(envFiles)

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	err := readConfigFile(v, path)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Listen: strings.TrimSpace(v.GetString("listen")),
		DBPath: strings.TrimSpace(v.GetString("db.path")),
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			File:       strings.TrimSpace(v.GetString("log.file")),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
		Refresh: RefreshConfig{
			DefaultInterval: v.GetDuration("refresh.default_interval"),
			LoopInterval:    v.GetDuration("refresh.loop_interval"),
			BatchSize:       v.GetInt("refresh.batch_size"),
		},
		Notify:   NotifyConfig{SessionTTL: v.GetDuration("notify.session_ttl")},
		Beacon:   BeaconConfig{Interval: v.GetDuration("beacon.interval")},
		Items:    ItemsConfig{BoringThreshold: v.GetInt("items.boring_threshold")},
		Content:  ContentConfig{MaxImageWidth: v.GetInt("content.max_image_width"), MaxImageHeight: v.GetInt("content.max_image_height")},
		EnvFiles: loadedEnv,
	}

	err = cfg.Validate()
	if err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.Listen == "" {
		return errEmptyListen
	}

	if c.DBPath == "" {
		return errEmptyDBPath
	}

	if c.Refresh.BatchSize <= 0 {
		return errBadBatchSize
	}

	durations := map[string]time.Duration{
		"refresh.default_interval": c.Refresh.DefaultInterval,
		"refresh.loop_interval":    c.Refresh.LoopInterval,
		"notify.session_ttl":       c.Notify.SessionTTL,
		"beacon.interval":          c.Beacon.Interval,
	}
	for key, value := range durations {
		if value <= 0 {
			return fmt.Errorf("%s: %w", key, errBadDuration)
		}
	}

	if c.Content.MaxImageWidth <= 0 {
		return errBadImageWidth
	}

	return nil
}

func readConfigFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("headlines")
		v.SetConfigType("yaml")
	}

	err := v.ReadInConfig()
	if err == nil {
		slog.Debug("config file loaded", "path", v.ConfigFileUsed())

		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if path == "" && errors.As(err, &notFound) {
		return nil
	}

	return fmt.Errorf("read config file: %w", err)
}

func loadEnvFiles(files []string) []string {
	var loaded []string

	for _, file := range files {
		err := godotenv.Load(file)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				slog.Warn("env file load failed", "path", file, "err", err)
			}

			continue
		}

		loaded = append(loaded, file)
	}

	return loaded
}
