// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`

	// File paths
	DatabasePath string `mapstructure:"storagepath"`
	DatabaseName string `mapstructure:"-"` // Derived from other settings
	GeoDBPath    string `mapstructure:"geodbpath"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseMaxOpenConns int `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int `mapstructure:"dbmaxidleconns"`

	// Reverse geocoding settings
	GeocoderBaseURL        string `mapstructure:"geocoderbaseurl"`
	GeocoderTimeoutSeconds int    `mapstructure:"geocodertimeoutseconds"`

	// Job scheduling settings
	JobIntervalSeconds      int `mapstructure:"jobintervalseconds"`
	SnapshotIntervalSeconds int `mapstructure:"snapshotintervalseconds"`

	// Report generation settings
	ReportDeadlineSeconds int `mapstructure:"reportdeadlineseconds"`
	ScanBatchSize         int `mapstructure:"scanbatchsize"`

	// Data retention settings
	EventRetentionDays int `mapstructure:"eventretentiondays"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "analytiq")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("storagepath", "storage")
		v.SetDefault("geodbpath", "storage/GeoLite2-Country.mmdb")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("geocoderbaseurl", "https://nominatim.openstreetmap.org")
		v.SetDefault("geocodertimeoutseconds", 5)
		v.SetDefault("jobintervalseconds", 60)
		v.SetDefault("snapshotintervalseconds", 30)
		v.SetDefault("reportdeadlineseconds", 60)
		v.SetDefault("scanbatchsize", 1000)
		v.SetDefault("eventretentiondays", 90)

		v.BindEnv("appname", "ANALYTIQ_APP_NAME")
		v.BindEnv("appport", "ANALYTIQ_APP_PORT")
		v.BindEnv("environment", "ANALYTIQ_ENV")
		v.BindEnv("loglevel", "ANALYTIQ_LOG_LEVEL")
		v.BindEnv("storagepath", "ANALYTIQ_STORAGE_PATH")
		v.BindEnv("geodbpath", "ANALYTIQ_GEO_DB_PATH")
		v.BindEnv("logsdir", "ANALYTIQ_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "ANALYTIQ_LOGS_MAX_SIZE_MB")
		v.BindEnv("logsmaxbackups", "ANALYTIQ_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "ANALYTIQ_LOGS_MAX_AGE_DAYS")
		v.BindEnv("dbmaxopenconns", "ANALYTIQ_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "ANALYTIQ_DB_MAX_IDLE_CONNS")
		v.BindEnv("geocoderbaseurl", "ANALYTIQ_GEOCODER_BASE_URL")
		v.BindEnv("geocodertimeoutseconds", "ANALYTIQ_GEOCODER_TIMEOUT_SECONDS")
		v.BindEnv("jobintervalseconds", "ANALYTIQ_JOB_INTERVAL_SECONDS")
		v.BindEnv("snapshotintervalseconds", "ANALYTIQ_SNAPSHOT_INTERVAL_SECONDS")
		v.BindEnv("reportdeadlineseconds", "ANALYTIQ_REPORT_DEADLINE_SECONDS")
		v.BindEnv("scanbatchsize", "ANALYTIQ_SCAN_BATCH_SIZE")
		v.BindEnv("eventretentiondays", "ANALYTIQ_EVENT_RETENTION_DAYS")

		v.AutomaticEnv()

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("failed to unmarshal config: %v", err)
		}

		cfg.DatabaseName = filepath.Join(cfg.DatabasePath, fmt.Sprintf("%s-%s.db", cfg.AppName, cfg.Environment))
	})
	return cfg
}

// GetMaxOpenConns returns the configured max open connections, 0 means driver default
func (c *Config) GetMaxOpenConns() int {
	return c.DatabaseMaxOpenConns
}

// GetMaxIdleConns returns the configured max idle connections, 0 means driver default
func (c *Config) GetMaxIdleConns() int {
	return c.DatabaseMaxIdleConns
}

// GeocoderTimeout returns the reverse geocoder timeout
func (c *Config) GeocoderTimeout() time.Duration {
	if c.GeocoderTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.GeocoderTimeoutSeconds) * time.Second
}

// ReportDeadline returns the maximum time a report build may take
func (c *Config) ReportDeadline() time.Duration {
	if c.ReportDeadlineSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.ReportDeadlineSeconds) * time.Second
}
