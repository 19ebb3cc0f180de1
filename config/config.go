package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	DB          DBConfig          `mapstructure:"db"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	Stream      StreamConfig      `mapstructure:"stream"`
	MQTT        MQTTConfig        `mapstructure:"mqtt"`
	Cleanup     CleanupConfig     `mapstructure:"cleanup"`
	CORS        CORSConfig        `mapstructure:"cors"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	DataDir     string `mapstructure:"data_dir"`
	SnapshotDir string `mapstructure:"snapshot_dir"` // persisted user/registration images
	SnapshotURL string `mapstructure:"snapshot_url"` // URL path the snapshot dir is served under
	TmpDir      string `mapstructure:"tmp_dir"`      // scratch space for verification uploads
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// DBConfig holds database settings.
type DBConfig struct {
	File string `mapstructure:"file"` // SQLite database file
}

// RecognitionConfig holds settings for the external embedding provider and
// the initial runtime recognition settings.
type RecognitionConfig struct {
	ProviderURL    string   `mapstructure:"provider_url"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	Model          string   `mapstructure:"model"`      // initial embedding model
	Attributes     []string `mapstructure:"attributes"` // initial auxiliary attributes (age, gender, ...)
}

// StreamConfig holds settings for live stream processing.
type StreamConfig struct {
	SampleInterval   int  `mapstructure:"sample_interval"`    // run recognition on every Nth frame
	ReconnectDelayMs int  `mapstructure:"reconnect_delay_ms"` // fixed pause before reopening a failed source
	FeedIntervalMs   int  `mapstructure:"feed_interval_ms"`   // output cadence of the MJPEG feed
	SnapshotUnknown  bool `mapstructure:"snapshot_unknown"`   // store a snapshot with unknown-face log entries
}

// MQTTConfig holds settings for the optional MQTT match-event publisher.
type MQTTConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Broker   string `mapstructure:"broker"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	ClientID string `mapstructure:"client_id"`
	Topic    string `mapstructure:"topic"`
}

// CleanupConfig holds settings for the temporary-file janitor.
type CleanupConfig struct {
	RetentionHours  int `mapstructure:"retention_hours"`
	IntervalMinutes int `mapstructure:"interval_minutes"`
}

// CORSConfig holds CORS settings for the API.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads configuration from file, environment variables and defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Environment variables overlay the file values
	v.AutomaticEnv()
	v.SetEnvPrefix("FACEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers default values for all configuration keys.
func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.data_dir", "/data")
	v.SetDefault("server.snapshot_dir", "/data/snapshots")
	v.SetDefault("server.snapshot_url", "/snapshots")
	v.SetDefault("server.tmp_dir", "/data/tmp")

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "/data/logs/facewatch.log")

	// DB
	v.SetDefault("db.file", "/data/facewatch.db")

	// Recognition
	v.SetDefault("recognition.provider_url", "http://localhost:5005")
	v.SetDefault("recognition.timeout_seconds", 30)
	v.SetDefault("recognition.model", "Facenet")
	v.SetDefault("recognition.attributes", []string{})

	// Stream
	v.SetDefault("stream.sample_interval", 10)
	v.SetDefault("stream.reconnect_delay_ms", 3000)
	v.SetDefault("stream.feed_interval_ms", 100)
	v.SetDefault("stream.snapshot_unknown", false)

	// MQTT
	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "facewatch")
	v.SetDefault("mqtt.topic", "facewatch/matches")

	// Cleanup
	v.SetDefault("cleanup.retention_hours", 24)
	v.SetDefault("cleanup.interval_minutes", 60)

	// CORS
	v.SetDefault("cors.allowed_origins", []string{"*"})
}

// ensureDirectories makes sure all required directories exist.
func ensureDirectories(cfg *Config) error {
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if err := os.MkdirAll(cfg.Server.SnapshotDir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	if err := os.MkdirAll(cfg.Server.TmpDir, 0755); err != nil {
		return fmt.Errorf("failed to create tmp directory: %w", err)
	}

	logDir := filepath.Dir(cfg.Log.File)
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	if cfg.DB.File != "" {
		dbDir := filepath.Dir(cfg.DB.File)
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}
