// Package config provides configuration management for halftime using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort          = 8080
	defaultServerTimeout       = 30 * time.Second
	defaultShutdownTimeout     = 10 * time.Second
	defaultSegmentSeconds      = 10
	defaultMinGap              = 1500 * time.Millisecond
	defaultBufferBefore        = 10 * time.Second
	defaultBufferAfter         = 3 * time.Second
	defaultMaxCandidates       = 5
	defaultOracleTimeout       = 120 * time.Second
	defaultOracleTemperature   = 0.3
	defaultProfileTemperature  = 0.6
	defaultOracleBaseURL       = "https://api.x.ai/v1"
	defaultOracleModel         = "grok-4-1-fast"
	defaultGenerationBaseURL   = "https://api.wavespeed.ai/api/v3"
	defaultGenerationModel     = "alibaba/wan-2.5/video-extend"
	defaultGenerationPoll      = 5 * time.Second
	defaultGenerationTimeout   = 600 * time.Second
	defaultGenerationErrBudget = 10
	defaultResolution          = "720p"
	defaultUploadTimeout       = 120 * time.Second
	defaultMaxConcurrentJobs   = 3
	defaultJobRetention        = 24 * time.Hour
	defaultRetentionSchedule   = "0 0 * * * *" // hourly
	defaultMaxOpenConns        = 25
	defaultMaxIdleConns        = 10
	defaultConnMaxLifetime     = time.Hour
	defaultConnMaxIdleTime     = 30 * time.Minute
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Media      MediaConfig      `mapstructure:"media"`
	Placement  PlacementConfig  `mapstructure:"placement"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Generation GenerationConfig `mapstructure:"generation"`
	Upload     UploadConfig     `mapstructure:"upload"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Analytics  AnalyticsConfig  `mapstructure:"analytics"`
	Profile    ProfileConfig    `mapstructure:"profile"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// StorageConfig holds file storage configuration.
type StorageConfig struct {
	// OutputDir is the root under which each job owns <output_dir>/<job_id>/.
	OutputDir string `mapstructure:"output_dir"`
	// TempDir overrides the location for scratch directories (frames,
	// intermediate clips). Empty means the OS default.
	TempDir string `mapstructure:"temp_dir"`
}

// MediaConfig holds media toolchain configuration.
type MediaConfig struct {
	FFmpegPath      string   `mapstructure:"ffmpeg_path"`      // empty = auto-detect
	FFprobePath     string   `mapstructure:"ffprobe_path"`     // empty = auto-detect
	SegmentSeconds  int      `mapstructure:"segment_seconds"`  // HLS target segment duration
	HWAccelPriority []string `mapstructure:"hwaccel_priority"` // encoder preference order
}

// PlacementConfig holds insertion-point selection configuration.
type PlacementConfig struct {
	MinGap        time.Duration `mapstructure:"min_gap"`
	BufferBefore  time.Duration `mapstructure:"buffer_before"`
	BufferAfter   time.Duration `mapstructure:"buffer_after"`
	MaxCandidates int           `mapstructure:"max_candidates"`
	TranscriptCap int           `mapstructure:"transcript_cap"`
}

// OracleConfig holds reasoning-service configuration.
type OracleConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	APIKey             string        `mapstructure:"api_key" masq:"secret"`
	Model              string        `mapstructure:"model"`
	VisionModel        string        `mapstructure:"vision_model"` // empty = Model
	Temperature        float64       `mapstructure:"temperature"`
	ProfileTemperature float64       `mapstructure:"profile_temperature"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

// GenerationConfig holds v2v generation provider configuration.
type GenerationConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	APIKey             string        `mapstructure:"api_key" masq:"secret"`
	ModelPath          string        `mapstructure:"model_path"`
	Resolution         string        `mapstructure:"resolution"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxConsecutiveErrs int           `mapstructure:"max_consecutive_errors"`
	PromptTemplatePath string        `mapstructure:"prompt_template_path"`
}

// UploadConfig holds ephemeral file-host configuration.
type UploadConfig struct {
	HostTimeout time.Duration `mapstructure:"host_timeout"`
}

// JobsConfig holds job execution configuration.
type JobsConfig struct {
	MaxConcurrent     int           `mapstructure:"max_concurrent"`
	Retention         time.Duration `mapstructure:"retention"`
	RetentionSchedule string        `mapstructure:"retention_schedule"` // 6-field cron expression
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	// Require rejects requests without a bearer token on protected routes.
	Require bool `mapstructure:"require"`
}

// AnalyticsConfig holds the event store configuration.
type AnalyticsConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// ProfileConfig holds viewer-profile analysis configuration.
type ProfileConfig struct {
	// CatalogPath points at a JSON product catalog used for matching.
	// Empty uses the built-in demo catalog.
	CatalogPath string `mapstructure:"catalog_path"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with HALFTIME_ and use underscores
// for nesting. Example: HALFTIME_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/halftime")
		v.AddConfigPath("$HOME/.halftime")
	}

	v.SetEnvPrefix("HALFTIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		// No config file is fine; defaults + env carry the load.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Logging
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)

	// Storage
	v.SetDefault("storage.output_dir", "./data/jobs")
	v.SetDefault("storage.temp_dir", "")

	// Media
	v.SetDefault("media.ffmpeg_path", "")
	v.SetDefault("media.ffprobe_path", "")
	v.SetDefault("media.segment_seconds", defaultSegmentSeconds)
	v.SetDefault("media.hwaccel_priority", []string{"nvenc", "qsv", "vaapi", "videotoolbox"})

	// Placement
	v.SetDefault("placement.min_gap", defaultMinGap)
	v.SetDefault("placement.buffer_before", defaultBufferBefore)
	v.SetDefault("placement.buffer_after", defaultBufferAfter)
	v.SetDefault("placement.max_candidates", defaultMaxCandidates)
	v.SetDefault("placement.transcript_cap", 100)

	// Oracle
	v.SetDefault("oracle.base_url", defaultOracleBaseURL)
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.model", defaultOracleModel)
	v.SetDefault("oracle.vision_model", "")
	v.SetDefault("oracle.temperature", defaultOracleTemperature)
	v.SetDefault("oracle.profile_temperature", defaultProfileTemperature)
	v.SetDefault("oracle.timeout", defaultOracleTimeout)

	// Generation
	v.SetDefault("generation.base_url", defaultGenerationBaseURL)
	v.SetDefault("generation.api_key", "")
	v.SetDefault("generation.model_path", defaultGenerationModel)
	v.SetDefault("generation.resolution", defaultResolution)
	v.SetDefault("generation.poll_interval", defaultGenerationPoll)
	v.SetDefault("generation.timeout", defaultGenerationTimeout)
	v.SetDefault("generation.max_consecutive_errors", defaultGenerationErrBudget)
	v.SetDefault("generation.prompt_template_path", "")

	// Upload
	v.SetDefault("upload.host_timeout", defaultUploadTimeout)

	// Jobs
	v.SetDefault("jobs.max_concurrent", defaultMaxConcurrentJobs)
	v.SetDefault("jobs.retention", defaultJobRetention)
	v.SetDefault("jobs.retention_schedule", defaultRetentionSchedule)

	// Auth
	v.SetDefault("auth.require", true)

	// Analytics
	v.SetDefault("analytics.driver", "sqlite")
	v.SetDefault("analytics.dsn", "./data/analytics.db")
	v.SetDefault("analytics.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("analytics.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("analytics.conn_max_lifetime", defaultConnMaxLifetime)
	v.SetDefault("analytics.conn_max_idle_time", defaultConnMaxIdleTime)

	// Profile
	v.SetDefault("profile.catalog_path", "")
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}

	if c.Media.SegmentSeconds < 1 {
		return fmt.Errorf("media.segment_seconds must be positive, got %d", c.Media.SegmentSeconds)
	}

	if c.Placement.MinGap <= 0 {
		return fmt.Errorf("placement.min_gap must be positive, got %s", c.Placement.MinGap)
	}
	if c.Placement.BufferBefore < 0 || c.Placement.BufferAfter < 0 {
		return errors.New("placement buffer widths must be non-negative")
	}
	if c.Placement.MaxCandidates < 1 {
		return fmt.Errorf("placement.max_candidates must be positive, got %d", c.Placement.MaxCandidates)
	}

	if c.Generation.PollInterval <= 0 {
		return fmt.Errorf("generation.poll_interval must be positive, got %s", c.Generation.PollInterval)
	}
	if c.Generation.Timeout <= 0 {
		return fmt.Errorf("generation.timeout must be positive, got %s", c.Generation.Timeout)
	}

	switch c.Analytics.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("analytics.driver must be sqlite, postgres or mysql, got %q", c.Analytics.Driver)
	}

	if c.Jobs.MaxConcurrent < 1 {
		return fmt.Errorf("jobs.max_concurrent must be positive, got %d", c.Jobs.MaxConcurrent)
	}

	return nil
}

// JobDir returns the output directory owned by a job.
func (c *Config) JobDir(jobID string) string {
	return filepath.Join(c.Storage.OutputDir, jobID)
}

// VisionModelOrDefault returns the vision model, falling back to the
// analytical model when unset.
func (c *OracleConfig) VisionModelOrDefault() string {
	if c.VisionModel != "" {
		return c.VisionModel
	}
	return c.Model
}
