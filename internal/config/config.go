package config

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// Playable area values for DecoderConfig.PlayableArea
const (
	PlayableAreaBoth         = ""
	PlayableAreaStereo       = "stereo"
	PlayableAreaMultichannel = "multichannel"
)

// FileLoggingConfig represents file-based logging configuration
type FileLoggingConfig struct {
	Enabled    bool   `json:"enabled"`      // Whether file logging is enabled
	Filename   string `json:"filename"`     // Log file path (empty = XDG cache path)
	MaxSizeMB  int    `json:"max_size_mb"`  // Max file size in MB before rotation
	MaxBackups int    `json:"max_backups"`  // Max number of backup files to keep
	MaxAgeDays int    `json:"max_age_days"` // Max age in days before deletion
	Compress   bool   `json:"compress"`     // Whether to compress rotated files
}

// DecoderConfig holds the options the DSDIFF decoder recognizes
type DecoderConfig struct {
	DSTDecThreads int    `json:"dstdec_threads"`      // DST worker threads (0 = one per CPU)
	EditedMaster  bool   `json:"edited_master"`       // Follow edited master track markers exactly
	SingleTrack   bool   `json:"single_track"`        // Expose each container as one track
	LSBitFirst    bool   `json:"lsbitfirst"`          // Deliver DSD least significant bit first
	PlayableArea  string `json:"playable_area"`       // "", "stereo" or "multichannel"
	UseStdio      *bool  `json:"use_stdio,omitempty"` // Buffered file access (default true)
}

// UseStdioOrDefault returns UseStdio, defaulting to true when unset
func (d DecoderConfig) UseStdioOrDefault() bool {
	if d.UseStdio == nil {
		return true
	}
	return *d.UseStdio
}

// Config represents dsdiff configuration
type Config struct {
	LogLevel    string             `json:"log_level"`              // Log level (debug, info, warn, error)
	FileLogging *FileLoggingConfig `json:"file_logging,omitempty"` // File logging configuration
	Decoder     DecoderConfig      `json:"decoder"`                // Decoder options
	Catalog     *CatalogConfig     `json:"catalog,omitempty"`      // Scan catalog configuration
}

// XDGInterface defines the interface for XDG directory operations
type XDGInterface interface {
	GetConfigPaths(filename string) []string
	GetCachePath(purpose string) string
	CreateCacheDir(purpose string) error
}

// ConfigManager handles loading and validating configuration
type ConfigManager struct {
	xdg XDGInterface
	fs  afero.Fs
}

// NewConfigManager creates a new configuration manager on the OS filesystem
func NewConfigManager() *ConfigManager {
	return NewConfigManagerWithFilesystem(afero.NewOsFs())
}

// NewConfigManagerWithFilesystem creates a configuration manager reading from fsys
func NewConfigManagerWithFilesystem(fsys afero.Fs) *ConfigManager {
	slog.Debug("creating new config manager")
	return &ConfigManager{
		xdg: NewXDGDirs(),
		fs:  fsys,
	}
}

// GetDefaultConfig returns the default configuration
func (cm *ConfigManager) GetDefaultConfig() *Config {
	defaultConfig := &Config{
		LogLevel: "warn",
		FileLogging: &FileLoggingConfig{
			Enabled:    false,
			Filename:   "", // Empty = XDG cache path
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Decoder: DecoderConfig{
			DSTDecThreads: 0,
			PlayableArea:  PlayableAreaBoth,
		},
		Catalog: GetDefaultCatalogConfig(),
	}

	slog.Debug("generated default config",
		"log_level", defaultConfig.LogLevel,
		"file_logging_enabled", defaultConfig.FileLogging.Enabled,
		"catalog_enabled", defaultConfig.Catalog.Enabled)

	return defaultConfig
}

// LoadFromFile loads configuration from a specific file
func (cm *ConfigManager) LoadFromFile(filePath string) (*Config, error) {
	slog.Debug("loading config from file", "file_path", filePath)

	data, err := afero.ReadFile(cm.fs, filePath)
	if err != nil {
		slog.Error("failed to read config file", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Start from defaults so absent blocks keep their default values
	config := cm.GetDefaultConfig()
	err = json.Unmarshal(data, config)
	if err != nil {
		slog.Error("failed to parse config JSON", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	err = cm.ValidateConfig(config)
	if err != nil {
		slog.Error("config validation failed", "file_path", filePath, "error", err)
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	slog.Debug("config loaded successfully",
		"file_path", filePath,
		"log_level", config.LogLevel,
		"dstdec_threads", config.Decoder.DSTDecThreads,
		"playable_area", config.Decoder.PlayableArea)

	return config, nil
}

// LoadConfig loads configuration using XDG path discovery
func (cm *ConfigManager) LoadConfig() (*Config, error) {
	slog.Debug("loading config using XDG path discovery")

	configPaths := cm.xdg.GetConfigPaths("config.json")

	slog.Debug("searching for config file", "paths", configPaths)

	for i, configPath := range configPaths {
		slog.Debug("checking config path", "path_index", i, "path", configPath)

		if _, err := cm.fs.Stat(configPath); err == nil {
			slog.Debug("found config file", "path", configPath)
			return cm.LoadFromFile(configPath)
		} else {
			slog.Debug("config file not found", "path", configPath, "error", err)
		}
	}

	slog.Debug("no config file found, using defaults")
	return cm.GetDefaultConfig(), nil
}

// ValidateConfig validates configuration values
func (cm *ConfigManager) ValidateConfig(config *Config) error {
	var errors []string

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if config.LogLevel != "" {
		valid := false
		for _, level := range validLogLevels {
			if config.LogLevel == level {
				valid = true
				break
			}
		}
		if !valid {
			errors = append(errors, fmt.Sprintf("invalid log level '%s', must be one of: %s",
				config.LogLevel, strings.Join(validLogLevels, ", ")))
		}
	}

	if config.Decoder.DSTDecThreads < 0 {
		errors = append(errors, fmt.Sprintf("decoder dstdec_threads must be >= 0, got %d", config.Decoder.DSTDecThreads))
	}

	if !IsValidPlayableArea(config.Decoder.PlayableArea) {
		errors = append(errors, fmt.Sprintf("invalid playable area '%s', must be one of: %s, %s (or empty for both)",
			config.Decoder.PlayableArea, PlayableAreaStereo, PlayableAreaMultichannel))
	}

	if config.FileLogging != nil {
		fileLogging := config.FileLogging

		if fileLogging.MaxSizeMB < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_size_mb must be >= 0, got %d", fileLogging.MaxSizeMB))
		}

		if fileLogging.MaxBackups < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_backups must be >= 0, got %d", fileLogging.MaxBackups))
		}

		if fileLogging.MaxAgeDays < 0 {
			errors = append(errors, fmt.Sprintf("file logging max_age_days must be >= 0, got %d", fileLogging.MaxAgeDays))
		}
	}

	if len(errors) > 0 {
		errMsg := strings.Join(errors, "; ")
		slog.Error("config validation failed", "errors", errMsg)
		return fmt.Errorf("config validation failed: %s", errMsg)
	}

	slog.Debug("config validation passed")
	return nil
}

// IsValidPlayableArea reports whether area is a recognized playable area
func IsValidPlayableArea(area string) bool {
	switch area {
	case PlayableAreaBoth, PlayableAreaStereo, PlayableAreaMultichannel:
		return true
	}
	return false
}

// ApplyEnvironmentOverrides applies environment variable overrides to config
func (cm *ConfigManager) ApplyEnvironmentOverrides(config *Config) *Config {
	slog.Debug("applying environment variable overrides")

	// Create a copy to modify
	result := *config

	// DSDIFF_LOG_LEVEL
	if logLevel := os.Getenv("DSDIFF_LOG_LEVEL"); logLevel != "" {
		result.LogLevel = logLevel
		slog.Debug("applied log level override from environment", "value", logLevel)
	}

	// DSDIFF_DSTDEC_THREADS
	if threadsStr := os.Getenv("DSDIFF_DSTDEC_THREADS"); threadsStr != "" {
		if threads, err := strconv.Atoi(threadsStr); err == nil && threads >= 0 {
			result.Decoder.DSTDecThreads = threads
			slog.Debug("applied dstdec threads override from environment", "value", threads)
		} else {
			slog.Warn("invalid DSDIFF_DSTDEC_THREADS environment variable", "value", threadsStr, "error", err)
		}
	}

	applyBoolEnv("DSDIFF_EDITED_MASTER", &result.Decoder.EditedMaster)
	applyBoolEnv("DSDIFF_SINGLE_TRACK", &result.Decoder.SingleTrack)
	applyBoolEnv("DSDIFF_LSBITFIRST", &result.Decoder.LSBitFirst)

	// DSDIFF_PLAYABLE_AREA
	if area, ok := os.LookupEnv("DSDIFF_PLAYABLE_AREA"); ok {
		if IsValidPlayableArea(area) {
			result.Decoder.PlayableArea = area
			slog.Debug("applied playable area override from environment", "value", area)
		} else {
			slog.Warn("invalid DSDIFF_PLAYABLE_AREA environment variable", "value", area)
		}
	}

	// DSDIFF_USE_STDIO
	if useStdioStr := os.Getenv("DSDIFF_USE_STDIO"); useStdioStr != "" {
		if useStdio, err := strconv.ParseBool(useStdioStr); err == nil {
			result.Decoder.UseStdio = &useStdio
			slog.Debug("applied use_stdio override from environment", "value", useStdio)
		} else {
			slog.Warn("invalid DSDIFF_USE_STDIO environment variable", "value", useStdioStr, "error", err)
		}
	}

	if result.Catalog != nil {
		result.Catalog = ApplyCatalogEnvironmentOverrides(result.Catalog)
	}

	slog.Debug("environment overrides applied")
	return &result
}

func applyBoolEnv(name string, target *bool) {
	valueStr := os.Getenv(name)
	if valueStr == "" {
		return
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		slog.Warn("invalid boolean environment variable", "name", name, "value", valueStr, "error", err)
		return
	}
	*target = value
	slog.Debug("applied override from environment", "name", name, "value", value)
}

// ParseLogLevel converts a config log level to a slog.Level
func ParseLogLevel(logLevel string) (slog.Level, error) {
	switch strings.ToLower(logLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level '%s', must be one of: debug, info, warn, error", logLevel)
	}
}

// ApplyLogLevelWithWriter configures slog with the specified log level and writer
func (cm *ConfigManager) ApplyLogLevelWithWriter(logLevel string, writer io.Writer) error {
	if logLevel == "" {
		slog.Debug("no log level specified, keeping current slog configuration")
		return nil
	}

	level, err := ParseLogLevel(logLevel)
	if err != nil {
		slog.Error("invalid log level for slog configuration", "log_level", logLevel, "error", err)
		return err
	}

	handler := slog.NewTextHandler(writer, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))

	slog.Debug("slog configured successfully with custom writer", "log_level", logLevel, "slog_level", level)
	return nil
}

// ResolveLogFilePath resolves the log file path using XDG cache directory when filename is empty
func (cm *ConfigManager) ResolveLogFilePath(filename string) string {
	if filename != "" {
		return filename
	}

	return filepath.Join(cm.xdg.GetCachePath("logs"), "dsdiff.log")
}
