package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
)

// CatalogConfig represents the scan catalog configuration
type CatalogConfig struct {
	Enabled      bool   `json:"enabled"`       // Whether scans are recorded in the catalog
	DatabasePath string `json:"database_path"` // Custom database path (empty = XDG cache path)
}

// GetDefaultCatalogConfig returns the default catalog configuration
func GetDefaultCatalogConfig() *CatalogConfig {
	return &CatalogConfig{
		Enabled:      true,
		DatabasePath: "", // Empty = XDG cache path
	}
}

// ApplyCatalogEnvironmentOverrides applies environment variable overrides to catalog config
func ApplyCatalogEnvironmentOverrides(config *CatalogConfig) *CatalogConfig {
	slog.Debug("applying catalog environment variable overrides")

	// Create a copy to modify
	result := *config

	// DSDIFF_CATALOG
	if catalogStr := os.Getenv("DSDIFF_CATALOG"); catalogStr != "" {
		if enabled, err := strconv.ParseBool(catalogStr); err == nil {
			result.Enabled = enabled
			slog.Debug("applied catalog override from environment", "value", enabled)
		} else {
			slog.Warn("invalid DSDIFF_CATALOG environment variable", "value", catalogStr, "error", err)
		}
	}

	// DSDIFF_CATALOG_DB
	if dbPath := os.Getenv("DSDIFF_CATALOG_DB"); dbPath != "" {
		result.DatabasePath = dbPath
		slog.Debug("applied catalog database override from environment", "value", dbPath)
	}

	return &result
}

// ResolveCatalogPath returns the database path, defaulting to the XDG cache
func (cm *ConfigManager) ResolveCatalogPath(config *CatalogConfig) string {
	if config != nil && config.DatabasePath != "" {
		return config.DatabasePath
	}
	return filepath.Join(cm.xdg.GetCachePath(""), "catalog.db")
}
