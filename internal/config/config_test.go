package config

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dsdiff.click/internal/fs"
)

type MockXDGDirs struct {
	configPaths []string
}

func (m *MockXDGDirs) GetConfigPaths(filename string) []string {
	return m.configPaths
}

func (m *MockXDGDirs) GetCachePath(purpose string) string {
	return filepath.Join("/tmp/test-cache", purpose)
}

func (m *MockXDGDirs) CreateCacheDir(purpose string) error {
	return nil
}

func newMemoryManager(t *testing.T, files map[string]string) *ConfigManager {
	t.Helper()
	memFS := fs.NewDefaultFactory().Memory()
	for path, content := range files {
		require.NoError(t, memFS.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, afero.WriteFile(memFS, path, []byte(content), 0644))
	}
	return NewConfigManagerWithFilesystem(memFS)
}

func TestLoadDefaultConfig(t *testing.T) {
	mgr := NewConfigManager()

	config := mgr.GetDefaultConfig()

	if config.LogLevel != "warn" {
		t.Errorf("Expected default log level warn, got %s", config.LogLevel)
	}
	if config.Decoder.DSTDecThreads != 0 {
		t.Errorf("Expected default dstdec_threads 0, got %d", config.Decoder.DSTDecThreads)
	}
	if config.Decoder.EditedMaster || config.Decoder.SingleTrack || config.Decoder.LSBitFirst {
		t.Errorf("Expected boolean decoder options to default to false: %+v", config.Decoder)
	}
	if config.Decoder.PlayableArea != PlayableAreaBoth {
		t.Errorf("Expected both areas by default, got %q", config.Decoder.PlayableArea)
	}
	if !config.Decoder.UseStdioOrDefault() {
		t.Error("Expected use_stdio to default to true")
	}
	if config.Catalog == nil || !config.Catalog.Enabled {
		t.Error("Expected catalog to be enabled by default")
	}

	if err := mgr.ValidateConfig(config); err != nil {
		t.Errorf("Default config should validate: %v", err)
	}
}

func TestLoadFromFileWithMemoryFilesystem(t *testing.T) {
	mgr := newMemoryManager(t, map[string]string{
		"/test/config.json": `{
			"log_level": "debug",
			"decoder": {
				"dstdec_threads": 4,
				"edited_master": true,
				"lsbitfirst": true,
				"playable_area": "multichannel",
				"use_stdio": false
			}
		}`,
	})

	config, err := mgr.LoadFromFile("/test/config.json")
	require.NoError(t, err)

	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, 4, config.Decoder.DSTDecThreads)
	assert.True(t, config.Decoder.EditedMaster)
	assert.False(t, config.Decoder.SingleTrack)
	assert.True(t, config.Decoder.LSBitFirst)
	assert.Equal(t, PlayableAreaMultichannel, config.Decoder.PlayableArea)
	assert.False(t, config.Decoder.UseStdioOrDefault())

	// absent blocks keep defaults
	require.NotNil(t, config.Catalog)
	assert.True(t, config.Catalog.Enabled)
	require.NotNil(t, config.FileLogging)
	assert.Equal(t, 10, config.FileLogging.MaxSizeMB)
}

func TestLoadFromFileErrors(t *testing.T) {
	mgr := newMemoryManager(t, map[string]string{
		"/bad/json.json":    `{"log_level": `,
		"/bad/area.json":    `{"decoder": {"playable_area": "surround"}}`,
		"/bad/threads.json": `{"decoder": {"dstdec_threads": -1}}`,
		"/bad/level.json":   `{"log_level": "verbose"}`,
	})

	testCases := []struct {
		path    string
		message string
	}{
		{"/missing.json", "failed to read config file"},
		{"/bad/json.json", "failed to parse config JSON"},
		{"/bad/area.json", "invalid playable area"},
		{"/bad/threads.json", "dstdec_threads must be >= 0"},
		{"/bad/level.json", "invalid log level"},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			_, err := mgr.LoadFromFile(tc.path)
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), tc.message) {
				t.Errorf("Expected error containing %q, got %v", tc.message, err)
			}
		})
	}
}

func TestLoadConfigAutoDiscovery(t *testing.T) {
	mgr := newMemoryManager(t, map[string]string{
		"/etc/xdg/dsdiff/config.json": `{"decoder": {"single_track": true}}`,
	})
	mgr.xdg = &MockXDGDirs{configPaths: []string{
		"/home/user/.config/dsdiff/config.json",
		"/etc/xdg/dsdiff/config.json",
	}}

	config, err := mgr.LoadConfig()
	require.NoError(t, err)
	assert.True(t, config.Decoder.SingleTrack)
}

func TestLoadConfigFallsBackToDefaults(t *testing.T) {
	mgr := newMemoryManager(t, nil)
	mgr.xdg = &MockXDGDirs{configPaths: []string{"/nowhere/config.json"}}

	config, err := mgr.LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, mgr.GetDefaultConfig(), config)
}

func TestValidateFileLogging(t *testing.T) {
	mgr := newMemoryManager(t, nil)
	config := mgr.GetDefaultConfig()
	config.FileLogging.MaxSizeMB = -1
	config.FileLogging.MaxBackups = -1
	config.FileLogging.MaxAgeDays = -1

	err := mgr.ValidateConfig(config)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_size_mb")
	assert.Contains(t, err.Error(), "max_backups")
	assert.Contains(t, err.Error(), "max_age_days")
}

func TestApplyEnvironmentOverrides(t *testing.T) {
	t.Setenv("DSDIFF_LOG_LEVEL", "debug")
	t.Setenv("DSDIFF_DSTDEC_THREADS", "3")
	t.Setenv("DSDIFF_EDITED_MASTER", "true")
	t.Setenv("DSDIFF_SINGLE_TRACK", "1")
	t.Setenv("DSDIFF_LSBITFIRST", "true")
	t.Setenv("DSDIFF_PLAYABLE_AREA", "stereo")
	t.Setenv("DSDIFF_USE_STDIO", "false")
	t.Setenv("DSDIFF_CATALOG", "false")
	t.Setenv("DSDIFF_CATALOG_DB", "/tmp/other.db")

	mgr := newMemoryManager(t, nil)
	base := mgr.GetDefaultConfig()
	config := mgr.ApplyEnvironmentOverrides(base)

	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, 3, config.Decoder.DSTDecThreads)
	assert.True(t, config.Decoder.EditedMaster)
	assert.True(t, config.Decoder.SingleTrack)
	assert.True(t, config.Decoder.LSBitFirst)
	assert.Equal(t, PlayableAreaStereo, config.Decoder.PlayableArea)
	assert.False(t, config.Decoder.UseStdioOrDefault())
	assert.False(t, config.Catalog.Enabled)
	assert.Equal(t, "/tmp/other.db", config.Catalog.DatabasePath)

	// the input is left untouched
	assert.Equal(t, "warn", base.LogLevel)
	assert.True(t, base.Catalog.Enabled)
}

func TestApplyEnvironmentOverridesIgnoresInvalidValues(t *testing.T) {
	t.Setenv("DSDIFF_DSTDEC_THREADS", "-2")
	t.Setenv("DSDIFF_EDITED_MASTER", "maybe")
	t.Setenv("DSDIFF_PLAYABLE_AREA", "quad")
	t.Setenv("DSDIFF_USE_STDIO", "sometimes")

	mgr := newMemoryManager(t, nil)
	config := mgr.ApplyEnvironmentOverrides(mgr.GetDefaultConfig())

	assert.Equal(t, 0, config.Decoder.DSTDecThreads)
	assert.False(t, config.Decoder.EditedMaster)
	assert.Equal(t, PlayableAreaBoth, config.Decoder.PlayableArea)
	assert.True(t, config.Decoder.UseStdioOrDefault())
}

func TestParseLogLevel(t *testing.T) {
	testCases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for input, want := range testCases {
		got, err := ParseLogLevel(input)
		if err != nil {
			t.Errorf("ParseLogLevel(%q) returned error: %v", input, err)
		}
		if got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", input, got, want)
		}
	}

	if _, err := ParseLogLevel("loud"); err == nil {
		t.Error("Expected error for unknown log level")
	}
}

func TestApplyLogLevelWithWriter(t *testing.T) {
	original := slog.Default()
	defer slog.SetDefault(original)

	mgr := newMemoryManager(t, nil)
	var buf bytes.Buffer

	require.NoError(t, mgr.ApplyLogLevelWithWriter("warn", &buf))
	slog.Info("hidden")
	slog.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")

	assert.Error(t, mgr.ApplyLogLevelWithWriter("chatty", &buf))
	assert.NoError(t, mgr.ApplyLogLevelWithWriter("", &buf))
}

func TestResolvePaths(t *testing.T) {
	mgr := newMemoryManager(t, nil)
	mgr.xdg = &MockXDGDirs{}

	assert.Equal(t, "/var/log/d.log", mgr.ResolveLogFilePath("/var/log/d.log"))
	assert.Equal(t, "/tmp/test-cache/logs/dsdiff.log", mgr.ResolveLogFilePath(""))

	assert.Equal(t, "/tmp/test-cache/catalog.db", mgr.ResolveCatalogPath(nil))
	assert.Equal(t, "/tmp/test-cache/catalog.db", mgr.ResolveCatalogPath(GetDefaultCatalogConfig()))
	assert.Equal(t, "/data/c.db", mgr.ResolveCatalogPath(&CatalogConfig{DatabasePath: "/data/c.db"}))
}
