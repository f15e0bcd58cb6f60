package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"dsdiff.click/internal/catalog"
	"dsdiff.click/internal/config"
	"dsdiff.click/internal/decoder"
	"dsdiff.click/internal/fs"
)

const Version = "0.4.0"

// CLI represents the command-line interface
type CLI struct {
	rootCmd          *cobra.Command
	fs               afero.Fs
	configManager    *config.ConfigManager
	config           *config.Config
	plugin           *decoder.Plugin
	registry         *decoder.Registry
	catalog          *catalog.Store
	terminalDetector TerminalDetector
}

// NewCLI creates a new CLI instance
func NewCLI() *CLI {
	slog.Debug("creating new CLI instance")

	rootCmd := &cobra.Command{
		Use:   "dsdiff",
		Short: "DSDIFF/SACD container decoder",
		Long: `dsdiff lists the tracks stored inside DSDIFF (.dff) containers and streams
any one of them as DSD, decompressing DST frames on the way.

Tracks inside a container are addressed as virtual files below it:
  album.dff/2_AUDIO__TRACK003.dff   third two-channel track
  album.dff/M_AUDIO__TRACK001.dff   first multichannel track`,
		SilenceUsage:      true,
		PersistentPreRunE: prepareE,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handled, err := handleVersionFlag(cmd); handled {
				return err
			}
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newScanCommand())
	rootCmd.AddCommand(newInfoCommand())
	rootCmd.AddCommand(newDecodeCommand())
	rootCmd.AddCommand(newCatalogCommand())

	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	return &CLI{
		rootCmd: rootCmd,
		fs:      fs.NewDefaultFactory().Production(),
	}
}

type contextKey string

const cliKey contextKey = "cli"

// contextWithCLI stores CLI instance in context for command handlers
func contextWithCLI(cli *CLI) context.Context {
	return context.WithValue(context.Background(), cliKey, cli)
}

// cliFromContext extracts CLI instance from context
func cliFromContext(ctx context.Context) *CLI {
	if ctx == nil {
		return nil
	}
	if cli, ok := ctx.Value(cliKey).(*CLI); ok {
		return cli
	}
	return nil
}

// handleVersionFlag checks and handles the version flag
// Returns true if version was handled and processing should stop
func handleVersionFlag(cmd *cobra.Command) (bool, error) {
	version, _ := cmd.Flags().GetBool("version")
	if version {
		printVersion(cmd.OutOrStdout())
		return true, nil
	}
	return false, nil
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "dsdiff version %s\nDSDIFF/SACD container decoder\n", Version)
}

// prepareE loads configuration, configures logging and builds the decoder
// before any subcommand runs
func prepareE(cmd *cobra.Command, args []string) error {
	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	cfg, err := loadAndValidateConfig(cmd, cli)
	if err != nil {
		return err
	}
	cli.config = cfg

	setupLogging(cfg, cmd.ErrOrStderr())
	cli.initializeDecoder()
	return nil
}

// loadAndValidateConfig loads configuration from flags and files, applies overrides, and validates
func loadAndValidateConfig(cmd *cobra.Command, cli *CLI) (*config.Config, error) {
	cli.initializeConfigManager()

	configFile, _ := cmd.Flags().GetString("config")
	logLevel, _ := cmd.Flags().GetString("log-level")

	var cfg *config.Config
	var err error
	if configFile != "" {
		cfg, err = cli.configManager.LoadFromFile(configFile)
		if err != nil {
			cmd.PrintErrf("Error loading config: %v\n", err)
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	} else {
		cfg, err = cli.configManager.LoadConfig()
		if err != nil {
			cmd.PrintErrf("Error loading config: %v\n", err)
			slog.Error("config load failed", "error", err)
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	cfg = cli.configManager.ApplyEnvironmentOverrides(cfg)

	if logLevel != "" {
		cfg.LogLevel = logLevel
		slog.Debug("log level override applied", "value", logLevel)
	}

	if err := cli.configManager.ValidateConfig(cfg); err != nil {
		cmd.PrintErrf("Error: invalid configuration: %v\n", err)
		slog.Error("config validation failed", "error", err)
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Run executes the CLI with the given arguments and I/O streams
func (c *CLI) Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	slog.Debug("CLI run started", "args", args)

	// answer version requests without loading anything
	if len(args) > 1 && (args[1] == "--version" || args[1] == "-v") {
		printVersion(stdout)
		return 0
	}

	defer c.close()

	if len(args) > 0 {
		c.rootCmd.SetArgs(args[1:])
	} else {
		c.rootCmd.SetArgs(nil)
	}
	c.rootCmd.SetIn(stdin)
	c.rootCmd.SetOut(stdout)
	c.rootCmd.SetErr(stderr)
	c.rootCmd.SetContext(contextWithCLI(c))

	if err := c.rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		return 1
	}

	return 0
}

func (c *CLI) close() {
	if c.plugin != nil {
		if err := c.plugin.Close(); err != nil {
			slog.Error("error closing decoder", "error", err)
		}
		c.plugin = nil
	}
	if c.catalog != nil {
		if err := c.catalog.Close(); err != nil {
			slog.Error("error closing catalog", "error", err)
		}
		c.catalog = nil
	}
}

// initializeConfigManager creates the config manager on the CLI filesystem
func (c *CLI) initializeConfigManager() {
	if c.configManager == nil {
		c.configManager = config.NewConfigManagerWithFilesystem(c.fs)
	}
}

// initializeDecoder builds the decoder plugin and its registry from the loaded config
func (c *CLI) initializeDecoder() {
	if c.plugin != nil {
		return
	}

	opts := decoder.OptionsFromConfig(c.config.Decoder)
	c.plugin = decoder.NewPlugin(opts, c.fs)
	c.registry = decoder.NewRegistry()
	c.registry.Register(c.plugin)

	if c.terminalDetector == nil {
		c.terminalDetector = &DefaultTerminalDetector{}
	}
}

// openCatalog opens the catalog database when the catalog is enabled. It
// returns nil without error when the catalog is disabled.
func (c *CLI) openCatalog() (*catalog.Store, error) {
	if c.catalog != nil {
		return c.catalog, nil
	}
	if c.config == nil || c.config.Catalog == nil || !c.config.Catalog.Enabled {
		slog.Debug("catalog disabled, skipping database initialization")
		return nil, nil
	}

	dbPath := c.configManager.ResolveCatalogPath(c.config.Catalog)
	store, err := catalog.Open(dbPath)
	if err != nil {
		slog.Error("failed to open catalog", "path", dbPath, "error", err)
		return nil, err
	}

	c.catalog = store
	slog.Info("catalog opened", "path", dbPath)
	return store, nil
}

// setupLogging configures slog for stderr at the configured level and, when
// enabled, a rotating log file that receives everything down to debug
func setupLogging(cfg *config.Config, stderrWriter io.Writer) {
	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(stderrWriter, &slog.HandlerOptions{Level: level}),
	}

	if cfg.FileLogging != nil && cfg.FileLogging.Enabled {
		configManager := config.NewConfigManager()
		logFilePath := configManager.ResolveLogFilePath(cfg.FileLogging.Filename)

		logDir := filepath.Dir(logFilePath)
		if err := os.MkdirAll(logDir, 0755); err != nil {
			slog.Error("failed to create log directory", "path", logDir, "error", err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   logFilePath,
				MaxSize:    cfg.FileLogging.MaxSizeMB,
				MaxBackups: cfg.FileLogging.MaxBackups,
				MaxAge:     cfg.FileLogging.MaxAgeDays,
				Compress:   cfg.FileLogging.Compress,
			}
			handlers = append(handlers, slog.NewTextHandler(fileWriter, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}))
		}
	}

	var handler slog.Handler = handlers[0]
	if len(handlers) > 1 {
		handler = NewMultiLevelHandler(handlers...)
	}
	slog.SetDefault(slog.New(handler))

	slog.Debug("logging setup completed",
		"level", level.String(),
		"handlers", len(handlers),
		"file_enabled", cfg.FileLogging != nil && cfg.FileLogging.Enabled)
}
