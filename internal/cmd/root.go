// Package cmd provides the CLI commands for Hummingbird.
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hummingbird-labs/hummingbird/internal/appdir"
	"github.com/hummingbird-labs/hummingbird/internal/config"
	"github.com/hummingbird-labs/hummingbird/internal/endpoint"
	"github.com/hummingbird-labs/hummingbird/internal/logging"
	"github.com/hummingbird-labs/hummingbird/internal/metrics"
	"github.com/hummingbird-labs/hummingbird/internal/products"
	"github.com/hummingbird-labs/hummingbird/internal/stream"
)

var (
	// Global flags
	configPath    string
	envFiles      []string
	debug         bool
	logLevel      string // --log-level flag (debug, info, warn, error)
	logFile       string
	logJSON       bool
	logComponents string

	// Loaded configuration
	cfg *config.Config
	// configResult contains metadata about where config was loaded from
	configResult *config.LoadResult
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "hummingbird",
	Short: "Hummingbird - voice-driven product discovery from the terminal",
	Long: `Hummingbird drives a product-discovery session against a
Hummingbird backend.

Pitch your product with "hummingbird chat", follow the backend's
analysis with "hummingbird logs", and list the recommendations with
"hummingbird products". "hummingbird devserver" runs a local backend
that speaks the same protocol.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for help and completion commands
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		// Priority: --log-level flag > --debug flag > default (info)
		effectiveLogLevel := "info"
		if logLevel != "" {
			effectiveLogLevel = logLevel
		} else if debug {
			effectiveLogLevel = "debug"
		}
		logCfg := logging.Config{
			Level:      effectiveLogLevel,
			JSON:       logJSON,
			Components: splitList(logComponents),
			Console:    cmd.ErrOrStderr(),
		}
		if logFile != "" {
			fileCfg := logging.DefaultFileLogConfig()
			fileCfg.Path = logFile
			logCfg.FileLog = &fileCfg
		}
		if err := logging.Initialize(logCfg); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		if err := appdir.EnsureDir(); err != nil {
			return fmt.Errorf("failed to create Hummingbird directory: %w", err)
		}

		// .env files are loaded before the config so their variables take
		// part in the environment overrides.
		if err := config.LoadDotEnv(envFiles...); err != nil {
			return err
		}

		var err error
		configResult, err = config.LoadWithFallback(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = configResult.Config
		logging.Get().Debug("Configuration loaded",
			"source", configResult.Source.String(),
			"path", configResult.SourcePath)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Close()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file path (overrides $HUMMINGBIRD_DIR/config.yaml)")
	rootCmd.PersistentFlags().StringArrayVar(&envFiles, "env-file", nil, "Environment file to load (default: .env). Can be specified multiple times.")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging (shorthand for --log-level=debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: info)")
	rootCmd.PersistentFlags().StringVarP(&logFile, "logfile", "l", "", "Log file path, rotated automatically (logs are also written to stderr)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON")
	rootCmd.PersistentFlags().StringVar(&logComponents, "log-components", "", "Comma-separated list of components to log (e.g., 'stream,products'). Empty means all components.")
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// newResolver builds the backend URL resolver from the loaded configuration.
func newResolver() (*endpoint.Resolver, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return endpoint.New(cfg.API, logging.Get())
}

// newStreamClient builds a log stream client tuned by the stream section.
func newStreamClient(r stream.URLResolver, m *metrics.Metrics, cb stream.Callbacks) *stream.Client {
	return stream.New(r,
		stream.WithMetrics(m),
		stream.WithBackoff(stream.Backoff{
			Base:        cfg.Stream.BaseDelay,
			MaxAttempts: cfg.Stream.MaxRetryAttempts,
		}),
		stream.WithConnectTimeout(cfg.Stream.ConnectTimeout),
		stream.WithCallbacks(cb),
	)
}

// newProductsClient builds a recommendation client tuned by the products section.
func newProductsClient(r products.URLResolver, m *metrics.Metrics) *products.Client {
	return products.New(r,
		products.WithTimeout(cfg.Products.Timeout),
		products.WithMetrics(m),
	)
}

// historyFile returns the chat history path, or "" when the data directory
// cannot be resolved.
func historyFile() string {
	path, err := appdir.HistoryPath()
	if err != nil {
		return ""
	}
	return path
}
