package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/findoc-analyzer/backend/internal/config"
	"github.com/findoc-analyzer/backend/internal/log"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var (
	cfg    *config.Config
	logger *slog.Logger

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
)

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "YAML config file to load (env ANALYZER_CONFIG); defaults are used when empty")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// never print messages
	rootCmd.SilenceErrors = true
	rootCmd.PersistentPreRunE = initAnalyzer

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(versionCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("analyzer failed", "err", err)
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "analyzer",
	Short:        "Financial document analysis broker",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("analyzer: %s\n", Version)
		fmt.Printf("built:    %s\n", BuildTime)
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		fmt.Printf("go:       %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit:   %s\n", s.Value)
			case "vcs.modified":
				fmt.Printf("dirty:    %s\n", s.Value)
			}
		}
	},
}

// initAnalyzer loads .env, the config file and sets up logging.
func initAnalyzer(cmd *cobra.Command, _ []string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	configPath := flagConfigFilePath
	if configPath == "" {
		configPath = os.Getenv("ANALYZER_CONFIG")
	}

	var err error
	cfg, err = config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// --verbose has a precedence over config file
	level := log.ParseLevel(cfg.Log.Level)
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger = log.New(os.Stderr, level, cfg.Log.Format)
	slog.SetDefault(logger)

	logger.Debug("configuration loaded", configAttrs(configPath, cfg)...)
	return nil
}

// configAttrs lists the settings worth logging. DSNs and broker URLs carry
// credentials and are left out.
func configAttrs(path string, cfg *config.Config) []any {
	return []any{
		"path", path,
		"addr", cfg.GetServerAddr(),
		"database_driver", cfg.Database.Driver,
		"queue_backend", cfg.Queue.Backend,
		"queue_name", cfg.Queue.Name,
		"uploads_dir", cfg.Storage.UploadsDir,
	}
}
