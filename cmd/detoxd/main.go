// Package main is the CLI entry point for detoxd.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/detox/internal/api"
	"github.com/eliteGoblin/focusd/detox/internal/config"
	"github.com/eliteGoblin/focusd/detox/internal/daemon"
	"github.com/eliteGoblin/focusd/detox/internal/infra"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "detoxd",
	Short: "Digital detox daemon - locks the device for a chosen time",
	Long: `detoxd runs timed detox sessions. While a session is active every app
outside the whitelist is pushed back to the lock screen. A small budget of
emergency unlocks ends a session early.

Run 'detoxd run' (or 'detoxd launch') first; the other commands talk to the
running daemon over its local control API.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var (
	configPath string
	dataDir    string
	controlURL string
	jsonOutput bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (default <data-dir>/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default ~/.detoxd, /var/lib/detoxd as root)")
	rootCmd.PersistentFlags().StringVar(&controlURL, "addr", "", "Control API address (default from the daemon registry)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print machine-readable JSON")

	rootCmd.AddCommand(runCmd, launchCmd, versionCmd)
	rootCmd.AddCommand(sessionCommands()...)
	rootCmd.AddCommand(whitelistCmd(), scheduleCmd(), purchaseCmd(), noticesCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the daemon in the foreground",
	Long: `Runs the detox engine: session countdown, foreground monitoring,
schedule trigger, persistence and the local control API. Stops on SIGINT/SIGTERM;
an active session is saved and resumes on the next start.`,
	RunE: runDaemon,
}

var launchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Start the daemon in the background",
	RunE:  runLaunch,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

// resolvePaths applies --data-dir over the detected default.
func resolvePaths() infra.DataPaths {
	paths := infra.DetectPaths()
	if dataDir != "" {
		paths = infra.PathsFor(paths.Mode, dataDir)
	}
	return paths
}

// loadConfig reads --config, falling back to <data-dir>/config.yaml and then defaults.
func loadConfig(paths infra.DataPaths) (*config.Config, error) {
	path := configPath
	if path == "" {
		path = paths.ConfigFile
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func runDaemon(cmd *cobra.Command, args []string) error {
	paths := resolvePaths()
	cfg, err := loadConfig(paths)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Storage.DataDir != "" && dataDir == "" {
		paths = infra.PathsFor(paths.Mode, cfg.Storage.DataDir)
	}
	if err := os.MkdirAll(paths.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	logPath := cfg.Log.Path
	if logPath == "" {
		logPath = paths.LogFile
	}
	logger := createLogger(logPath, cfg.Log.Level)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	rt, err := daemon.Build(ctx, daemon.Options{
		Config:  cfg,
		Paths:   paths,
		Version: Version,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to start engine", zap.Error(err))
		return err
	}
	defer func() { _ = rt.Engine.Close() }()

	logger.Info("detoxd starting",
		zap.String("version", Version),
		zap.String("mode", paths.Mode.String()),
		zap.String("data_dir", paths.DataDir),
		zap.String("storage", cfg.Storage.Backend),
		zap.String("addr", cfg.Server.Addr()))

	if err := rt.Engine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runLaunch(cmd *cobra.Command, args []string) error {
	paths := resolvePaths()
	registry := infra.NewFileRegistry(paths.RegistryFile, infra.NewProcessManager())
	if alive, _ := registry.IsAlive(); alive {
		fmt.Println("detoxd is already running")
		return nil
	}

	var passthrough []string
	if configPath != "" {
		passthrough = append(passthrough, "--config", configPath)
	}
	if dataDir != "" {
		passthrough = append(passthrough, "--data-dir", dataDir)
	}
	pid, err := daemon.SpawnDetached("", passthrough...)
	if err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Wait for the control API to come up.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		client, err := newClientFor(paths)
		if err == nil && client.Health(cmd.Context()) == nil {
			fmt.Printf("detoxd started (pid %d)\n", pid)
			return nil
		}
		time.Sleep(200 * time.Millisecond)
	}
	return fmt.Errorf("daemon (pid %d) did not become ready; see %s", pid, paths.LogFile)
}

// newClient returns a control API client for the running daemon.
func newClient() (*api.Client, error) {
	return newClientFor(resolvePaths())
}

func newClientFor(paths infra.DataPaths) (*api.Client, error) {
	if controlURL != "" {
		return api.NewClient(controlURL, nil), nil
	}
	registry := infra.NewFileRegistry(paths.RegistryFile, infra.NewProcessManager())
	entry, err := registry.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read daemon registry: %w", err)
	}
	if entry != nil && entry.ControlAddr != "" {
		return api.NewClient(entry.ControlAddr, nil), nil
	}
	cfg, err := loadConfig(paths)
	if err != nil {
		return nil, err
	}
	return api.NewClient(cfg.Server.Addr(), nil), nil
}

func createLogger(path, level string) *zap.Logger {
	logConfig := zap.NewProductionConfig()
	logConfig.OutputPaths = []string{path}
	logConfig.ErrorOutputPaths = []string{path}
	logConfig.EncoderConfig.TimeKey = "time"
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		logConfig.Level = zap.NewAtomicLevelAt(lvl)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		logger, _ := zap.NewProduction()
		return logger
	}
	logger, err := logConfig.Build()
	if err != nil {
		// Fallback to stdout if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("detoxd %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
