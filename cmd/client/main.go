package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/fsnotify/fsnotify"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/studiosync/internal/client"
	"github.com/openmined/studiosync/internal/client/config"
	"github.com/openmined/studiosync/internal/utils"
	"github.com/openmined/studiosync/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const envPrefix = "STUDIOSYNC"

var home, _ = os.UserHomeDir()

var rootCmd = &cobra.Command{
	Use:   "studiosync",
	Short: "Keeps recipes, plugins and libraries in sync with the studio",
	Long: `studiosync runs in the background and reconciles the recipes, plugins and
libraries checked out under your projects with the studio they came from.
Conflicting edits are never merged; list them with "studiosync status".`,
	Version: version.Detailed(),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		// all good now, show header
		cmd.SilenceUsage = true
		showHeader()

		closeLog, err := setupFileLogging(cfg)
		if err != nil {
			return err
		}
		defer closeLog()

		slog.Info("studiosync", "version", version.Version, "revision", version.Revision, "build", version.BuildDate)
		slog.Info("daemon using config", "path", cfg.Path)

		daemon, err := client.NewClientDaemon(cfg)
		if err != nil {
			return err
		}

		watchConfig(v, daemon)

		defer slog.Info("Bye!")
		if err := daemon.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("daemon start", "error", err)
			return err
		}
		return nil
	},
}

func init() {
	addDaemonFlags(rootCmd)
}

func addDaemonFlags(cmd *cobra.Command) {
	cmd.Flags().SortFlags = false
	cmd.Flags().StringP("state-dir", "d", config.DefaultStateDir, "directory for logs and the daemon lock")
	cmd.Flags().BoolP("background-sync", "b", false, "run passes on a timer, not only on file changes")
	cmd.Flags().StringP("http-addr", "a", config.DefaultControlPlaneAddr, "address to bind the local control plane")
	cmd.Flags().StringP("http-token", "t", "", "bearer token for the local control plane")
	cmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "studiosync config file")
}

func main() {
	// until the config is known, only log to the terminal
	slog.SetDefault(slog.New(newTerminalHandler(os.Stderr)))

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", red.Render("error:"), err)
		os.Exit(1)
	}
}

func newTerminalHandler(w *os.File) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(w.Fd()),
	})
}

// setupFileLogging adds a rotated JSON log under the state dir next to the
// terminal output, and routes the standard library logger into slog.
func setupFileLogging(cfg *config.Config) (func(), error) {
	if err := utils.EnsureDir(cfg.LogsDir()); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	rotator := &lumberjack.Logger{
		Filename:   cfg.LogFilePath(),
		MaxSize:    20, // MB
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}
	fileHandler := slog.NewJSONHandler(rotator, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})

	logger := slog.New(utils.NewMultiLogHandler(newTerminalHandler(os.Stderr), fileHandler))
	slog.SetDefault(logger)

	interceptor := utils.NewLogInterceptor(logger, slog.LevelInfo)
	log.SetFlags(0)
	log.SetOutput(interceptor)

	return func() {
		_ = interceptor.Close()
		log.SetOutput(os.Stderr)
		_ = rotator.Close()
	}, nil
}

// loadConfig layers defaults, the config file, STUDIOSYNC_* env vars and
// flags, in increasing priority.
func loadConfig(cmd *cobra.Command) (*viper.Viper, *config.Config, error) {
	v := viper.New()

	configPath := resolveConfigPath(cmd)
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.SetDefault("state_dir", config.DefaultStateDir)
	v.SetDefault("background_sync", false)
	v.SetDefault("polling_interval", config.DefaultPollingInterval)
	v.SetDefault("initial_delay", config.DefaultInitialDelay)
	v.SetDefault("control_plane.addr", config.DefaultControlPlaneAddr)
	v.SetDefault("control_plane.token", "")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return nil, nil, fmt.Errorf("config read '%s': %w", configPath, err)
		}
	}

	// Set up environment variables
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind flags to viper
	bindFlag(v, cmd, "state_dir", "state-dir")
	bindFlag(v, cmd, "background_sync", "background-sync")
	bindFlag(v, cmd, "control_plane.addr", "http-addr")
	bindFlag(v, cmd, "control_plane.token", "http-token")

	cfg, err := decodeConfig(v)
	if err != nil {
		return nil, nil, err
	}
	cfg.Path = configPath
	return v, cfg, nil
}

func decodeConfig(v *viper.Viper) (*config.Config, error) {
	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config decode: %w", err)
	}
	cfg.Path = v.ConfigFileUsed()
	return &cfg, nil
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if f := cmd.Flags().Lookup(flag); f != nil {
		_ = v.BindPFlag(key, f)
	}
}

// watchConfig reapplies the scheduler and project settings whenever the
// config file changes.
func watchConfig(v *viper.Viper, daemon *client.ClientDaemon) {
	if v.ConfigFileUsed() == "" || !utils.FileExists(v.ConfigFileUsed()) {
		return
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decodeConfig(v)
		if err == nil {
			err = cfg.Validate()
		}
		if err == nil {
			err = daemon.Reconfigure(cfg)
		}
		if err != nil {
			slog.Error("config reload", "path", e.Name, "error", err)
			return
		}
		slog.Info("config reloaded", "path", e.Name)
	})
	v.WatchConfig()
}

func showHeader() {
	color.New(color.FgHiCyan, color.Bold).
		Println(version.ShortWithApp())
}
