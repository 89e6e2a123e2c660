package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/hostmirror/hostmirror/internal/config"
	"github.com/hostmirror/hostmirror/internal/debrid"
	"github.com/hostmirror/hostmirror/internal/store"
	"github.com/hostmirror/hostmirror/internal/sync"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagDBPath     string
	flagAccount    string
	flagVerbose    bool
	flagQuiet      bool
)

// httpClientTimeout bounds every raw HTTP call so a hung connection never
// blocks a CLI command indefinitely.
const httpClientTimeout = 45 * time.Second

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// newRootCmd builds the fully-assembled root command. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "hostmirror",
		Short:   "Local metadata mirror for your file-host account",
		Long:    "hostmirror links a file-host account via device-code login and keeps a local SQLite mirror of the account's remote files in sync.",
		Version: version,
		// Silence Cobra's default error/usage printing; main() handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "mirror database path")
	cmd.PersistentFlags().StringVar(&flagAccount, "account", "default", "account identifier")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadHolder resolves the config path, loads the file (or defaults), and
// wraps it in a Holder for runtime updates.
func loadHolder(logger *slog.Logger) (*config.Holder, error) {
	path := flagConfigPath
	if path == "" {
		var err error

		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load(path, logger)
	if err != nil {
		return nil, err
	}

	return config.NewHolder(cfg, path), nil
}

// buildLogger creates an slog.Logger from config and CLI flags. CLI flags
// always win over the config file. The text handler is used on terminals,
// JSON elsewhere, unless the format is pinned.
func buildLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo

	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	useJSON := cfg.Format == "json" ||
		(cfg.Format == "auto" && !isatty.IsTerminal(os.Stderr.Fd()))
	if useJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// openStore opens the mirror database, creating the data directory on
// first run.
func openStore(logger *slog.Logger) (*store.Store, error) {
	path := flagDBPath
	if path == "" {
		dataDir, err := config.DefaultDataDir()
		if err != nil {
			return nil, err
		}

		if err := os.MkdirAll(dataDir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}

		path = filepath.Join(dataDir, "mirror.db")
	}

	return store.Open(path, logger)
}

// services is the assembled dependency graph shared by the sync, status,
// and serve commands.
type services struct {
	holder  *config.Holder
	store   *store.Store
	service *debrid.Service
	engine  *sync.Engine
	logger  *slog.Logger
}

// buildServices is the composition root: every shared component is
// constructed here, explicitly, and handed down.
func buildServices() (*services, error) {
	bootstrapLogger := slog.Default()

	holder, err := loadHolder(bootstrapLogger)
	if err != nil {
		return nil, err
	}

	logger := buildLogger(holder.Config().Logging)

	st, err := openStore(logger)
	if err != nil {
		return nil, err
	}

	netCfg := holder.Config().Network

	limiter := debrid.NewRateLimiter(debrid.RateLimitConfig{
		RequestsPerWindow: netCfg.RateLimitPerMinute,
		Window:            time.Minute,
		Burst:             netCfg.RateLimitBurst,
	}, logger)

	creds := debrid.NewCredentialManager(st, flagAccount, netCfg.OAuthBase, defaultHTTPClient(), logger)

	client := debrid.NewClient(debrid.ClientConfig{
		BaseURL: netCfg.APIBase,
		Timeout: time.Duration(netCfg.RequestTimeoutMs) * time.Millisecond,
		Jitter:  true,
	}, defaultHTTPClient(), limiter, creds, logger)

	service := debrid.NewService(client, logger)

	engine := sync.NewEngine(service, st, func() sync.Config {
		c := holder.Config().Sync

		return sync.Config{
			BatchSize:                c.BatchSize,
			MaxRetries:               c.MaxRetries,
			EnableDuplicateDetection: c.EnableDuplicateDetection,
			Timeout:                  time.Duration(c.SyncTimeoutMs) * time.Millisecond,
			BaseDelay:                time.Second,
			MaxDelay:                 30 * time.Second,
		}
	}, logger)

	return &services{
		holder:  holder,
		store:   st,
		service: service,
		engine:  engine,
		logger:  logger,
	}, nil
}

// statusf prints user-facing output unless --quiet is set.
func statusf(format string, args ...any) {
	if flagQuiet {
		return
	}

	fmt.Printf(format, args...)
}
