package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"ai-productivity-app/assistant/pkg/config"
	"ai-productivity-app/assistant/pkg/di"
	"ai-productivity-app/assistant/pkg/logger"
	"ai-productivity-app/assistant/shared/observability"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	verbose bool
	baseURL string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "assistantctl",
	Short: "Command line client for the assistant conversation API",
	Long: `assistantctl sends prompts with attachments, pages through conversation history,
downloads attachments into the local cache and records feedback on replies.`,
	Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&baseURL, "api", "", "conversation API base URL (overrides API_BASE_URL)")
}

// env is what every subcommand gets: a signal-aware context and a wired container
type env struct {
	ctx       context.Context
	container *di.Container
	out       io.Writer
}

// withContainer wires the client container from the environment, runs fn and tears it down
func withContainer(cmd *cobra.Command, opts di.Options, fn func(rt *env) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.New()
	if baseURL != "" {
		cfg.API.BaseURL = strings.TrimRight(baseURL, "/")
		if os.Getenv("UPLOAD_ENDPOINT") == "" {
			cfg.Upload.Endpoint = cfg.API.BaseURL + "/files/upload"
		}
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	if !verbose && logCfg.Level == string(logger.LevelInfo) {
		logCfg.Level = string(logger.LevelWarn)
	}
	if verbose {
		logCfg.Level = string(logger.LevelDebug)
	}
	logCfg.JSON = cfg.Logging.Format != "text"
	log := logger.New(logCfg)
	logger.SetGlobal(log)

	if cfg.Tracing.Enabled {
		shutdown, err := setupTracing(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				log.LogError(err, "Failed to flush spans")
			}
		}()
	}

	container, err := di.New(ctx, cfg, log, opts)
	if err != nil {
		return fmt.Errorf("wire client: %w", err)
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.LogError(err, "Failed to close client")
		}
	}()

	return fn(&env{ctx: ctx, container: container, out: cmd.OutOrStdout()})
}

func setupTracing(cfg *config.Config) (observability.Shutdown, error) {
	if cfg.Tracing.Output == "" {
		return observability.SetupTracing("assistantctl", nil)
	}
	f, err := os.OpenFile(cfg.Tracing.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open trace output: %w", err)
	}
	shutdown, err := observability.SetupTracing("assistantctl", f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return func(ctx context.Context) error {
		defer f.Close()
		return shutdown(ctx)
	}, nil
}
