package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"

	"github.com/telekom/authy/pkg/api"
	"github.com/telekom/authy/pkg/config"
	"github.com/telekom/authy/pkg/system"
	"github.com/telekom/authy/pkg/telemetry"
	"github.com/telekom/authy/pkg/version"
)

// Config holds the command line settings of `authy serve`.
type Config struct {
	Debug      bool
	ConfigPath string
}

// Options configures the command tree.
type Options struct {
	Out io.Writer
	// NewLogger builds the process logger. Defaults to system.NewLogger.
	NewLogger func(debug bool) (*zap.Logger, error)
}

// NewRootCommand returns the authy command with its serve and version subcommands.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.NewLogger == nil {
		opts.NewLogger = system.NewLogger
	}

	root := &cobra.Command{
		Use:           "authy",
		Short:         "Authenticating reverse proxy in front of a protected website",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(opts.Out)
	root.SetErr(opts.Out)
	root.AddCommand(newServeCommand(opts), newVersionCommand(opts))
	return root
}

func newServeCommand(opts Options) *cobra.Command {
	cfg := &Config{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Serve(ctx, *cfg, opts.NewLogger)
		},
	}
	cmd.Flags().BoolVar(&cfg.Debug, "debug", getEnvBool("AUTHY_DEBUG", false), "Enable debug level logging")
	cmd.Flags().StringVar(&cfg.ConfigPath, "config", getEnvString(config.ConfigPathEnv, ""),
		"Path to the authy configuration file (default "+config.DefaultConfigPath+")")
	return cmd
}

// Serve loads the configuration and runs the gateway until ctx is done.
func Serve(ctx context.Context, c Config, newLogger func(bool) (*zap.Logger, error)) error {
	zl, err := newLogger(c.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()
	log.Infow("Starting authy", version.GetBuildInfo().LogFields()...)
	c.Print(log)

	cfg, err := config.Load(c.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	log.Infow("Configuration loaded",
		"listenAddress", cfg.Server.ListenAddress,
		"upstream", cfg.Upstream.URL,
		"behindProxy", cfg.Server.BehindProxy,
		"jwksCache", cfg.IdentityProvider.JWKSCache,
		"revocation", cfg.RevocationEnabled(),
		"audit", cfg.Audit.Enabled,
		"rateLimit", cfg.RateLimit.Enabled,
		"tracing", cfg.Tracing.Enabled)

	tp, shutdownTracing, err := telemetry.Init(ctx, telemetry.Options{
		Enabled:        cfg.Tracing.Enabled,
		ServiceVersion: version.Version,
		Exporter:       cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Logger:         log,
	})
	if err != nil {
		return fmt.Errorf("error initializing tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warnw("Failed to flush traces", "error", err)
		}
	}()

	server, err := api.NewServer(zl, cfg, c.Debug, api.WithTracerProvider(tp))
	if err != nil {
		return err
	}
	defer server.Close()

	if err := server.Listen(ctx); err != nil {
		return err
	}
	log.Info("Shut down")
	return nil
}

func newVersionCommand(opts Options) *cobra.Command {
	var outputFormat string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show authy version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := version.GetBuildInfo()
			switch outputFormat {
			case "json":
				encoder := json.NewEncoder(opts.Out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(info)
			case "yaml":
				data, err := yaml.Marshal(info)
				if err != nil {
					return fmt.Errorf("failed to marshal to YAML: %w", err)
				}
				_, _ = fmt.Fprint(opts.Out, string(data))
				return nil
			case "":
				_, _ = fmt.Fprintln(opts.Out, info.String())
				return nil
			default:
				return fmt.Errorf("unknown output format %q", outputFormat)
			}
		},
	}
	cmd.Flags().StringVarP(&outputFormat, "output", "o", "", "Output format: json, yaml")
	return cmd
}

// Print logs the command line settings.
func (c Config) Print(log *zap.SugaredLogger) {
	log.Infow("CLI Configuration",
		"debug", c.Debug,
		"config_path", c.ConfigPath,
	)
}

// getEnvString returns the value of an environment variable or the provided default if not set.
func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

// getEnvBool returns the value of an environment variable as a bool, or the provided default if not set.
// Valid true values are "true", "1", "yes" (case-insensitive).
func getEnvBool(key string, defaultVal bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(val) {
		case "true", "1", "yes":
			return true
		case "false", "0", "no":
			return false
		}
	}
	return defaultVal
}
