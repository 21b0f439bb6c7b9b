package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/on-the-ground/effect_ive_ssr/effects"
	"github.com/on-the-ground/effect_ive_ssr/effects/log"
	"github.com/on-the-ground/effect_ive_ssr/internal/demo"
	"github.com/on-the-ground/effect_ive_ssr/registry"
	"github.com/on-the-ground/effect_ive_ssr/router"
	"github.com/on-the-ground/effect_ive_ssr/ssr"
)

type rootOptions struct {
	ConfigPath string
	Timeout    float64
	SharedKey  string
	LogLevel   string
	Format     string
	Path       string
	User       string
}

func newRootCommand(out io.Writer) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ssrrun",
		Short: "Run one SSR pass over the demo modules",
		Long: `ssrrun renders the demo router and catalog modules for one request path
and prints the captured state and retry signals.

Example:
  ssrrun --path /audio --user ada
  ssrrun --path / --format script --timeout 0.5`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts, cmd.Flags().Changed, out)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML run config")
	cmd.Flags().Float64Var(&opts.Timeout, "timeout", 0, "run deadline in seconds (overrides config)")
	cmd.Flags().StringVar(&opts.SharedKey, "shared-key", "", "reuse module stores under this key (overrides config)")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "warn", "log level: debug, info, warn, error")
	cmd.Flags().StringVar(&opts.Format, "format", "json", "output format: json or script")
	cmd.Flags().StringVar(&opts.Path, "path", "/", "request path to render")
	cmd.Flags().StringVar(&opts.User, "user", "", "signed-in user, if any")

	return cmd
}

func run(ctx context.Context, opts *rootOptions, changed func(string) bool, out io.Writer) error {
	if opts.Format != "json" && opts.Format != "script" {
		return fmt.Errorf("unknown format %q", opts.Format)
	}

	cfg, err := loadConfig(opts, changed)
	if err != nil {
		return err
	}

	logger, err := log.NewLogger(opts.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, endOfLogHandler := log.WithZapEffectHandler(ctx, 64, logger)
	defer endOfLogHandler()

	reg := registry.New(effects.Provider{Token: demo.SourceToken, Value: demo.NewMemorySource()})
	coordinator := ssr.New(reg, ssr.WithStoreContext(ctx))
	req := demo.Request{
		Path:    opts.Path,
		User:    opts.User,
		History: router.NewMemoryHistory(opts.Path),
	}

	_, res, err := coordinator.RunAndWait(ctx, req, demo.Descriptors(), cfg)
	if cfg.SharedKey != "" {
		if tdErr := coordinator.SharedCache().Teardown(cfg.SharedKey); tdErr != nil {
			log.LogEff(ctx, log.LogWarn, "failed to tear down shared stores", map[string]interface{}{
				"error": tdErr,
			})
		}
	}
	if err != nil {
		return fmt.Errorf("ssr run failed: %w", err)
	}

	return write(out, opts.Format, res)
}

// loadConfig reads the config file, then applies the flags that were set.
func loadConfig(opts *rootOptions, changed func(string) bool) (ssr.Config, error) {
	var cfg ssr.Config
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = ssr.LoadConfigFile(opts.ConfigPath); err != nil {
			return ssr.Config{}, err
		}
	}
	if changed("timeout") {
		cfg.TimeoutSeconds = opts.Timeout
	}
	if changed("shared-key") {
		cfg.SharedKey = opts.SharedKey
	}
	return cfg, nil
}

func write(out io.Writer, format string, res *ssr.Result) error {
	if format == "script" {
		if err := res.WriteScript(out); err != nil {
			return err
		}
		_, err := fmt.Fprintln(out)
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
