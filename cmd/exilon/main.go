package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/app"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/config"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/logging"
	"github.com/Exilon-Studios/exiloncms.fr-sub002/internal/plugin"
)

var (
	version    = "dev"
	configPath string
	verbose    bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "exilon",
		Short:         "Administer an ExilonCMS installation",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv(config.PathEnv), "YAML configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(
		newPluginsCmd(),
		newTokenCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

// loadApp builds the host in CLI mode so plugin migrations get registered.
func loadApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		return nil, err
	}
	logCfg := cfg.Log
	logCfg.Format = "console"
	if verbose {
		logCfg.Level = "debug"
	} else {
		logCfg.Level = "warn"
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}

	a, err := app.New(ctx, cfg, logger.With(zap.String("cmd", "exilon")), app.WithMode(plugin.ModeCLI))
	if err != nil {
		return nil, err
	}
	if err := a.Manager.Load(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("load plugins: %w", err)
	}
	return a, nil
}
