package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/snow-ghost/probe/app"
	"github.com/snow-ghost/probe/config"
)

var (
	configPath string
	seedFlag   int64
	apiKeyFlag string
	dirFlag    string
)

var rootCmd = &cobra.Command{
	Use:           "probe",
	Short:         "Discover, exercise and review the callables of a source tree",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	rootCmd.PersistentFlags().Int64Var(&seedFlag, "seed", 0, "seed for generated values")
	rootCmd.PersistentFlags().StringVar(&apiKeyFlag, "api-key", "", "inference API key (enables the external generator)")
	rootCmd.PersistentFlags().StringVar(&dirFlag, "dir", "", "source root to discover")

	rootCmd.AddCommand(serveCmd, shellCmd, discoverCmd, batchCmd)
}

// loadApp reads the configuration, applies command line overrides and builds the app.
func loadApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = seedFlag
	}
	if flags.Changed("api-key") {
		cfg.Inference.APIKey = apiKeyFlag
	}
	if flags.Changed("dir") {
		cfg.SourceRoot = dirFlag
	}
	if flags.Changed("addr") {
		cfg.HTTPAddr = addrFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return app.New(cfg)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
