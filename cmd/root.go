// Package cmd implements the otw command line: the dispatch service itself
// plus operator tools that work against the same configuration.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mozocode/On-The-Way-Rebuild/app"
	"github.com/mozocode/On-The-Way-Rebuild/config"
	"github.com/mozocode/On-The-Way-Rebuild/infra/logger"
)

var (
	cfgPath string
	watch   bool
)

var rootCmd = &cobra.Command{
	Use:          "otw",
	Short:        "On The Way hero dispatch service",
	SilenceUsage: true,
	RunE:         serve,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatch service",
	RunE:  serve,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
	serveCmd.Flags().BoolVar(&watch, "watch", true, "reload the dispatch section when the config file changes")
	rootCmd.Flags().AddFlagSet(serveCmd.Flags())
	rootCmd.AddCommand(serveCmd)
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	app.ConfigureLogging(cfg.Log)
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.New("main")
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			log.Errorf("service close: %v", err)
		}
	}()
	if watch {
		unwatch, err := config.Watch(cfgPath, logger.New("config"), svc.ApplyConfig)
		if err != nil {
			log.Warnf("config watch disabled: %v", err)
		} else {
			defer func() { _ = unwatch() }()
		}
	}
	return svc.Run(ctx)
}
