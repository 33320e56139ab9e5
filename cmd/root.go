package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/energysched/app"
	"github.com/kilianp07/energysched/config"
	"github.com/kilianp07/energysched/infra/logger"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "energysched",
	Short: "Tariff-aware scheduler for myenergi zappi and eddi devices",
	RunE:  run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file")
}

// Execute runs the CLI.
func Execute() error { return rootCmd.Execute() }

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	return svc.Run(ctx)
}

// deviceName returns name, or the only configured device when name is empty.
func deviceName(cfg *config.Config, name string) (string, error) {
	if name != "" {
		if _, ok := cfg.Device(name); !ok {
			return "", fmt.Errorf("device %q is not configured", name)
		}
		return name, nil
	}
	if len(cfg.Devices) != 1 {
		return "", fmt.Errorf("%d devices configured, choose one with --device", len(cfg.Devices))
	}
	return cfg.Devices[0].Name, nil
}
