package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/energysched/app"
	"github.com/kilianp07/energysched/config"
	coremetrics "github.com/kilianp07/energysched/core/metrics"
	"github.com/kilianp07/energysched/core/scheduler"
)

var clearDevice string

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Switch off the charge and boost schedules of a device",
	RunE:  clearSchedules,
}

func init() {
	clearCmd.Flags().StringVarP(&clearDevice, "device", "d", "", "device name")
	rootCmd.AddCommand(clearCmd)
}

func clearSchedules(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	name, err := deviceName(cfg, clearDevice)
	if err != nil {
		return err
	}
	svc, err := app.New(ctx, cfg, app.WithSink(coremetrics.NopSink{}))
	if err != nil {
		return err
	}
	defer svc.Close()
	sched, err := svc.Scheduler(name)
	if err != nil {
		return err
	}
	trs, err := sched.ClearSchedule(ctx)
	if err != nil {
		return fmt.Errorf("clear charge schedule: %w", err)
	}
	btrs, err := sched.CancelBoost(ctx, time.Now())
	if err != nil && !errors.Is(err, scheduler.ErrBoostUnsupported) {
		return fmt.Errorf("cancel boost: %w", err)
	}
	for _, tr := range append(trs, btrs...) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s -> %s\n", tr.Name, tr.From, tr.To)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s cleared\n", name)
	return nil
}
