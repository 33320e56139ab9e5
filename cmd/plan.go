package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/energysched/app"
	"github.com/kilianp07/energysched/config"
	coremetrics "github.com/kilianp07/energysched/core/metrics"
	"github.com/kilianp07/energysched/core/scheduler"
	"github.com/kilianp07/energysched/core/store"
)

var (
	planDevice  string
	planRequest string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute and print a charge plan without touching the device",
	RunE:  planSchedule,
}

func init() {
	planCmd.Flags().StringVarP(&planDevice, "device", "d", "", "device name")
	planCmd.Flags().StringVarP(&planRequest, "request", "r", "request.yaml", "charge request file")
	rootCmd.AddCommand(planCmd)
}

// offline rejects every device command; planning never sends any.
type offline struct{}

func (offline) Exec(context.Context, string) ([]byte, error) {
	return nil, errors.New("device commands are disabled while planning")
}

func planSchedule(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	name, err := deviceName(cfg, planDevice)
	if err != nil {
		return err
	}
	rf, err := scheduler.LoadRequest(planRequest)
	if err != nil {
		return err
	}
	svc, err := app.New(ctx, cfg,
		app.WithExecutor(offline{}),
		app.WithStore(store.NewMemoryStore()),
		app.WithSink(coremetrics.NopSink{}),
		app.WithHistory(nil))
	if err != nil {
		return err
	}
	defer svc.Close()
	sched, err := svc.Scheduler(name)
	if err != nil {
		return err
	}
	req, err := rf.ChargeRequest(time.Now(), sched.RateKW())
	if err != nil {
		return err
	}
	res, err := sched.ComputeSchedule(ctx, req)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
