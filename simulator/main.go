// Command simulator emulates a myenergi hub behind the MQTT bridge so the
// scheduler can be exercised without hardware.
package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kilianp07/energysched/infra/logger"
)

func main() {
	cfg := parseFlags()
	log := logger.New("simulator")
	if err := (&cfg).Validate(); err != nil {
		log.Errorf("invalid config: %v", err)
		os.Exit(1)
	}
	if err := logger.SetLevel(cfg.LogLevel); err != nil {
		log.Errorf("log level: %v", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli, err := newMQTTClient(cfg.Broker, cfg.ClientID)
	if err != nil {
		log.Errorf("connect %s: %v", cfg.Broker, err)
		os.Exit(1)
	}
	r := &Responder{
		Hub: NewHub(cfg.EddiSerial, cfg.ZappiSerial),
		Strategy: RandomAck{
			Delay:    cfg.AckLatency,
			DropRate: cfg.DropRate,
			BusyRate: cfg.BusyRate,
			Rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		},
		CommandTopic: cfg.CommandTopic,
		AckTopic:     cfg.AckTopic,
		Log:          log,
	}
	if err := r.Run(ctx, cli); err != nil {
		log.Errorf("simulator: %v", err)
		os.Exit(1)
	}
}
