package main

import (
	"errors"
	"flag"
	"time"
)

// Config holds parameters for the simulator.
type Config struct {
	Broker       string
	ClientID     string
	CommandTopic string
	AckTopic     string
	EddiSerial   string
	ZappiSerial  string
	AckLatency   time.Duration
	DropRate     float64
	BusyRate     float64
	LogLevel     string
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	flag.StringVar(&cfg.ClientID, "client-id", "myenergi-hub-sim", "MQTT client id")
	flag.StringVar(&cfg.CommandTopic, "command-topic", "myenergi/command", "topic commands arrive on")
	flag.StringVar(&cfg.AckTopic, "ack-topic", "myenergi/ack", "topic acks are published on")
	flag.StringVar(&cfg.EddiSerial, "eddi", "21509692", "serial of the simulated eddi, empty to disable")
	flag.StringVar(&cfg.ZappiSerial, "zappi", "16000001", "serial of the simulated zappi, empty to disable")
	flag.DurationVar(&cfg.AckLatency, "ack-latency", 0, "delay before each ack")
	flag.Float64Var(&cfg.DropRate, "drop-rate", 0, "probability a command is never acked")
	flag.Float64Var(&cfg.BusyRate, "busy-rate", 0, "probability a command is answered busy")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "log level")
	flag.Parse()
	return cfg
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Broker == "" {
		return errors.New("broker is required")
	}
	if c.EddiSerial == "" && c.ZappiSerial == "" {
		return errors.New("at least one of eddi or zappi must be simulated")
	}
	if c.DropRate < 0 || c.DropRate > 1 || c.BusyRate < 0 || c.BusyRate > 1 {
		return errors.New("drop and busy rates must be within [0,1]")
	}
	if c.AckLatency < 0 {
		return errors.New("ack latency must be positive")
	}
	return nil
}
