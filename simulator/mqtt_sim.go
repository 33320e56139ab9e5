package main

import (
	"context"
	"encoding/json"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/energysched/core/logger"
	"github.com/kilianp07/energysched/infra/mqtt"
)

func newMQTTClient(broker, clientID string) (paho.Client, error) {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID(clientID)
	opts.AutoReconnect = true
	cli := paho.NewClient(opts)
	if token := cli.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return cli, nil
}

type command struct {
	CommandID string `json:"command_id"`
	Command   string `json:"command"`
}

// Responder subscribes to the command topic and answers every command on the
// ack topic.
type Responder struct {
	Hub          *Hub
	Strategy     AckStrategy
	CommandTopic string
	AckTopic     string
	Log          logger.Logger

	publish func(topic string, payload []byte) error
	queue   chan command
}

// Run connects to the broker and serves commands until ctx is done.
func (r *Responder) Run(ctx context.Context, cli paho.Client) error {
	r.queue = make(chan command, 50)
	r.publish = func(topic string, payload []byte) error {
		token := cli.Publish(topic, 0, false, payload)
		if !token.WaitTimeout(5 * time.Second) {
			return context.DeadlineExceeded
		}
		return token.Error()
	}
	for i := 0; i < 5; i++ {
		go r.worker(ctx)
	}
	if token := cli.Subscribe(r.CommandTopic, 0, r.onCommand); token.Wait() && token.Error() != nil {
		cli.Disconnect(250)
		return token.Error()
	}
	r.Log.Infof("hub listening on %s", r.CommandTopic)
	<-ctx.Done()
	cli.Disconnect(250)
	return nil
}

func (r *Responder) onCommand(_ paho.Client, msg paho.Message) {
	var c command
	if err := json.Unmarshal(msg.Payload(), &c); err != nil || c.CommandID == "" {
		r.Log.Warnf("decode command: %v", err)
		return
	}
	select {
	case r.queue <- c:
	default:
		r.Log.Warnf("ack queue full, dropping command %s", c.CommandID)
	}
}

func (r *Responder) worker(ctx context.Context) {
	for {
		select {
		case c := <-r.queue:
			r.answer(ctx, c)
		case <-ctx.Done():
			return
		}
	}
}

// answer runs c against the hub and publishes its ack unless the strategy
// drops it.
func (r *Responder) answer(ctx context.Context, c command) {
	send, forced := r.Strategy.Ack(ctx)
	if !send {
		r.Log.Debugf("dropping ack for %s", c.CommandID)
		return
	}
	ack := mqtt.Ack{CommandID: c.CommandID, Status: forced}
	if forced == 0 {
		ack.Status, ack.Data = r.Hub.Handle(c.Command)
	}
	if ack.Status != 0 {
		ack.Message = "command rejected"
	}
	payload, err := json.Marshal(ack)
	if err != nil {
		r.Log.Errorf("marshal ack: %v", err)
		return
	}
	if err := r.publish(r.AckTopic, payload); err != nil {
		r.Log.Errorf("publish ack %s: %v", c.CommandID, err)
		return
	}
	r.Log.Debugw("answered command", map[string]any{"command_id": c.CommandID, "command": c.Command, "status": ack.Status})
}
