package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/energysched/core/model"
)

// TestIntegration runs a command round trip through a real Mosquitto broker
// with a stub hub bridge answering on the ack topic.
func TestIntegration(t *testing.T) {
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("docker not available")
	}
	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start container: %v", err)
	}
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Fatalf("failed to terminate container: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "1883")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}
	brokerURL := fmt.Sprintf("tcp://%s:%s", host, port.Port())

	hub := paho.NewClient(paho.NewClientOptions().AddBroker(brokerURL).SetClientID("hub"))
	if tok := hub.Connect(); tok.Wait() && tok.Error() != nil {
		t.Fatalf("hub connect: %v", tok.Error())
	}
	defer hub.Disconnect(250)
	received := make(chan string, 4)
	tok := hub.Subscribe("myenergi/command", 1, func(c paho.Client, m paho.Message) {
		var cmd struct {
			CommandID string `json:"command_id"`
			Command   string `json:"command"`
		}
		if err := json.Unmarshal(m.Payload(), &cmd); err != nil {
			return
		}
		received <- cmd.Command
		ack, _ := json.Marshal(Ack{CommandID: cmd.CommandID, Data: json.RawMessage(`{"status":0}`)})
		c.Publish("myenergi/ack", 1, false, ack)
	})
	if tok.Wait() && tok.Error() != nil {
		t.Fatalf("hub subscribe: %v", tok.Error())
	}

	var cli *PahoClient
	for i := 0; i < 5; i++ {
		cli, err = NewPahoClient(Config{Broker: brokerURL, ClientID: "sched", AckTimeout: 5 * time.Second, QoS: map[string]byte{"command": 1, "ack": 1}})
		if err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer cli.Disconnect()
	// let the ack subscription settle
	time.Sleep(200 * time.Millisecond)

	bridge := NewDeviceBridge(cli, model.KindZappi, "16000001")
	start := time.Date(2025, 3, 11, 1, 0, 0, 0, time.UTC)
	if err := bridge.Push(ctx, []model.CompiledSlot{{SlotID: 11, Start: start, Duration: time.Hour, Days: model.DayOf(start)}}); err != nil {
		t.Fatalf("push: %v", err)
	}
	select {
	case got := <-received:
		if got != "cgi-boost-time-Z16000001-11-0100-100-00100000" {
			t.Fatalf("unexpected command %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("hub did not receive command")
	}
}
