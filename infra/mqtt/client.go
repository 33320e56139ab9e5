package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/kilianp07/energysched/core/device"
	"github.com/kilianp07/energysched/infra/logger"
)

// ErrAckTimeout is returned when no acknowledgment is received in time.
var ErrAckTimeout = errors.New("timeout waiting for ack")

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker       string          `json:"broker"`
	ClientID     string          `json:"client_id"`
	Username     string          `json:"username"`
	Password     string          `json:"password"`
	CommandTopic string          `json:"command_topic"`
	AckTopic     string          `json:"ack_topic"`
	AckTimeout   time.Duration   `json:"ack_timeout"`
	UseTLS       bool            `json:"use_tls"`
	ClientCert   string          `json:"client_cert"`
	ClientKey    string          `json:"client_key"`
	CABundle     string          `json:"ca_bundle"`
	AuthMethod   string          `json:"auth_method"`
	QoS          map[string]byte `json:"qos"`
	LWTTopic     string          `json:"lwt_topic"`
	LWTPayload   string          `json:"lwt_payload"`
	LWTQoS       byte            `json:"lwt_qos"`
	LWTRetain    bool            `json:"lwt_retain"`
	MaxRetries   int             `json:"max_retries"`
	BackoffMS    int             `json:"backoff_ms"`
	TLSConfig    *tls.Config     `json:"-"`
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// Ack is the reply a bridge publishes for each command.
type Ack struct {
	CommandID string          `json:"command_id"`
	Status    int             `json:"status"`
	Message   string          `json:"message,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// PahoClient sends device API commands to an MQTT bridge and waits for the
// matching acknowledgment.
type PahoClient struct {
	cli          pahoClient
	commandTopic string
	ackTopic     string
	ackTimeout   time.Duration
	qos          map[string]byte

	mu         sync.Mutex
	ackChans   map[string]chan Ack
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker and subscribes to the ack topic.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.CommandTopic == "" {
		cfg.CommandTopic = "myenergi/command"
	}
	if cfg.AckTopic == "" {
		cfg.AckTopic = "myenergi/ack"
	}
	if cfg.AckTimeout <= 0 {
		cfg.AckTimeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffMS <= 0 {
		cfg.BackoffMS = 100
	}

	log := logger.New("mqtt")
	pc := &PahoClient{
		commandTopic: cfg.CommandTopic,
		ackTopic:     cfg.AckTopic,
		ackTimeout:   cfg.AckTimeout,
		ackChans:     make(map[string]chan Ack),
		logger:       log,
		qos:          cfg.QoS,
		maxRetries:   cfg.MaxRetries,
		backoff:      time.Duration(cfg.BackoffMS) * time.Millisecond,
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("connected to %s, waiting for acks on %s", cfg.Broker, pc.ackTopic)
		if token := c.Subscribe(pc.ackTopic, pc.qosFor("ack"), pc.onAck); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to %s; pending commands may time out", cfg.Broker)
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

func (p *PahoClient) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 0
}

func (p *PahoClient) onAck(_ paho.Client, msg paho.Message) {
	var a Ack
	if err := json.Unmarshal(msg.Payload(), &a); err != nil {
		p.logger.Errorf("failed to decode ack: %v", err)
		return
	}
	p.mu.Lock()
	ch, ok := p.ackChans[a.CommandID]
	p.mu.Unlock()
	if !ok {
		p.logger.Debugf("ignoring ack for unknown command %s", a.CommandID)
		return
	}
	select {
	case ch <- a:
	default:
	}
}

// Exec publishes a device API command and returns the data of its ack. A
// non-zero status in the ack or in the device response becomes a
// device.CommandError.
func (p *PahoClient) Exec(ctx context.Context, command string) ([]byte, error) {
	cmdID := uuid.NewString()
	payload, err := json.Marshal(struct {
		CommandID string `json:"command_id"`
		Command   string `json:"command"`
		Timestamp int64  `json:"timestamp"`
	}{CommandID: cmdID, Command: command, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		return nil, err
	}

	ch := make(chan Ack, 1)
	p.mu.Lock()
	p.ackChans[cmdID] = ch
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		delete(p.ackChans, cmdID)
		p.mu.Unlock()
	}()

	if err := p.publish(ctx, payload); err != nil {
		return nil, &device.CommandError{Op: command, Err: err}
	}
	p.logger.Debugw("sent command", map[string]any{"command_id": cmdID, "command": command})

	timer := time.NewTimer(p.ackTimeout)
	defer timer.Stop()
	select {
	case a := <-ch:
		if a.Status != 0 {
			return nil, &device.CommandError{Op: command, Status: a.Status, Message: a.Message}
		}
		return a.Data, nil
	case <-timer.C:
		return nil, &device.CommandError{Op: command, Err: ErrAckTimeout}
	case <-ctx.Done():
		return nil, &device.CommandError{Op: command, Err: ctx.Err()}
	}
}

// publish sends a command, retrying broker errors with exponential backoff.
// The retries stop early when ctx ends.
func (p *PahoClient) publish(ctx context.Context, payload []byte) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.backoff
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	attempt := 0
	op := func() error {
		attempt++
		token := p.cli.Publish(p.commandTopic, p.qosFor("command"), false, payload)
		token.Wait()
		if err := token.Error(); err != nil {
			p.logger.Warnf("publish attempt %d failed: %v", attempt, err)
			return err
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(eb, uint64(p.maxRetries)), ctx))
}

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}
